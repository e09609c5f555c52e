package extractor

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"incidentproxy/internal/config"
)

// PushFunc hands a fetched payload to the regular ingestion path, the
// same one provider pushes take.
type PushFunc func(ctx context.Context, provider string, payload []byte, ext string) error

// Poller periodically fetches a provider feed and pushes the result
// through ingestion. Fetch errors are logged and the loop continues
// with the next tick.
type Poller struct {
	provider string
	cfg      config.PollConfig
	push     PushFunc
	client   *http.Client
}

func NewPoller(provider string, cfg config.PollConfig, push PushFunc) *Poller {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Poller{
		provider: provider,
		cfg:      cfg,
		push:     push,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *Poller) Run(ctx context.Context) {
	interval := time.Duration(p.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	log.Printf("poller %s: fetching %s every %s", p.provider, p.cfg.URL, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := p.fetchAndPush(ctx); err != nil {
			log.Printf("poller %s: %v, continuing with next tick", p.provider, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) fetchAndPush(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch: status %d", resp.StatusCode)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := p.push(ctx, p.provider, payload, ".json"); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}
