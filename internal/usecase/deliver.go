package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"incidentproxy/internal/config"
	"incidentproxy/internal/domain"
)

// DeliveryEngine fans one incident out to the resolved witnesses:
// provider masking, whitelist filtering, per-witness POST with bounded
// retries, pacing inside a group and a per-URL status record.
type DeliveryEngine struct {
	cfg       config.SubscriptionsConfig
	providers map[string]config.ProviderConfig
	directory *SubscriberDirectory
	client    *http.Client
	sleep     func(time.Duration)

	maskOnce   sync.Once
	maskSecret string

	statusMu   sync.Mutex
	lastStatus map[string]string

	// inflight bounds concurrent async deliveries so a replay burst
	// cannot spawn an unbounded number of goroutines.
	inflight chan struct{}
	wg       sync.WaitGroup
}

func NewDeliveryEngine(cfg *config.Config, directory *SubscriberDirectory) *DeliveryEngine {
	return &DeliveryEngine{
		cfg:       cfg.Subscriptions,
		providers: cfg.Providers,
		directory: directory,
		client: &http.Client{
			Timeout: time.Duration(cfg.Subscriptions.TimeoutSeconds) * time.Second,
		},
		sleep:      time.Sleep,
		lastStatus: make(map[string]string),
		inflight:   make(chan struct{}, cfg.Subscriptions.MaxInflight),
	}
}

// Deliver sends one incident to all witnesses matching targets and
// returns the per-URL status map. A configured initial delay for the
// incident's call type is applied first.
func (e *DeliveryEngine) Deliver(ctx context.Context, incident domain.Incident, targets []string) map[string]string {
	if delay := e.cfg.InitialDelay[incident.Call]; delay > 0 {
		log.Printf("delivery %s: waiting %ds before sending %s", incident.UniqueString, delay, incident.Call)
		e.sleep(time.Duration(delay) * time.Second)
	}
	return e.send(ctx, incident, targets)
}

// Go triggers delivery without waiting for it. Failures inside the
// task are logged, never returned. The in-flight bound is taken inside
// the spawned task, so Go returns immediately even when all delivery
// slots are busy.
func (e *DeliveryEngine) Go(incident domain.Incident, targets []string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.inflight <- struct{}{}
		defer func() { <-e.inflight }()
		statuses := e.Deliver(context.Background(), incident, targets)
		ok := 0
		for _, status := range statuses {
			if status == "ok" {
				ok++
			}
		}
		log.Printf("delivery %s: reached %d of %d witnesses", incident.UniqueString, ok, len(statuses))
	}()
}

// Wait blocks until all async deliveries finished. Tests only.
func (e *DeliveryEngine) Wait() {
	e.wg.Wait()
}

func (e *DeliveryEngine) send(ctx context.Context, incident domain.Incident, targets []string) map[string]string {
	unmaskedProvider := incident.ProviderInfo.Name

	if e.cfg.MaskProviders.Enabled {
		incident.ProviderInfo = e.MaskedProvider(incident.ProviderInfo)
	}

	if len(e.cfg.WhitelistProviders) > 0 && !contains(e.cfg.WhitelistProviders, unmaskedProvider) {
		log.Printf("delivery %s: provider %s not in global whitelist, not sending", incident.UniqueString, unmaskedProvider)
		return map[string]string{}
	}

	statuses := make(map[string]string)
	order, grouped := e.directory.Groups(targets)

	for _, group := range order {
		witnesses := grouped[group]
		remainingToDelay := e.cfg.DelayOnlyFirst

		for _, witness := range witnesses {
			url := witness.URL + e.cfg.Postfix
			if len(witness.WhitelistProviders) > 0 && !contains(witness.WhitelistProviders, unmaskedProvider) {
				log.Printf("delivery %s: witness %s does not accept provider %s, skipping", incident.UniqueString, url, unmaskedProvider)
				continue
			}

			if err := e.post(ctx, url, incident); err != nil {
				log.Printf("delivery %s: sending to %s failed: %v, continuing", incident.UniqueString, url, err)
				statuses[url] = err.Error()
			} else {
				statuses[url] = "ok"
			}

			if e.cfg.DelayToNextSeconds > 0 && remainingToDelay > 0 && len(witnesses) > 1 {
				e.sleep(time.Duration(e.cfg.DelayToNextSeconds) * time.Second)
				remainingToDelay--
			}
		}
	}

	e.statusMu.Lock()
	for url, status := range statuses {
		e.lastStatus[url] = status
	}
	e.statusMu.Unlock()
	return statuses
}

// post attempts one witness send with bounded retries on any failure.
func (e *DeliveryEngine) post(ctx context.Context, url string, incident domain.Incident) error {
	body, err := json.Marshal(incident)
	if err != nil {
		return err
	}
	retries := e.cfg.Retry.Number
	for {
		err = e.doPost(ctx, url, body)
		if err == nil {
			return nil
		}
		if retries <= 0 {
			return err
		}
		retries--
		e.sleep(time.Duration(e.cfg.Retry.DelaySeconds) * time.Second)
	}
}

func (e *DeliveryEngine) doPost(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP response %d", resp.StatusCode)
	}
	return nil
}

// LastStatus returns a copy of the per-URL result of the most recent
// delivery attempt, keyed by witness URL with postfix.
func (e *DeliveryEngine) LastStatus() map[string]string {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	out := make(map[string]string, len(e.lastStatus))
	for url, status := range e.lastStatus {
		out[url] = status
	}
	return out
}

// MaskedProvider hashes the provider name with the process-wide mask
// secret, keeping only name and pushed.
func (e *DeliveryEngine) MaskedProvider(info domain.ProviderInfo) domain.ProviderInfo {
	sum := sha256.Sum256([]byte(info.Name + e.secret()))
	return domain.ProviderInfo{
		Name:   hex.EncodeToString(sum[:]),
		Pushed: info.Pushed,
	}
}

// secret derives the mask secret once: an explicitly configured string
// wins, otherwise the marshalled witness and provider configuration
// serves as secret, so it cannot be guessed without the configuration.
func (e *DeliveryEngine) secret() string {
	e.maskOnce.Do(func() {
		if e.cfg.MaskProviders.Secret != "" {
			e.maskSecret = e.cfg.MaskProviders.Secret
			return
		}
		witnesses, _ := json.Marshal(e.cfg.Witnesses)
		providers, _ := json.Marshal(e.providers)
		e.maskSecret = string(witnesses) + string(providers)
	})
	return e.maskSecret
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
