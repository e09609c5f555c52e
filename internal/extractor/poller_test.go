package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"incidentproxy/internal/config"
)

func TestPollerFetchesAndPushes(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"call":"create"}`))
	}))
	defer feed.Close()

	pushed := make(chan []byte, 1)
	poller := NewPoller("acme", config.PollConfig{URL: feed.URL, IntervalSeconds: 1},
		func(ctx context.Context, provider string, payload []byte, ext string) error {
			if provider != "acme" || ext != ".json" {
				t.Errorf("push called with provider=%q ext=%q", provider, ext)
			}
			pushed <- payload
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	select {
	case payload := <-pushed:
		if string(payload) != `{"call":"create"}` {
			t.Fatalf("payload = %q", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller never pushed the feed")
	}
	cancel()
	<-done
}

func TestPollerContinuesAfterFetchError(t *testing.T) {
	calls := int32(0)
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"call":"create"}`))
	}))
	defer feed.Close()

	pushed := make(chan []byte, 1)
	poller := NewPoller("acme", config.PollConfig{URL: feed.URL, IntervalSeconds: 1},
		func(ctx context.Context, provider string, payload []byte, ext string) error {
			pushed <- payload
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	// The first fetch fails with a 500; the next tick must still push.
	select {
	case <-pushed:
	case <-time.After(4 * time.Second):
		t.Fatal("poller stopped after a fetch error")
	}
	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("feed fetched %d times, want at least 2", calls)
	}
	cancel()
	<-done
}
