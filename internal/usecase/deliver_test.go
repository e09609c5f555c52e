package usecase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"incidentproxy/internal/config"
	"incidentproxy/internal/domain"
)

func deliveryIncident(provider string) domain.Incident {
	incident := domain.Incident{
		ID: domain.IncidentID{
			Sport:          "soccer",
			EventGroupName: "laliga",
			Home:           "levante",
			Away:           "real-madrid",
			StartTime:      "2019-02-24T19:45:00Z",
		},
		Call:         domain.CallCreate,
		Arguments:    map[string]any{},
		ProviderInfo: domain.ProviderInfo{Name: provider, Pushed: "2019-02-24T18:00:00Z", SourceFile: "x.json"},
	}
	incident.ComputeUniqueString()
	return incident
}

func deliveryConfig(witnesses []domain.Witness) *config.Config {
	return &config.Config{
		Providers: map[string]config.ProviderConfig{"acme": {}},
		Subscriptions: config.SubscriptionsConfig{
			Witnesses:          witnesses,
			MaskProviders:      config.MaskSetting{Enabled: true},
			Postfix:            "/trigger",
			DelayToNextSeconds: 30,
			DelayOnlyFirst:     4,
			ShuffleTTLHours:    6,
			Retry:              config.RetryConfig{Number: 1, DelaySeconds: 2},
			TimeoutSeconds:     1,
			MaxInflight:        4,
		},
	}
}

func newTestEngine(cfg *config.Config) (*DeliveryEngine, *[]time.Duration) {
	dir := NewStableSubscriberDirectory(cfg.Subscriptions.Witnesses, cfg.ShuffleTTL(), time.Now)
	engine := NewDeliveryEngine(cfg, dir)
	var slept []time.Duration
	engine.sleep = func(d time.Duration) { slept = append(slept, d) }
	return engine, &slept
}

func TestDeliverMasksProvider(t *testing.T) {
	var received domain.Incident
	witness := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
	}))
	defer witness.Close()

	cfg := deliveryConfig([]domain.Witness{{URL: witness.URL, Group: "alpha"}})
	engine, _ := newTestEngine(cfg)

	statuses := engine.Deliver(context.Background(), deliveryIncident("acme"), nil)
	if statuses[witness.URL+"/trigger"] != "ok" {
		t.Fatalf("statuses = %v", statuses)
	}
	if received.ProviderInfo.Name == "acme" {
		t.Fatal("provider name sent unmasked")
	}
	if len(received.ProviderInfo.Name) != 64 {
		t.Fatalf("masked name %q is not a sha256 hex digest", received.ProviderInfo.Name)
	}
	if received.ProviderInfo.SourceFile != "" {
		t.Fatal("masking must strip source_file")
	}
	if received.ProviderInfo.Pushed != "2019-02-24T18:00:00Z" {
		t.Fatalf("pushed = %q", received.ProviderInfo.Pushed)
	}

	// Masking is deterministic for the same provider and config.
	again := engine.MaskedProvider(domain.ProviderInfo{Name: "acme", Pushed: "x"})
	if again.Name != received.ProviderInfo.Name {
		t.Fatal("mask not deterministic")
	}
}

func TestDeliverGlobalWhitelist(t *testing.T) {
	calls := int32(0)
	witness := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer witness.Close()

	cfg := deliveryConfig([]domain.Witness{{URL: witness.URL, Group: "alpha"}})
	cfg.Subscriptions.WhitelistProviders = []string{"trusted-only"}
	engine, _ := newTestEngine(cfg)

	statuses := engine.Deliver(context.Background(), deliveryIncident("acme"), nil)
	if len(statuses) != 0 || atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("whitelisted-out provider was sent: statuses=%v calls=%d", statuses, calls)
	}
}

func TestDeliverWitnessWhitelist(t *testing.T) {
	calls := int32(0)
	open := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer open.Close()
	restricted := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("restricted witness must not be called")
	}))
	defer restricted.Close()

	cfg := deliveryConfig([]domain.Witness{
		{URL: restricted.URL, Group: "alpha", WhitelistProviders: []string{"other"}},
		{URL: open.URL, Group: "alpha"},
	})
	engine, _ := newTestEngine(cfg)

	statuses := engine.Deliver(context.Background(), deliveryIncident("acme"), nil)
	if statuses[open.URL+"/trigger"] != "ok" {
		t.Fatalf("statuses = %v", statuses)
	}
	if _, ok := statuses[restricted.URL+"/trigger"]; ok {
		t.Fatal("restricted witness has a status entry")
	}
}

func TestDeliverRetriesAndRecordsFailure(t *testing.T) {
	attempts := int32(0)
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer flaky.Close()

	cfg := deliveryConfig([]domain.Witness{{URL: flaky.URL, Group: "alpha"}})
	engine, slept := newTestEngine(cfg)

	statuses := engine.Deliver(context.Background(), deliveryIncident("acme"), nil)
	if statuses[flaky.URL+"/trigger"] != "ok" {
		t.Fatalf("retry did not recover: %v", statuses)
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if len(*slept) != 1 || (*slept)[0] != 2*time.Second {
		t.Fatalf("retry delay not applied: %v", *slept)
	}

	// Exhausted retries record the failure and never abort delivery.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer dead.Close()
	cfg = deliveryConfig([]domain.Witness{{URL: dead.URL, Group: "alpha"}})
	engine, _ = newTestEngine(cfg)
	statuses = engine.Deliver(context.Background(), deliveryIncident("acme"), nil)
	if statuses[dead.URL+"/trigger"] != "HTTP response 500" {
		t.Fatalf("failure status = %v", statuses)
	}
	if engine.LastStatus()[dead.URL+"/trigger"] != "HTTP response 500" {
		t.Fatalf("last status not recorded: %v", engine.LastStatus())
	}
}

func TestDeliverPacing(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	w1 := httptest.NewServer(ok)
	defer w1.Close()
	w2 := httptest.NewServer(ok)
	defer w2.Close()
	w3 := httptest.NewServer(ok)
	defer w3.Close()
	solo := httptest.NewServer(ok)
	defer solo.Close()

	cfg := deliveryConfig([]domain.Witness{
		{URL: w1.URL, Group: "alpha"},
		{URL: w2.URL, Group: "alpha"},
		{URL: w3.URL, Group: "alpha"},
		{URL: solo.URL, Group: "beta"},
	})
	cfg.Subscriptions.DelayOnlyFirst = 2
	engine, slept := newTestEngine(cfg)

	engine.Deliver(context.Background(), deliveryIncident("acme"), nil)
	// Only the first two sends inside the three-witness group pace;
	// the single-witness group never does.
	paced := 0
	for _, d := range *slept {
		if d == 30*time.Second {
			paced++
		}
	}
	if paced != 2 {
		t.Fatalf("paced sleeps = %d, want 2 (got %v)", paced, *slept)
	}
}

func TestInitialDelayPerCall(t *testing.T) {
	witness := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer witness.Close()

	cfg := deliveryConfig([]domain.Witness{{URL: witness.URL, Group: "alpha"}})
	cfg.Subscriptions.InitialDelay = map[string]int{domain.CallResult: 60}
	engine, slept := newTestEngine(cfg)

	incident := deliveryIncident("acme")
	incident.Call = domain.CallResult
	incident.ComputeUniqueString()
	engine.Deliver(context.Background(), incident, nil)
	if len(*slept) == 0 || (*slept)[0] != 60*time.Second {
		t.Fatalf("initial delay not applied: %v", *slept)
	}

	*slept = nil
	engine.Deliver(context.Background(), deliveryIncident("acme"), nil)
	for _, d := range *slept {
		if d == 60*time.Second {
			t.Fatal("initial delay applied to unconfigured call")
		}
	}
}

func TestGoReturnsWhileSlotsAreBusy(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer slow.Close()

	cfg := deliveryConfig([]domain.Witness{{URL: slow.URL, Group: "alpha"}})
	cfg.Subscriptions.MaxInflight = 1
	cfg.Subscriptions.TimeoutSeconds = 5
	engine, _ := newTestEngine(cfg)

	// Park the only delivery slot on the slow witness.
	engine.Go(deliveryIncident("acme"), nil)

	returned := make(chan struct{})
	go func() {
		engine.Go(deliveryIncident("acme"), nil)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Go waited for a free delivery slot instead of returning")
	}

	close(release)
	engine.Wait()
}

func TestGoDeliversAsync(t *testing.T) {
	done := make(chan struct{}, 1)
	witness := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done <- struct{}{}
	}))
	defer witness.Close()

	cfg := deliveryConfig([]domain.Witness{{URL: witness.URL, Group: "alpha"}})
	engine, _ := newTestEngine(cfg)

	engine.Go(deliveryIncident("acme"), nil)
	engine.Wait()
	select {
	case <-done:
	default:
		t.Fatal("async delivery never reached the witness")
	}
}
