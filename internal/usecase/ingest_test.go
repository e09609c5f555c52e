package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"incidentproxy/internal/domain"
	"incidentproxy/internal/extractor"
	"incidentproxy/internal/infra/artifactstore"
)

type fakeDB struct {
	inserted  []domain.Incident
	insertErr error
}

func (f *fakeDB) Insert(_ context.Context, incident domain.Incident) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, incident)
	return nil
}

func (f *fakeDB) Exists(_ context.Context, provider, uniqueString string) (bool, error) {
	for _, incident := range f.inserted {
		if incident.ProviderInfo.Name == provider && incident.UniqueString == uniqueString {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDB) Query(_ context.Context, _, _ []string) ([]domain.Incident, error) {
	return f.inserted, nil
}

func jsonBatchFactory(t *testing.T) BatchFactory {
	t.Helper()
	return func(provider string) (*extractor.Batch, error) {
		ex, err := extractor.NewJSONExtractor("")
		if err != nil {
			return nil, err
		}
		return &extractor.Batch{Extractor: ex, Formatter: extractor.NewFormatter(nil)}, nil
	}
}

func pushPayload(t *testing.T, home string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id": map[string]any{
			"sport":            "soccer",
			"event_group_name": "laliga",
			"home":             home,
			"away":             "real-madrid",
			"start_time":       "2019-02-24T19:45:00Z",
		},
		"call":          "create",
		"arguments":     map[string]any{},
		"provider_info": map[string]any{"name": "acme", "pushed": "2019-02-24T18:00:00Z"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func newIngest(t *testing.T, db IncidentDatabase, witnessURL string) (*IngestPush, *artifactstore.Store) {
	t.Helper()
	store := artifactstore.New(t.TempDir())
	var witnesses []domain.Witness
	if witnessURL != "" {
		witnesses = []domain.Witness{{URL: witnessURL, Group: "alpha"}}
	}
	cfg := deliveryConfig(witnesses)
	engine, _ := newTestEngine(cfg)
	return &IngestPush{
		Store:    store,
		DB:       db,
		Delivery: engine,
		BatchFor: jsonBatchFactory(t),
	}, store
}

func TestIngestPushFullPath(t *testing.T) {
	sent := int32(0)
	witness := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&sent, 1)
	}))
	defer witness.Close()

	db := &fakeDB{}
	ingest, store := newIngest(t, db, witness.URL)

	result, err := ingest.Execute(context.Background(), "acme", pushPayload(t, "levante"), ".json", nil, false)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.AmountIncidents != 1 || !result.IsInteresting || result.AlreadyKnown {
		t.Fatalf("result = %+v", result)
	}
	if result.FileName == "" {
		t.Fatal("processed file name missing")
	}
	if result.Incidents[0].ProviderInfo.SourceFile != result.FileName {
		t.Fatalf("source_file = %q, want %q", result.Incidents[0].ProviderInfo.SourceFile, result.FileName)
	}

	unique := result.Incidents[0].UniqueString
	if !store.Exists(artifactstore.Incidents, "acme", unique+".json") {
		t.Fatal("incident artifact missing")
	}
	if len(db.inserted) != 1 {
		t.Fatalf("db inserts = %d", len(db.inserted))
	}
	if atomic.LoadInt32(&sent) != 1 {
		t.Fatalf("witness sends = %d", sent)
	}
}

func TestIngestPushDuplicateSuppressed(t *testing.T) {
	sent := int32(0)
	witness := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&sent, 1)
	}))
	defer witness.Close()

	db := &fakeDB{}
	ingest, _ := newIngest(t, db, witness.URL)

	payload := pushPayload(t, "levante")
	if _, err := ingest.Execute(context.Background(), "acme", payload, ".json", nil, false); err != nil {
		t.Fatalf("first push: %v", err)
	}
	result, err := ingest.Execute(context.Background(), "acme", payload, ".json", nil, false)
	if err != nil {
		t.Fatalf("second push: %v", err)
	}
	if !result.AlreadyKnown {
		t.Fatal("duplicate not detected")
	}
	if atomic.LoadInt32(&sent) != 1 {
		t.Fatalf("witness sends = %d, duplicate must not be delivered", sent)
	}
	if len(db.inserted) != 1 {
		t.Fatalf("db inserts = %d", len(db.inserted))
	}
}

func TestIngestPushEmptyPayload(t *testing.T) {
	ingest, _ := newIngest(t, &fakeDB{}, "")
	_, err := ingest.Execute(context.Background(), "acme", nil, ".json", nil, false)
	if !errors.Is(err, domain.ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
}

func TestIngestPushDatabaseFailureIsSwallowed(t *testing.T) {
	witness := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer witness.Close()

	db := &fakeDB{insertErr: errors.New("database down")}
	ingest, store := newIngest(t, db, witness.URL)

	result, err := ingest.Execute(context.Background(), "acme", pushPayload(t, "levante"), ".json", nil, false)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.AmountIncidents != 1 {
		t.Fatalf("result = %+v", result)
	}
	if !store.Exists(artifactstore.Incidents, "acme", result.Incidents[0].UniqueString+".json") {
		t.Fatal("incident artifact missing despite database failure")
	}
}

func TestIngestPushGarbageIsArchivedNotFatal(t *testing.T) {
	ingest, store := newIngest(t, &fakeDB{}, "")

	result, err := ingest.Execute(context.Background(), "acme", []byte("{broken"), ".json", nil, false)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.AmountIncidents != 0 {
		t.Fatalf("incidents from garbage: %+v", result)
	}
	// Raw payload was archived before the parse attempt.
	if _, _, err := store.LatestFile(artifactstore.Raw, "acme"); err != nil {
		t.Fatalf("raw artifact missing: %v", err)
	}
}

func TestSniffEnvelope(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		wantExt     string
		wantPayload string
	}{
		{"raw json", "application/json", `{"call":"create"}`, ".json", `{"call":"create"}`},
		{"urlencoded json", "application/x-www-form-urlencoded", "json=%7B%22a%22%3A1%7D", ".json", `{"a":1}`},
		{"urlencoded xml", "application/x-www-form-urlencoded", "xml=%3Cfoo%2F%3E", ".xml", "<foo/>"},
		{"raw xml body", "text/xml", "<foo/>", ".xml", "<foo/>"},
		{"unrecognized", "text/plain", "hello", "", ""},
		{"empty", "application/json", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/push/acme", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			envelope := SniffEnvelope(req)
			if envelope.Ext != tc.wantExt || string(envelope.Payload) != tc.wantPayload {
				t.Fatalf("envelope = %+v", envelope)
			}
		})
	}
}

func TestSniffEnvelopeMultipart(t *testing.T) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("json", `{"call":"create"}`); err != nil {
		t.Fatal(err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/push/acme", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	envelope := SniffEnvelope(req)
	if envelope.Ext != ".json" || string(envelope.Payload) != `{"call":"create"}` {
		t.Fatalf("envelope = %+v", envelope)
	}
}
