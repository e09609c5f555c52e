package usecase

import (
	"context"
	"time"

	"incidentproxy/internal/domain"
	"incidentproxy/internal/infra/artifactstore"
)

type Clock func() time.Time

// IncidentDatabase is the secondary incident store. It may be
// unavailable; callers treat its errors as non-fatal.
type IncidentDatabase interface {
	Insert(ctx context.Context, incident domain.Incident) error
	Exists(ctx context.Context, provider, uniqueString string) (bool, error)
	Query(ctx context.Context, providers, tokens []string) ([]domain.Incident, error)
}

// ArtifactStore is the date-bucketed artifact tree, the durable record
// ingestion writes and replay reads.
type ArtifactStore interface {
	Save(ns artifactstore.Namespace, provider, content, ext, name string) (string, error)
	Exists(ns artifactstore.Namespace, provider, name string) bool
	Root(ns artifactstore.Namespace) string
	LatestFile(ns artifactstore.Namespace, provider string) (string, time.Time, error)
	LastWritten() time.Time
}
