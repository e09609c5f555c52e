package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"incidentproxy/internal/domain"
	"incidentproxy/internal/extractor"
	"incidentproxy/internal/infra/artifactstore"
)

// PushResult is what a provider push produced, used to build the HTTP
// response and returned by replay-by-payload.
type PushResult struct {
	FileName        string            `json:"file_name"`
	AmountIncidents int               `json:"amount_incidents"`
	Incidents       []domain.Incident `json:"incidents"`
	AlreadyKnown    bool              `json:"already_known"`
	IsInteresting   bool              `json:"is_interesting"`
}

// BatchFactory builds the extraction pipeline for a provider.
type BatchFactory func(provider string) (*extractor.Batch, error)

// IngestPush runs the full ingestion path for one pushed payload:
// archive raw, interest check, archive processed, extract, dedup gate,
// persist and hand off to delivery.
type IngestPush struct {
	Store    ArtifactStore
	DB       IncidentDatabase
	Delivery *DeliveryEngine
	BatchFor BatchFactory
}

// Execute ingests a payload pushed by a provider. Targets restricts
// delivery (replay uses this); live pushes pass nil. Async selects
// fire-and-forget delivery.
func (u *IngestPush) Execute(ctx context.Context, provider string, payload []byte, ext string, targets []string, async bool) (PushResult, error) {
	result := PushResult{AlreadyKnown: true}
	if len(payload) == 0 {
		return result, domain.ErrNoContent
	}

	if _, err := u.Store.Save(artifactstore.Raw, provider, string(payload), ".raw", ""); err != nil {
		return result, fmt.Errorf("archive raw payload: %w", err)
	}

	batch, err := u.BatchFor(provider)
	if err != nil {
		return result, err
	}

	result.IsInteresting = batch.Extractor.SourceOfInterest(payload)
	if !result.IsInteresting {
		return result, nil
	}

	fileName, err := u.Store.Save(artifactstore.Processed, provider, string(payload), ext, "")
	if err != nil {
		return result, fmt.Errorf("archive processed payload: %w", err)
	}
	result.FileName = fileName

	incidents, err := batch.ProcessPayload(ctx, payload)
	if err != nil {
		// The payload is archived; extraction failure must not fail
		// the push.
		log.Printf("ingest %s: processing failed, continuing anyway, source file is %s: %v", provider, fileName, err)
		return result, nil
	}

	for _, incident := range incidents {
		incident.ProviderInfo.SourceFile = fileName
		result.Incidents = append(result.Incidents, incident)

		known := u.Store.Exists(artifactstore.Incidents, provider, incident.UniqueString+".json")
		result.AlreadyKnown = known
		if known {
			continue
		}

		serialized, err := json.Marshal(incident)
		if err != nil {
			log.Printf("ingest %s: marshal %s failed: %v", provider, incident.UniqueString, err)
			continue
		}
		incidentFile, err := u.Store.Save(artifactstore.Incidents, provider, string(serialized), ".json", incident.UniqueString)
		if err != nil {
			log.Printf("ingest %s: archiving incident %s failed: %v", provider, incident.UniqueString, err)
			continue
		}

		if err := u.DB.Insert(ctx, incident); err != nil {
			switch {
			case errors.Is(err, domain.ErrDuplicateIncident):
			default:
				log.Printf("ingest %s: database insert failed, continuing anyway, incident file is %s: %v", provider, incidentFile, err)
			}
		}

		if async {
			u.Delivery.Go(incident, targets)
		} else {
			u.Delivery.Deliver(ctx, incident, targets)
		}
	}
	result.AmountIncidents = len(result.Incidents)
	return result, nil
}
