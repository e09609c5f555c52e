package usecase

import (
	"context"
	"log"
	"sort"
	"time"

	"incidentproxy/internal/config"
	"incidentproxy/internal/domain"
	"incidentproxy/internal/extractor"
	"incidentproxy/internal/infra/artifactstore"
)

// ReplayReport is returned to the caller of a replay request.
type ReplayReport struct {
	Providers           []string `json:"providers"`
	Targets             []string `json:"targets,omitempty"`
	FolderFilter        []string `json:"folder_filter,omitempty"`
	NameFilter          []string `json:"name_filter,omitempty"`
	AmountIncidents     int      `json:"amount_incidents"`
	Incidents           any      `json:"incidents"`
	AnyMatchedWitnesses bool     `json:"any_matched_witnesses"`
	// IncidentsSent is false in report-only mode, true when dispatch
	// was triggered asynchronously.
	IncidentsSent bool   `json:"incidents_sent"`
	Note          string `json:"note,omitempty"`
}

// Replay reconstructs historical incidents matching a filter and
// redelivers them, or just reports what would be sent.
type Replay struct {
	Cfg       *config.Config
	Store     ArtifactStore
	DB        IncidentDatabase
	Delivery  *DeliveryEngine
	Directory *SubscriberDirectory
	Formatter *extractor.Formatter
	Now       Clock
}

func (u *Replay) Execute(ctx context.Context, filter domain.ReplayFilter) (ReplayReport, error) {
	report := ReplayReport{
		Targets:    filter.Targets,
		NameFilter: filter.NameFilter,
	}
	if len(filter.NameFilter) == 0 && len(filter.Manufacture) == 0 {
		report.Note = "name filter must not be empty"
		return report, nil
	}

	// Sort a copy, the caller's filter stays untouched.
	providers := append([]string(nil), filter.Providers...)
	if len(providers) == 0 {
		providers = u.Cfg.ProviderNames()
	}
	sort.Strings(providers)
	report.Providers = providers

	var incidents []domain.Incident
	var err error
	if len(filter.Manufacture) > 0 {
		incidents, err = u.manufacture(filter.Manufacture, providers)
		if err != nil {
			return report, err
		}
	} else {
		if !u.Directory.AnyMatch(filter.Targets) {
			log.Printf("replay: no matching witnesses for %v", filter.Targets)
			report.AnyMatchedWitnesses = false
			return report, nil
		}
		incidents, err = u.collect(ctx, filter, providers, &report)
		if err != nil {
			return report, err
		}
	}

	report.AmountIncidents = len(incidents)
	if len(incidents) == 1 {
		report.Incidents = incidents
	} else {
		ids := make([]string, 0, len(incidents))
		for _, incident := range incidents {
			ids = append(ids, incident.UniqueString)
		}
		report.Incidents = ids
	}

	if !u.Directory.AnyMatch(filter.Targets) {
		log.Printf("replay: no matching witnesses for %v", filter.Targets)
		report.AnyMatchedWitnesses = false
		return report, nil
	}
	report.AnyMatchedWitnesses = true

	if filter.OnlyReport {
		return report, nil
	}

	// Redelivery reproduces original temporal order.
	sort.SliceStable(incidents, func(i, j int) bool {
		return incidents[i].ProviderInfo.Pushed < incidents[j].ProviderInfo.Pushed
	})
	for _, incident := range incidents {
		log.Printf("replay: trigger sending %s", incident.UniqueString)
		u.Delivery.Go(incident, filter.Targets)
	}
	report.IncidentsSent = true
	return report, nil
}

// manufacture expands unique-string identifiers into incident
// skeletons, one per selected provider.
func (u *Replay) manufacture(identifiers, providers []string) ([]domain.Incident, error) {
	var out []domain.Incident
	for _, identifier := range identifiers {
		for _, provider := range providers {
			incident, err := domain.ParseUniqueString(identifier)
			if err != nil {
				return nil, err
			}
			incident.ProviderInfo = domain.ProviderInfo{
				Name:   provider,
				Pushed: domain.DateToString(u.now()),
			}
			out = append(out, incident)
		}
	}
	return out, nil
}

// collect scans the incident artifact tree, merging in a database
// query when only the wide-range sentinel hints are available.
func (u *Replay) collect(ctx context.Context, filter domain.ReplayFilter, providers []string, report *ReplayReport) ([]domain.Incident, error) {
	received := filter.Received
	wideRange := false
	if len(received) == 0 {
		received = InferDateHints(filter.NameFilter)
	}
	if len(received) == 0 {
		received = u.Cfg.Replay.DefaultReceived
		wideRange = true
	}

	folderFilter := append(append([]string{}, providers...), received...)
	report.FolderFilter = folderFilter

	ex, err := extractor.NewJSONExtractor("")
	if err != nil {
		return nil, err
	}
	batch := &extractor.Batch{Extractor: ex, Formatter: u.Formatter}
	incidents, err := batch.ScanFolder(ctx, u.Store.Root(artifactstore.Incidents), folderFilter, filter.NameFilter)
	if err != nil {
		return nil, err
	}

	if wideRange && u.DB != nil {
		stored, err := u.DB.Query(ctx, providers, filter.NameFilter)
		if err != nil {
			log.Printf("replay: wide-range database query failed, using disk results only: %v", err)
			return incidents, nil
		}
		seen := make(map[string]struct{}, len(incidents))
		for _, incident := range incidents {
			seen[incident.DedupKey()] = struct{}{}
		}
		for _, incident := range stored {
			if _, ok := seen[incident.DedupKey()]; ok {
				continue
			}
			seen[incident.DedupKey()] = struct{}{}
			incidents = append(incidents, incident)
		}
	}
	return incidents, nil
}

func (u *Replay) now() time.Time {
	if u.Now != nil {
		return u.Now()
	}
	return time.Now()
}
