package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"incidentproxy/internal/domain"
)

// JSONExtractor handles providers that push incidents already shaped
// like the common format, either a single object or an array. When the
// provider is configured with a timezone its naive timestamps are
// shifted to UTC once per incident.
type JSONExtractor struct {
	loc *time.Location
}

func NewJSONExtractor(timezone string) (*JSONExtractor, error) {
	if timezone == "" {
		return &JSONExtractor{}, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &JSONExtractor{loc: loc}, nil
}

func (e *JSONExtractor) Ext() string { return ".json" }

func (e *JSONExtractor) SourceOfInterest(payload []byte) bool {
	return len(bytes.TrimSpace(payload)) > 0
}

func (e *JSONExtractor) Extract(payload []byte) ([]domain.Incident, error) {
	trimmed := bytes.TrimSpace(payload)
	var incidents []domain.Incident
	if bytes.HasPrefix(trimmed, []byte("[")) {
		if err := json.Unmarshal(trimmed, &incidents); err != nil {
			return nil, fmt.Errorf("parse incident list: %w", err)
		}
	} else {
		var single domain.Incident
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("parse incident: %w", err)
		}
		incidents = []domain.Incident{single}
	}
	for i := range incidents {
		incidents[i] = e.fixTimezone(incidents[i])
	}
	return incidents, nil
}

// fixTimezone shifts the incident's naive timestamps from the
// provider's zone to UTC. The tzfix flag marks incidents that were
// already adjusted so replayed artifacts are never shifted twice.
func (e *JSONExtractor) fixTimezone(incident domain.Incident) domain.Incident {
	if e.loc == nil || incident.ProviderInfo.TZFix {
		return incident
	}
	incident.ID.StartTime = e.toUTC(incident.ID.StartTime)
	incident.ProviderInfo.Pushed = e.toUTC(incident.ProviderInfo.Pushed)
	for _, key := range []string{"whistle_start_time", "whistle_end_time"} {
		if value, ok := incident.Arguments[key].(string); ok && value != "" {
			incident.Arguments[key] = e.toUTC(value)
		}
	}
	incident.ProviderInfo.TZFix = true
	return incident
}

func (e *JSONExtractor) toUTC(value string) string {
	// Already UTC wire format.
	if strings.Contains(value, "T") && strings.Contains(value, "Z") {
		return value
	}
	parsed, err := domain.StringToDate(value)
	if err != nil {
		return value
	}
	local := time.Date(parsed.Year(), parsed.Month(), parsed.Day(),
		parsed.Hour(), parsed.Minute(), parsed.Second(), 0, e.loc)
	return domain.DateToString(local.UTC())
}
