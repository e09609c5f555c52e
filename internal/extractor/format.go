package extractor

import (
	"regexp"
	"time"

	"incidentproxy/internal/domain"
)

// Normalizer resolves free-text names to canonical identifiers.
type Normalizer interface {
	Normalize(incident domain.Incident) (domain.Incident, error)
}

// Formatter brings extracted incidents into the canonical shape:
// datetimes reformatted to the UTC wire format, schema validated,
// names normalized, unique string computed and the processing
// timestamp set.
type Formatter struct {
	normalizer Normalizer
	now        func() time.Time
}

func NewFormatter(normalizer Normalizer) *Formatter {
	return &Formatter{normalizer: normalizer, now: time.Now}
}

func NewFormatterWithClock(normalizer Normalizer, now func() time.Time) *Formatter {
	return &Formatter{normalizer: normalizer, now: now}
}

func (f *Formatter) Prepare(incident domain.Incident) (domain.Incident, error) {
	incident.ID.StartTime = reformatDatetime(incident.ID.StartTime)
	incident.ProviderInfo.Pushed = reformatDatetime(incident.ProviderInfo.Pushed)
	reformatArguments(incident.Arguments)

	if err := incident.Validate(); err != nil {
		return domain.Incident{}, err
	}
	if f.normalizer != nil {
		normalized, err := f.normalizer.Normalize(incident)
		if err != nil {
			return domain.Incident{}, err
		}
		incident = normalized
	}
	incident.ComputeUniqueString()
	incident.Timestamp = domain.DateToString(f.now())
	return incident, nil
}

var naiveDatetime = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)

// reformatDatetime rewrites "YYYY-MM-DD hh:mm:ss" values into the
// canonical wire format. Anything else passes through untouched.
func reformatDatetime(value string) string {
	if !naiveDatetime.MatchString(value) {
		return value
	}
	parsed, err := domain.StringToDate(value)
	if err != nil {
		return value
	}
	return domain.DateToString(parsed)
}

func reformatArguments(arguments map[string]any) {
	for key, value := range arguments {
		switch typed := value.(type) {
		case map[string]any:
			reformatArguments(typed)
		case string:
			if typed != "" {
				arguments[key] = reformatDatetime(typed)
			}
		}
	}
}
