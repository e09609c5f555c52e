package taxonomy

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"incidentproxy/internal/domain"

	"gopkg.in/yaml.v3"
)

// Sport is one entry of the taxonomy file. Names are keyed by language
// code, aliases are free-form provider spellings.
type Sport struct {
	Identifier  string            `yaml:"identifier"`
	Name        map[string]string `yaml:"name"`
	Aliases     []string          `yaml:"aliases"`
	EventGroups []EventGroup      `yaml:"eventgroups"`
	Teams       []Participant     `yaml:"participants"`
}

type EventGroup struct {
	Identifier string            `yaml:"identifier"`
	Name       map[string]string `yaml:"name"`
	Aliases    []string          `yaml:"aliases"`
	StartDate  string            `yaml:"start_date"`
	FinishDate string            `yaml:"finish_date"`
}

type Participant struct {
	Identifier string            `yaml:"identifier"`
	Name       map[string]string `yaml:"name"`
	Aliases    []string          `yaml:"aliases"`
}

type taxonomyFile struct {
	Sports []Sport `yaml:"sports"`
}

// Normalizer resolves provider free text to canonical identifiers.
// In strict mode an unresolved name fails normalization with
// domain.ErrNotNormalizable; otherwise the provider text passes
// through unchanged and the miss is only recorded.
type Normalizer struct {
	sports []Sport
	strict bool

	mu       sync.Mutex
	notFound map[string]struct{}
}

func Load(path string, strict bool) (*Normalizer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	var file taxonomyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	return New(file.Sports, strict), nil
}

func New(sports []Sport, strict bool) *Normalizer {
	return &Normalizer{
		sports:   sports,
		strict:   strict,
		notFound: make(map[string]struct{}),
	}
}

// Normalize returns a copy of the incident with sport, event group and
// participant names replaced by canonical identifiers.
func (n *Normalizer) Normalize(incident domain.Incident) (domain.Incident, error) {
	sport, err := n.sportIdentifier(incident.ID.Sport)
	if err != nil {
		return domain.Incident{}, err
	}
	eventGroup, err := n.eventGroupIdentifier(sport, incident.ID.EventGroupName, incident.ID.StartTime)
	if err != nil {
		return domain.Incident{}, err
	}
	home, err := n.participantIdentifier(sport, eventGroup, incident.ID.Home)
	if err != nil {
		return domain.Incident{}, err
	}
	away, err := n.participantIdentifier(sport, eventGroup, incident.ID.Away)
	if err != nil {
		return domain.Incident{}, err
	}

	out := incident
	out.ID.Sport = sport
	out.ID.EventGroupName = eventGroup
	out.ID.Home = home
	out.ID.Away = away
	return out, nil
}

// NotFound lists every name that failed to resolve since startup.
func (n *Normalizer) NotFound() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	keys := make([]string, 0, len(n.notFound))
	for key := range n.notFound {
		keys = append(keys, key)
	}
	return keys
}

func (n *Normalizer) sportIdentifier(name string) (string, error) {
	for _, sport := range n.sports {
		if matches(name, sport.Identifier, sport.Name, sport.Aliases) {
			return sport.Identifier, nil
		}
	}
	return n.miss(name, name)
}

func (n *Normalizer) eventGroupIdentifier(sportID, name, startTime string) (string, error) {
	for _, sport := range n.sports {
		if sport.Identifier != sportID {
			continue
		}
		for _, group := range sport.EventGroups {
			if matches(name, group.Identifier, group.Name, group.Aliases) &&
				startTimeWithin(group, startTime) {
				return group.Identifier, nil
			}
		}
	}
	return n.miss(sportID+"/"+name, name)
}

func (n *Normalizer) participantIdentifier(sportID, eventGroupID, name string) (string, error) {
	for _, sport := range n.sports {
		if sport.Identifier != sportID {
			continue
		}
		for _, team := range sport.Teams {
			if matches(name, team.Identifier, team.Name, team.Aliases) {
				if team.Identifier != "" {
					return team.Identifier, nil
				}
				return team.Name["en"], nil
			}
		}
	}
	return n.miss(sportID+"/"+eventGroupID+"/"+name, name)
}

// miss records the unresolved key and either fails or passes the
// provider text through, depending on strict mode.
func (n *Normalizer) miss(key, original string) (string, error) {
	n.mu.Lock()
	n.notFound[key] = struct{}{}
	n.mu.Unlock()
	if n.strict {
		return "", fmt.Errorf("%w: %s", domain.ErrNotNormalizable, key)
	}
	return original, nil
}

func matches(search, identifier string, names map[string]string, aliases []string) bool {
	if identifier == search {
		return true
	}
	lower := strings.ToLower(search)
	for _, alias := range aliases {
		if strings.ToLower(alias) == lower {
			return true
		}
	}
	for _, name := range names {
		if strings.ToLower(name) == lower {
			return true
		}
	}
	return false
}

// startTimeWithin checks the eventgroup season window. Windows are
// written as "YYYY/MM/DD" (whole day) or "YYYY/MM/DD hh:mm:ss"; a
// group without a window always matches.
func startTimeWithin(group EventGroup, startTime string) bool {
	if group.StartDate == "" && group.FinishDate == "" {
		return true
	}
	start, err := domain.StringToDate(startTime)
	if err != nil {
		return false
	}
	from, err := windowDate(group.StartDate, false)
	if err != nil {
		return false
	}
	to, err := windowDate(group.FinishDate, true)
	if err != nil {
		return false
	}
	return !start.Before(from) && !start.After(to)
}

func windowDate(value string, endOfDay bool) (time.Time, error) {
	switch len(value) {
	case len("YYYY/MM/DD"):
		normalized := value[0:4] + "-" + value[5:7] + "-" + value[8:10] + "T"
		if endOfDay {
			normalized += "23:59:59Z"
		} else {
			normalized += "00:00:00Z"
		}
		return domain.StringToDate(normalized)
	case len("YYYY/MM/DD hh:mm:ss"):
		normalized := value[0:4] + "-" + value[5:7] + "-" + value[8:10] + "T" + value[11:19] + "Z"
		return domain.StringToDate(normalized)
	default:
		return domain.StringToDate(value)
	}
}
