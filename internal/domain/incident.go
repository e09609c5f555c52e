package domain

import (
	"fmt"
	"strings"
)

// Call types an incident can carry. Unknown incidents are discarded
// before persistence.
const (
	CallCreate     = "create"
	CallInProgress = "in_progress"
	CallFinished   = "finished"
	CallCanceled   = "canceled"
	CallResult     = "result"
	CallUnknown    = "unknown"
)

// IncidentID identifies the real-world event an incident refers to.
// The fields are free text until normalized against the taxonomy.
type IncidentID struct {
	Sport          string `json:"sport"`
	EventGroupName string `json:"event_group_name"`
	Home           string `json:"home"`
	Away           string `json:"away"`
	StartTime      string `json:"start_time"`
}

// ProviderInfo describes where an incident came from. Masking strips
// everything but Name (hashed) and Pushed before external exposure.
type ProviderInfo struct {
	Name       string `json:"name"`
	Pushed     string `json:"pushed"`
	SourceFile string `json:"source_file,omitempty"`
	APIEventID any    `json:"api_event_id,omitempty"`
	TZFix      bool   `json:"tzfix,omitempty"`
}

// Incident is a normalized fact about a sporting event.
type Incident struct {
	ID           IncidentID     `json:"id"`
	Call         string         `json:"call"`
	Arguments    map[string]any `json:"arguments"`
	ProviderInfo ProviderInfo   `json:"provider_info"`
	UniqueString string         `json:"unique_string,omitempty"`
	Timestamp    string         `json:"timestamp,omitempty"`
}

const uniqueStringSeparator = "__"

// UniqueString derives the deterministic dedup identifier from an
// incident id and call. Same inputs always yield the same identifier.
func UniqueString(id IncidentID, call string) string {
	return strings.Join([]string{
		id.StartTime,
		id.Sport,
		id.EventGroupName,
		id.Home,
		id.Away,
		call,
	}, uniqueStringSeparator)
}

// ComputeUniqueString fills in the incident's unique string from its
// id and call fields.
func (i *Incident) ComputeUniqueString() {
	i.UniqueString = UniqueString(i.ID, i.Call)
}

// DedupKey combines unique string and provider name; two incidents
// sharing it are the same logical incident instance.
func (i *Incident) DedupKey() string {
	return i.UniqueString + i.ProviderInfo.Name
}

// ParseUniqueString expands a unique string back into an incident
// skeleton. The five-field form (id only) is accepted for manufactured
// identifiers, defaulting the call to "create".
func ParseUniqueString(s string) (Incident, error) {
	parts := strings.Split(s, uniqueStringSeparator)
	if len(parts) != 5 && len(parts) != 6 {
		return Incident{}, fmt.Errorf("unique string %q: expected 5 or 6 fields, got %d", s, len(parts))
	}
	call := CallCreate
	if len(parts) == 6 {
		call = parts[5]
	}
	incident := Incident{
		ID: IncidentID{
			StartTime:      parts[0],
			Sport:          parts[1],
			EventGroupName: parts[2],
			Home:           parts[3],
			Away:           parts[4],
		},
		Call:      call,
		Arguments: map[string]any{},
	}
	incident.ComputeUniqueString()
	return incident, nil
}

// Validate checks the schema of an incident before it is persisted.
func (i *Incident) Validate() error {
	if i.ID.Sport == "" || i.ID.EventGroupName == "" || i.ID.Home == "" || i.ID.Away == "" {
		return fmt.Errorf("%w: incomplete id", ErrInvalidIncident)
	}
	if i.ID.StartTime == "" {
		return fmt.Errorf("%w: missing start_time", ErrInvalidIncident)
	}
	switch i.Call {
	case CallCreate, CallInProgress, CallFinished, CallCanceled, CallResult, CallUnknown:
	default:
		return fmt.Errorf("%w: unsupported call %q", ErrInvalidIncident, i.Call)
	}
	if i.Arguments == nil {
		return fmt.Errorf("%w: missing arguments", ErrInvalidIncident)
	}
	if i.ProviderInfo.Name == "" || i.ProviderInfo.Pushed == "" {
		return fmt.Errorf("%w: incomplete provider_info", ErrInvalidIncident)
	}
	return nil
}
