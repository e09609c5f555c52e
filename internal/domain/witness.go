package domain

// DefaultGroup is assigned to witnesses declared as bare URL strings.
const DefaultGroup = "none"

// Witness is a subscriber endpoint that receives delivered incidents.
type Witness struct {
	URL                string   `json:"url" yaml:"url"`
	Group              string   `json:"group" yaml:"group"`
	Name               string   `json:"name,omitempty" yaml:"name"`
	WhitelistProviders []string `json:"whitelist_providers,omitempty" yaml:"whitelist_providers"`
}

// Matches reports whether a replay/delivery target selects this
// witness. A target may be the witness group, its URL or its name.
func (w Witness) Matches(target string) bool {
	return target == w.Group || target == w.URL || (w.Name != "" && target == w.Name)
}

// ReplayFilter is the transient, per-request description of which
// stored incidents to reconstruct and where to send them.
type ReplayFilter struct {
	Providers   []string
	Received    []string
	NameFilter  []string
	Targets     []string
	Manufacture []string
	OnlyReport  bool
}
