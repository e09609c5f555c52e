package domain

import (
	"testing"
	"time"
)

func TestUniqueStringDeterministic(t *testing.T) {
	id := IncidentID{
		Sport:          "soccer",
		EventGroupName: "laliga",
		Home:           "levante",
		Away:           "real-madrid",
		StartTime:      "2019-02-24T19:45:00Z",
	}
	first := UniqueString(id, CallCreate)
	second := UniqueString(id, CallCreate)
	if first != second {
		t.Fatalf("unique string not deterministic: %q vs %q", first, second)
	}
	want := "2019-02-24T19:45:00Z__soccer__laliga__levante__real-madrid__create"
	if first != want {
		t.Fatalf("unique string = %q, want %q", first, want)
	}
	if UniqueString(id, CallResult) == first {
		t.Fatalf("different calls must yield different unique strings")
	}
}

func TestParseUniqueStringFiveFields(t *testing.T) {
	incident, err := ParseUniqueString("2019-02-24T19:45:00Z__soccer__laliga__levante__real-madrid")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if incident.Call != CallCreate {
		t.Fatalf("call = %q, want %q", incident.Call, CallCreate)
	}
	if incident.ID.Home != "levante" || incident.ID.Away != "real-madrid" {
		t.Fatalf("unexpected id: %+v", incident.ID)
	}
	if incident.UniqueString == "" {
		t.Fatal("unique string not computed")
	}
}

func TestParseUniqueStringSixFields(t *testing.T) {
	incident, err := ParseUniqueString("2019-02-24T19:45:00Z__soccer__laliga__levante__real-madrid__result")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if incident.Call != CallResult {
		t.Fatalf("call = %q, want %q", incident.Call, CallResult)
	}
}

func TestParseUniqueStringRejectsGarbage(t *testing.T) {
	if _, err := ParseUniqueString("soccer__laliga"); err == nil {
		t.Fatal("expected error for short identifier")
	}
}

func TestValidate(t *testing.T) {
	valid := Incident{
		ID: IncidentID{
			Sport:          "soccer",
			EventGroupName: "laliga",
			Home:           "levante",
			Away:           "real-madrid",
			StartTime:      "2019-02-24T19:45:00Z",
		},
		Call:      CallCreate,
		Arguments: map[string]any{"season": "2019"},
		ProviderInfo: ProviderInfo{
			Name:   "acme",
			Pushed: "2019-02-20T10:00:00Z",
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid incident rejected: %v", err)
	}

	missingHome := valid
	missingHome.ID.Home = ""
	if err := missingHome.Validate(); err == nil {
		t.Fatal("incident without home accepted")
	}

	badCall := valid
	badCall.Call = "started"
	if err := badCall.Validate(); err == nil {
		t.Fatal("incident with unsupported call accepted")
	}

	noProvider := valid
	noProvider.ProviderInfo.Name = ""
	if err := noProvider.Validate(); err == nil {
		t.Fatal("incident without provider accepted")
	}
}

func TestStringToDate(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2019-02-24T19:45:00Z", time.Date(2019, 2, 24, 19, 45, 0, 0, time.UTC)},
		{"20190224", time.Date(2019, 2, 24, 0, 0, 0, 0, time.UTC)},
		{"2019-02-24", time.Date(2019, 2, 24, 0, 0, 0, 0, time.UTC)},
		{"2019-02-24 19:45:00", time.Date(2019, 2, 24, 19, 45, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := StringToDate(tc.in)
		if err != nil {
			t.Fatalf("StringToDate(%q): %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("StringToDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := StringToDate("not-a-date"); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestSlugify(t *testing.T) {
	if got := Slugify("2019-02-24T19:45:00Z"); got != "2019-02-24t194500z" {
		t.Fatalf("Slugify datetime = %q", got)
	}
	if got := Slugify("World  Cup"); got != "world-cup" {
		t.Fatalf("Slugify = %q", got)
	}
}
