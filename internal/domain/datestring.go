package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Wire format for all timestamps: RFC3339 in UTC, second precision.
const dateLayout = "2006-01-02T15:04:05Z"

var dateLayouts = []string{
	dateLayout,
	time.RFC3339,
	"20060102",
	"2006-01-02",
	"2006-01-02 15:04:05",
}

// DateToString renders a time in the canonical wire format.
func DateToString(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// StringToDate parses the date formats providers and replay filters
// use: RFC3339, YYYYMMDD, YYYY-MM-DD and YYYY-MM-DD hh:mm:ss.
func StringToDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

var (
	slugInvalid    = regexp.MustCompile(`[^a-z0-9_\s-]`)
	slugWhitespace = regexp.MustCompile(`[\s]+`)
)

// Slugify converts a value into a file-name-safe string: lowercase,
// spaces to hyphens, everything but alphanumerics, underscores and
// hyphens stripped.
func Slugify(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = slugInvalid.ReplaceAllString(value, "")
	return slugWhitespace.ReplaceAllString(value, "-")
}
