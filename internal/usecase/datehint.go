package usecase

import (
	"time"

	"incidentproxy/internal/domain"
)

const (
	hintWindowBack    = 3
	hintWindowForward = 3
	// Create events are announced long before game time, so a replay
	// hunting for one has to look much further back than for the calls
	// clustering around the whistle.
	hintWindowBackCreate = 28
)

// InferDateHints derives date-bucket names from replay name-filter
// tokens. Each token is slugified and a date parse is attempted on its
// first 20, 8 and 10 characters; the first success anchors a window of
// YYYYMMDD bucket names around that date. Nil when no token carries a
// date.
func InferDateHints(nameFilter []string) []string {
	var matched time.Time
	found := false

	for _, token := range nameFilter {
		slug := domain.Slugify(token)
		for _, length := range []int{20, 8, 10} {
			if len(slug) < length {
				continue
			}
			if parsed, err := domain.StringToDate(slug[:length]); err == nil {
				matched = parsed
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	if !found {
		return nil
	}

	back := hintWindowBack
	for _, token := range nameFilter {
		if token == domain.CallCreate {
			back = hintWindowBackCreate
			break
		}
	}

	hints := make([]string, 0, back+hintWindowForward)
	for i := -back; i < hintWindowForward; i++ {
		hints = append(hints, matched.AddDate(0, 0, i).Format("20060102"))
	}
	return hints
}
