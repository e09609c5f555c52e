package extractor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"incidentproxy/internal/domain"
)

// Batch drives an extractor plus formatter over one or more payload
// sources, deduplicating within the run. The optional history cache
// additionally drops incidents seen in earlier runs, which polling
// providers use to avoid re-pushing the same upcoming events.
type Batch struct {
	Extractor   Extractor
	Formatter   *Formatter
	History     domain.DedupCache
	SkipOnError bool
}

type source struct {
	name    string
	content []byte
}

// ProcessPayload extracts the incidents of a single pushed payload.
func (b *Batch) ProcessPayload(ctx context.Context, payload []byte) ([]domain.Incident, error) {
	return b.collect(ctx, []source{{name: "payload", content: payload}})
}

// ScanFolder walks a directory tree, selecting files by the folder and
// name filters, and extracts incidents from every match. Used by
// replay over the incident artifact tree.
func (b *Batch) ScanFolder(ctx context.Context, folder string, folderFilter, nameFilter []string) ([]domain.Incident, error) {
	files, err := collectFiles(folder, b.Extractor.Ext(), folderFilter, nameFilter)
	if err != nil {
		return nil, err
	}
	sources := make([]source, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			if b.SkipOnError {
				log.Printf("extractor: skipping unreadable %s: %v", file, err)
				continue
			}
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		sources = append(sources, source{name: file, content: content})
	}
	return b.collect(ctx, sources)
}

func (b *Batch) collect(ctx context.Context, sources []source) ([]domain.Incident, error) {
	var out []domain.Incident
	seen := map[string]struct{}{}

	for _, src := range sources {
		incidents, err := b.Extractor.Extract(src.content)
		if err != nil {
			log.Printf("extractor: parsing %s failed: %v", src.name, err)
			if !b.SkipOnError {
				return nil, fmt.Errorf("parse %s: %w", src.name, err)
			}
			continue
		}
		for _, incident := range incidents {
			if incident.Call == domain.CallUnknown {
				continue
			}
			prepared, err := b.Formatter.Prepare(incident)
			if err != nil {
				// A single bad incident never kills its siblings.
				if errors.Is(err, domain.ErrNotNormalizable) || errors.Is(err, domain.ErrInvalidIncident) {
					log.Printf("extractor: dropping incident from %s: %v", src.name, err)
					continue
				}
				if b.SkipOnError {
					log.Printf("extractor: skipping incident from %s: %v", src.name, err)
					continue
				}
				return nil, err
			}
			key := prepared.DedupKey()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if b.History != nil {
				known, err := b.History.Remember(ctx, key)
				if err != nil {
					log.Printf("extractor: dedup history unavailable, keeping %s: %v", prepared.UniqueString, err)
				} else if known {
					continue
				}
			}
			out = append(out, prepared)
		}
	}
	return out, nil
}
