package artifactstore

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Namespace selects one of the three parallel artifact trees.
type Namespace string

const (
	// Raw holds unprocessed push payloads, write-once.
	Raw Namespace = "a_raw"
	// Processed holds the payload slices identified as interesting.
	Processed Namespace = "c_processed"
	// Incidents holds accepted incidents keyed by unique string. This
	// namespace is never archived; replay depends on it.
	Incidents Namespace = "d_incidents"
)

// archives reports whether a namespace participates in the rollover
// policy.
func (n Namespace) archives() bool {
	return n == Raw || n == Processed
}

const bucketLayout = "20060102"

// Store is the date-bucketed file store for raw payloads, processed
// payloads and accepted incidents. Layout:
//
//	{root}/{namespace}/{YYYYMMDD}/{provider}/{file}
//
// The first write into a fresh date bucket of an archiving namespace
// triggers background compaction of the bucket from 23 hours back.
type Store struct {
	root string
	now  func() time.Time

	mu          sync.Mutex
	lastWritten time.Time

	// archiveWG tracks in-flight background archival, so tests can
	// wait for it.
	archiveWG sync.WaitGroup
}

func New(root string) *Store {
	return &Store{root: root, now: time.Now}
}

// NewWithClock is used by tests to control bucket selection.
func NewWithClock(root string, now func() time.Time) *Store {
	return &Store{root: root, now: now}
}

// StoragePath returns (and creates) the directory for a provider
// inside the date bucket of the given time, zero meaning now.
func (s *Store) StoragePath(ns Namespace, provider string, at time.Time) (string, error) {
	if at.IsZero() {
		at = s.now()
	}
	bucket := filepath.Join(s.root, string(ns), at.Format(bucketLayout))
	folder := filepath.Join(bucket, provider)

	if ns.archives() {
		if _, err := os.Stat(bucket); os.IsNotExist(err) {
			s.triggerRollover(ns, at)
		}
	}

	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("create storage path: %w", err)
	}
	return folder, nil
}

// Save writes content for a provider under today's bucket and returns
// the file name. With an empty name a timestamped unique name with
// the given extension is generated and an existing file of that name
// is an error. With an explicit name the write is idempotent: an
// existing file is left untouched and the call succeeds.
func (s *Store) Save(ns Namespace, provider, content, ext, name string) (string, error) {
	failIfExists := false
	if name == "" {
		name = fmt.Sprintf("%s_%s", s.now().Format("20060102-150405"), uuid.NewString())
		failIfExists = true
	}
	name += ext

	folder, err := s.StoragePath(ns, provider, time.Time{})
	if err != nil {
		return "", err
	}
	path := filepath.Join(folder, name)
	if _, err := os.Stat(path); err == nil {
		if failIfExists {
			return "", fmt.Errorf("generated artifact name collision: %s", path)
		}
		return name, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	if ns == Incidents {
		s.mu.Lock()
		s.lastWritten = s.now()
		s.mu.Unlock()
	}
	return name, nil
}

// Exists reports whether an artifact is present in today's bucket.
func (s *Store) Exists(ns Namespace, provider, name string) bool {
	folder := filepath.Join(s.root, string(ns), s.now().Format(bucketLayout), provider)
	_, err := os.Stat(filepath.Join(folder, name))
	return err == nil
}

// Open returns a reader over an artifact in today's bucket together
// with its length.
func (s *Store) Open(ns Namespace, provider, name string) (io.ReadCloser, int64, error) {
	folder := filepath.Join(s.root, string(ns), s.now().Format(bucketLayout), provider)
	path := filepath.Join(folder, name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open artifact: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open artifact: %w", err)
	}
	return f, info.Size(), nil
}

// Root returns the directory a namespace lives under, the entry point
// for bulk scans.
func (s *Store) Root(ns Namespace) string {
	return filepath.Join(s.root, string(ns))
}

// FolderExists reports whether a provider folder exists in today's
// bucket.
func (s *Store) FolderExists(ns Namespace, provider string) bool {
	folder := filepath.Join(s.root, string(ns), s.now().Format(bucketLayout), provider)
	info, err := os.Stat(folder)
	return err == nil && info.IsDir()
}

// LatestFile returns the newest file in a provider's folder of
// today's bucket and its modification time.
func (s *Store) LatestFile(ns Namespace, provider string) (string, time.Time, error) {
	folder := filepath.Join(s.root, string(ns), s.now().Format(bucketLayout), provider)
	entries, err := os.ReadDir(folder)
	if err != nil {
		return "", time.Time{}, err
	}
	var latest string
	var latestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestMod) {
			latest = entry.Name()
			latestMod = info.ModTime()
		}
	}
	if latest == "" {
		return "", time.Time{}, os.ErrNotExist
	}
	return latest, latestMod, nil
}

// LastWritten is the time of the most recent incident artifact write,
// zero when none happened in this process.
func (s *Store) LastWritten() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWritten
}

// triggerRollover archives the bucket from 23 hours back, detached
// from the calling write. Going back 23 hours rather than one
// calendar day tolerates clock and interval drift around midnight.
func (s *Store) triggerRollover(ns Namespace, at time.Time) {
	oldBucket := filepath.Join(s.root, string(ns), at.Add(-23*time.Hour).Format(bucketLayout))
	if oldBucket == filepath.Join(s.root, string(ns), at.Format(bucketLayout)) {
		return
	}
	if info, err := os.Stat(oldBucket); err != nil || !info.IsDir() {
		return
	}
	s.archiveWG.Add(1)
	go func() {
		defer s.archiveWG.Done()
		if err := archiveFolder(oldBucket); err != nil {
			log.Printf("artifactstore: archiving %s failed: %v", oldBucket, err)
		}
	}()
}

// WaitForArchival blocks until background archival finished. Only
// used by tests.
func (s *Store) WaitForArchival() {
	s.archiveWG.Wait()
}
