package extractor

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const dayLayout = "20060102"

// collectFiles descends the tree rooted at folder, pruning directories
// the folder filter rejects, and keeps files that carry the wanted
// extension and match every name filter token.
func collectFiles(folder, ext string, folderFilter, nameFilter []string) ([]string, error) {
	var files []string
	err := walkFiltered(folder, ext, folderFilter, &files)
	if err != nil {
		return nil, err
	}
	if len(nameFilter) == 0 {
		return files, nil
	}
	matched := files[:0]
	for _, file := range files {
		if matchesAllTokens(filepath.Base(file), nameFilter) {
			matched = append(matched, file)
		}
	}
	return matched, nil
}

func walkFiltered(folder, ext string, folderFilter []string, files *[]string) error {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(folder, entry.Name())
		if entry.IsDir() {
			if descendInto(entry.Name(), folderFilter) {
				if err := walkFiltered(path, ext, folderFilter, files); err != nil {
					return err
				}
			}
			continue
		}
		if ext != "" && strings.HasSuffix(entry.Name(), ext) {
			*files = append(*files, path)
		}
	}
	return nil
}

// descendInto decides whether a subdirectory is scanned. Date buckets
// are named YYYYMMDD, so "starts with 2" identifies them for the next
// eight centuries.
func descendInto(folder string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}

	for _, f := range filter {
		if folder == f {
			return true
		}
	}

	// The last filter entry may carry an open-ended date bound.
	last := filter[len(filter)-1]
	if after, ok := strings.CutPrefix(last, "after:"); ok && strings.HasPrefix(folder, "2") {
		afterDay, errAfter := time.Parse(dayLayout, after)
		folderDay, errFolder := time.Parse(dayLayout, folder)
		if errAfter == nil && errFolder == nil && afterDay.Before(folderDay) {
			return true
		}
	}

	for _, f := range filter {
		if strings.HasPrefix(folder, f) {
			return true
		}
	}

	// Only a provider given: dive into every date bucket.
	if len(filter) == 1 && !strings.HasPrefix(filter[0], "2") && strings.HasPrefix(folder, "2") {
		return true
	}

	return false
}

func matchesAllTokens(fileName string, tokens []string) bool {
	lower := strings.ToLower(fileName)
	for _, token := range tokens {
		if !strings.Contains(lower, strings.ToLower(token)) {
			return false
		}
	}
	return true
}
