package pages

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EnsurePages writes a placeholder <slug>.md into dir for every slug in
// mapping (label -> slug) that has no file yet, matching case-insensitively.
// It returns the created paths and is idempotent.
func EnsurePages(mapping map[string]string, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pages dir: %w", err)
	}
	existing, err := lowerNames(dir)
	if err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(mapping))
	for label := range mapping {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var created []string
	for _, label := range labels {
		name := strings.ToLower(mapping[label]) + ".md"
		if _, ok := existing[name]; ok {
			continue
		}
		path := filepath.Join(dir, mapping[label]+".md")
		body := fmt.Sprintf("# %s\n\nThis page is a placeholder.\n", label)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return created, fmt.Errorf("write placeholder %s: %w", path, err)
		}
		existing[name] = struct{}{}
		created = append(created, path)
	}
	return created, nil
}

// CaseCollisions reports files in dir whose names differ only by case,
// keyed by the lower-cased name. Names in each group are sorted.
func CaseCollisions(dir string) map[string][]string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return map[string][]string{}
	}
	groups := map[string][]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key := strings.ToLower(entry.Name())
		groups[key] = append(groups[key], entry.Name())
	}
	out := map[string][]string{}
	for key, names := range groups {
		if len(names) > 1 {
			sort.Strings(names)
			out[key] = names
		}
	}
	return out
}

func lowerNames(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pages dir: %w", err)
	}
	out := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		out[strings.ToLower(entry.Name())] = struct{}{}
	}
	return out, nil
}
