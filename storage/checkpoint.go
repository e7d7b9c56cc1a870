package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"realtor_scraper/models"
)

// CheckpointPath is where the harvested links for a city are kept.
func CheckpointPath(dir, city string) string {
	return filepath.Join(dir, fmt.Sprintf("property_links_%s.txt", city))
}

// WriteCheckpoint overwrites path with one "Page <n>:" block per page, each
// followed by its links and a blank line.
func WriteCheckpoint(path string, cp models.LinkCheckpoint) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, page := range cp.Pages {
		fmt.Fprintf(w, "%s:\n", page.Label)
		for _, link := range page.Links {
			fmt.Fprintf(w, "%s\n", link)
		}
		w.WriteString("\n")
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return f.Close()
}

// ReadCheckpointLines returns every line of the checkpoint, trimmed.
func ReadCheckpointLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	return lines, scanner.Err()
}

// ReadCheckpointLinks returns only the link lines, in file order.
func ReadCheckpointLinks(path string) ([]string, error) {
	lines, err := ReadCheckpointLines(path)
	if err != nil {
		return nil, err
	}

	var links []string
	for _, line := range lines {
		if IsLink(line) {
			links = append(links, line)
		}
	}
	return links, nil
}

// IsLink reports whether a checkpoint line holds a URL rather than a page
// label or blank separator.
func IsLink(line string) bool {
	return strings.HasPrefix(line, "http")
}
