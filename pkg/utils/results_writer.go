/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: results_writer.go
Description: Writes session results as JSON files under a results directory, one
subdirectory per kind, with timestamped file names.
*/

package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteResult writes v to <dir>/<kind>/<timestamp>_<kind>_<name>.json and
// returns the file path
func WriteResult(dir, kind, name string, v interface{}) (string, error) {
	kindDir := filepath.Join(dir, kind)
	if err := os.MkdirAll(kindDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := fmt.Sprintf("%s_%s_%s.json", timestamp, kind, sanitize(name))
	path := filepath.Join(kindDir, filename)

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write result file: %w", err)
	}
	return path, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, name)
}
