package util

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	invalidChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	dashRuns     = regexp.MustCompile(`-+`)
)

// EnsureWritableDir creates dir if needed and verifies files can be written
// into it.
func EnsureWritableDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("directory path cannot be empty")
	}
	clean := filepath.Clean(dir)

	info, err := os.Stat(clean)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("path exists but is not a directory: %s", clean)
	case os.IsNotExist(err):
		if err := os.MkdirAll(clean, 0755); err != nil {
			return fmt.Errorf("cannot create directory: %w", err)
		}
	case err != nil:
		return fmt.Errorf("cannot access path: %w", err)
	}

	probe := filepath.Join(clean, ".tunedl_write_check")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("no write permission for directory: %w", err)
	}
	f.Close()
	os.Remove(probe)
	return nil
}

// SanitizeFileName turns an arbitrary title into something every common
// filesystem accepts. It never returns an empty string.
func SanitizeFileName(name string) string {
	safe := controlChars.ReplaceAllString(name, "")
	safe = invalidChars.ReplaceAllString(safe, "-")
	safe = dashRuns.ReplaceAllString(safe, "-")
	safe = strings.Trim(safe, " .-")

	reserved := map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
		"COM6": true, "COM7": true, "COM8": true, "COM9": true,
		"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
		"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
	}
	if reserved[strings.ToUpper(safe)] {
		safe += "_"
	}
	if safe == "" {
		return "untitled"
	}
	return safe
}
