// Package scanner finds statement files below a directory.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scanner walks a directory tree and finds statement files
type Scanner struct {
	rootDir string
}

// New creates a new scanner for the given root directory
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// ScanResult is a statement file found by Scan.
type ScanResult struct {
	Path   string
	Period string // YYYY-MM taken from the parent directory, if it has that shape
}

// Scan walks the directory tree and returns statement files in lexical order.
// Hidden entries and spreadsheet lock files are skipped.
func (s *Scanner) Scan() ([]ScanResult, error) {
	rootDir := expandHome(s.rootDir)

	var results []ScanResult
	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != rootDir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsStatementFile(path) {
			return nil
		}

		results = append(results, ScanResult{
			Path:   path,
			Period: period(filepath.Base(filepath.Dir(path))),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

// IsStatementFile reports whether path has a supported statement extension.
func IsStatementFile(path string) bool {
	if strings.HasPrefix(filepath.Base(path), "~$") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".csv" || ext == ".xlsx"
}

// Expand turns a mix of files and directories into a list of files.
// Files are kept as given; directories are scanned.
func Expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(expandHome(p))
		if err != nil {
			// Let the caller report missing files per file.
			files = append(files, p)
			continue
		}
		if !info.IsDir() {
			files = append(files, expandHome(p))
			continue
		}
		results, err := New(p).Scan()
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			files = append(files, r.Path)
		}
	}
	return files, nil
}

// period returns dir if it looks like YYYY-MM.
func period(dir string) string {
	if len(dir) != 7 || dir[4] != '-' {
		return ""
	}
	for i, c := range dir {
		if i != 4 && (c < '0' || c > '9') {
			return ""
		}
	}
	return dir
}

// expandHome expands ~ to home directory
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
