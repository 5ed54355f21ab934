// Package scanner walks a directory tree for source files that flowtrace can
// parse. It respects .flowtraceignore files with gitignore-style patterns.
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from root, slash separated
	FullPath string // Absolute path
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	Extensions      []string // Lower-case extensions to report, with the dot
	DefaultExcludes []string // Directory names never descended into
	IgnoreFileName  string   // Name of the ignore file (default: .flowtraceignore)
}

// DefaultOptions returns scanner options for JavaScript sources.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		Extensions:     []string{".js", ".mjs", ".cjs"},
		IgnoreFileName: ".flowtraceignore",
		DefaultExcludes: []string{
			"node_modules",
			".git",
			"dist",
			"build",
			"coverage",
			"vendor",
			".idea",
			".vscode",
		},
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = ".flowtraceignore"
	}
	return &Scanner{opts: opts}
}

// Scan recursively scans the directory at root and returns the matching
// files sorted by path. Unreadable entries are skipped.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	// Patterns from a directory's ignore file apply below that directory,
	// relative to it.
	ignores := map[string][]IgnorePattern{}

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			if d.IsDir() {
				ignores["."] = s.loadIgnorePatterns(path)
			}
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if s.isDefaultExcluded(d.Name()) || s.ignored(relPath, true, ignores) {
				return filepath.SkipDir
			}
			if patterns := s.loadIgnorePatterns(path); len(patterns) > 0 {
				ignores[relPath] = patterns
			}
			return nil
		}

		if !d.Type().IsRegular() || !s.wanted(relPath) || s.ignored(relPath, false, ignores) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{Path: relPath, FullPath: path, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (s *Scanner) wanted(relPath string) bool {
	ext := strings.ToLower(filepath.Ext(relPath))
	for _, e := range s.opts.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// isDefaultExcluded checks if the name matches default exclusion patterns.
func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// ignored applies the patterns of every ancestor directory, outermost
// first, so a deeper file can re-include what a shallower one excluded.
func (s *Scanner) ignored(relPath string, isDir bool, ignores map[string][]IgnorePattern) bool {
	result := false
	check := func(base string) {
		rel := relPath
		if base != "." {
			rel = strings.TrimPrefix(relPath, base+"/")
		}
		for _, p := range ignores[base] {
			if p.Match(rel, isDir) {
				result = !p.IsNegation()
			}
		}
	}

	check(".")
	dirs := strings.Split(relPath, "/")
	for i := 1; i < len(dirs); i++ {
		check(strings.Join(dirs[:i], "/"))
	}
	return result
}

// loadIgnorePatterns reads the ignore file in dir, if any.
func (s *Scanner) loadIgnorePatterns(dir string) []IgnorePattern {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		return nil
	}
	defer file.Close()

	var patterns []IgnorePattern
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, ParseIgnorePattern(line))
	}
	return patterns
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}
