// Package scanner discovers the translation units of a source tree. It
// respects .gfqignore files with gitignore-style patterns, include and
// exclude globs, and keeps only files the C/C++ front end can parse.
package scanner

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from root
	FullPath string // Absolute path
	Language string // c or cpp
	Header   bool
	Size     int64 // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	FollowSymlinks  bool     // Follow symlinks (within root only)
	DefaultExcludes []string // Directory names always skipped
	IgnoreFileName  string   // Name of the ignore file (default: .gfqignore)
	// Include keeps only files matching one of the globs when not empty.
	Include []string
	Exclude []string
	// Headers also returns header files.
	Headers bool
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		FollowSymlinks: false,
		IgnoreFileName: ".gfqignore",
		DefaultExcludes: []string{
			".git",
			".hg",
			".svn",
			"CVS",
			".idea",
			".vscode",
			"build",
			"cmake-build-debug",
			"cmake-build-release",
			"CMakeFiles",
			"node_modules",
			"vendor",
			"third_party",
			"out",
			"bin",
			"obj",
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
		opts.IgnoreFileName = ".gfqignore"
	}
	return &Scanner{opts: opts}
}

// Scan recursively scans the directory at root and returns the C and C++
// files in path order. A root that is a single file yields that file.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	include, err := CompileGlobs(s.opts.Include)
	if err != nil {
		return nil, fmt.Errorf("compiling include globs: %w", err)
	}
	exclude, err := CompileGlobs(s.opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("compiling exclude globs: %w", err)
	}

	rootInfo, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !rootInfo.IsDir() {
		lang := DetectLanguage(absRoot)
		if lang == "" {
			return nil, fmt.Errorf("%s is not a C or C++ file", root)
		}
		return []FileInfo{{
			Path:     filepath.Base(absRoot),
			FullPath: absRoot,
			Language: lang,
			Header:   IsHeader(absRoot),
			Size:     rootInfo.Size(),
		}}, nil
	}

	ignorePatterns, err := s.loadIgnorePatterns(absRoot, "")
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}

	var files []FileInfo

	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// unreadable entries are skipped
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPathSlash := filepath.ToSlash(relPath)

		if s.opts.SkipHidden && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if s.isDefaultExcluded(info.Name()) ||
				matchesIgnorePatterns(relPathSlash, true, ignorePatterns) ||
				exclude.Match(relPathSlash) {
				return filepath.SkipDir
			}
			nested, err := s.loadIgnorePatterns(path, relPathSlash)
			if err == nil && len(nested) > 0 {
				ignorePatterns = append(ignorePatterns, nested...)
			}
			return nil
		}

		if matchesIgnorePatterns(relPathSlash, false, ignorePatterns) || exclude.Match(relPathSlash) {
			return nil
		}
		if len(include) > 0 && !include.Match(relPathSlash) {
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			if !s.opts.FollowSymlinks {
				return nil
			}
			realPath, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			realAbs, err := filepath.Abs(realPath)
			if err != nil {
				return nil
			}
			if !strings.HasPrefix(realAbs, absRoot+string(filepath.Separator)) {
				return nil
			}
			targetInfo, err := os.Stat(realPath)
			if err != nil || targetInfo.IsDir() {
				return nil
			}
			info = targetInfo
		}

		lang := DetectLanguage(path)
		if lang == "" {
			return nil
		}
		header := IsHeader(path)
		if header && !s.opts.Headers {
			return nil
		}

		files = append(files, FileInfo{
			Path:     relPathSlash,
			FullPath: path,
			Language: lang,
			Header:   header,
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns loads the ignore file of dir. Patterns of a nested
// file are rebased onto prefix, the directory's path relative to the root.
func (s *Scanner) loadIgnorePatterns(dir, prefix string) ([]IgnorePattern, error) {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []IgnorePattern
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if prefix != "" {
			line = rebase(line, prefix)
		}
		p, err := ParseIgnorePattern(line)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, sc.Err()
}

// rebase anchors a pattern from a nested ignore file under prefix.
func rebase(line, prefix string) string {
	neg := ""
	if strings.HasPrefix(line, "!") {
		neg, line = "!", line[1:]
	}
	body := strings.TrimPrefix(line, "/")
	if !strings.Contains(strings.TrimSuffix(body, "/"), "/") && !strings.HasPrefix(line, "/") {
		dir := strings.HasSuffix(body, "/")
		body = strings.TrimSuffix(body, "/")
		body = "{" + body + ",**/" + body + "}"
		if dir {
			body += "/"
		}
	}
	return neg + "/" + prefix + "/" + body
}

// matchesIgnorePatterns applies gitignore semantics: the last matching
// pattern wins and negations re-include.
func matchesIgnorePatterns(relPath string, isDir bool, patterns []IgnorePattern) bool {
	ignored := false
	for _, pattern := range patterns {
		if pattern.Match(relPath, isDir) {
			ignored = !pattern.IsNegation()
		}
	}
	return ignored
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}

// Paths returns the absolute paths of files.
func Paths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.FullPath
	}
	return out
}
