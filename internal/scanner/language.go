package scanner

import (
	"path/filepath"
	"strings"

	"github.com/l3aro/go-flow-query/pkg/frontend"
)

// DetectLanguage returns the front-end language of path by extension, or
// "" when the file is not C or C++ source.
func DetectLanguage(path string) string {
	l, ok := frontend.LanguageOf(path)
	if !ok {
		return ""
	}
	return string(l)
}

// IsHeader reports whether path is a C or C++ header.
func IsHeader(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".h", ".hh", ".hpp", ".hxx", ".inl":
		return true
	}
	return false
}
