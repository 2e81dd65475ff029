package scanner

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
	return root
}

func relPaths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestScannerScan(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.c":               "int main(void) { return 0; }",
		"src/util.cpp":         "int util() { return 1; }",
		"src/util.h":           "int util();",
		"src/legacy.cc":        "void legacy() {}",
		"scripts/gen.py":       "print('hi')",
		"README.md":            "# Test",
		".hidden/secret.c":     "int secret;",
		"build/generated.c":    "int gen;",
		"third_party/z/z.c":    "int z;",
		".git/config":          "[core]",
		"docs/notes/example.c": "int example;",
	})

	results, err := New(DefaultOptions()).Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{"docs/notes/example.c", "main.c", "src/legacy.cc", "src/util.cpp"}
	if got := relPaths(results); !reflect.DeepEqual(got, want) {
		t.Errorf("Scan() paths = %v, want %v", got, want)
	}

	langs := map[string]string{
		"main.c":        "c",
		"src/util.cpp":  "cpp",
		"src/legacy.cc": "cpp",
	}
	for _, f := range results {
		if lang, ok := langs[f.Path]; ok && f.Language != lang {
			t.Errorf("Expected %s to have language %s, got %s", f.Path, lang, f.Language)
		}
		if f.FullPath != filepath.Join(root, filepath.FromSlash(f.Path)) {
			t.Errorf("FullPath of %s = %s", f.Path, f.FullPath)
		}
		if f.Size == 0 {
			t.Errorf("Expected non-zero size for %s", f.Path)
		}
	}
}

func TestScannerHeaders(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.c":         "int a;",
		"inc/a.h":     "extern int a;",
		"inc/b.hpp":   "struct B {};",
		"inc/impl.cc": "int impl;",
	})

	opts := DefaultOptions()
	opts.Headers = true
	results, err := New(opts).Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{"a.c", "inc/a.h", "inc/b.hpp", "inc/impl.cc"}
	if got := relPaths(results); !reflect.DeepEqual(got, want) {
		t.Fatalf("Scan() paths = %v, want %v", got, want)
	}
	for _, f := range results {
		wantHeader := f.Path == "inc/a.h" || f.Path == "inc/b.hpp"
		if f.Header != wantHeader {
			t.Errorf("Header of %s = %v, want %v", f.Path, f.Header, wantHeader)
		}
	}
}

func TestScannerWithGfqignore(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gfqignore":          "*_test.c\n!keep_test.c\ngenerated/\n/top.c\n",
		"main.c":              "int main;",
		"top.c":               "int top;",
		"lib/top.c":           "int libtop;",
		"lib/parse_test.c":    "int t;",
		"lib/keep_test.c":     "int k;",
		"generated/out.c":     "int out;",
		"lib/generated/gen.c": "int gen;",
	})

	results, err := New(DefaultOptions()).Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{"lib/keep_test.c", "lib/top.c", "main.c"}
	if got := relPaths(results); !reflect.DeepEqual(got, want) {
		t.Errorf("Scan() paths = %v, want %v", got, want)
	}
}

func TestScannerNestedIgnoreFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.c":             "int a;",
		"sub/.gfqignore":  "skip.c\n",
		"sub/skip.c":      "int skip;",
		"sub/deep/skip.c": "int deepskip;",
		"sub/keep.c":      "int keep;",
		"other/skip.c":    "int other;",
	})

	results, err := New(DefaultOptions()).Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{"a.c", "other/skip.c", "sub/keep.c"}
	if got := relPaths(results); !reflect.DeepEqual(got, want) {
		t.Errorf("Scan() paths = %v, want %v", got, want)
	}
}

func TestScannerIncludeExclude(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/a.c":         "int a;",
		"src/net/b.c":     "int b;",
		"src/net/b_gen.c": "int bgen;",
		"tools/c.c":       "int c;",
	})

	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{"no filters", nil, nil, []string{"src/a.c", "src/net/b.c", "src/net/b_gen.c", "tools/c.c"}},
		{"include subtree", []string{"src/**"}, nil, []string{"src/a.c", "src/net/b.c", "src/net/b_gen.c"}},
		{"single star stays in dir", []string{"src/*.c"}, nil, []string{"src/a.c"}},
		{"exclude suffix", nil, []string{"**_gen.c"}, []string{"src/a.c", "src/net/b.c", "tools/c.c"}},
		{"exclude directory", nil, []string{"tools"}, []string{"src/a.c", "src/net/b.c", "src/net/b_gen.c"}},
		{"both", []string{"src/**"}, []string{"src/net/**"}, []string{"src/a.c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Include = tt.include
			opts.Exclude = tt.exclude
			results, err := New(opts).Scan(root)
			if err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
			if got := relPaths(results); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Scan() paths = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScannerInvalidGlob(t *testing.T) {
	opts := DefaultOptions()
	opts.Include = []string{"src/[a-"}
	if _, err := New(opts).Scan(t.TempDir()); err == nil {
		t.Error("Expected error for malformed include glob")
	}
}

func TestScannerSingleFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		"one.cpp":  "int one;",
		"notes.md": "# notes",
	})

	results, err := Scan(filepath.Join(root, "one.cpp"))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(results) != 1 || results[0].Path != "one.cpp" || results[0].Language != "cpp" {
		t.Errorf("Scan(one.cpp) = %+v", results)
	}

	if _, err := Scan(filepath.Join(root, "notes.md")); err == nil {
		t.Error("Expected error scanning a non C/C++ file")
	}
	if _, err := Scan(filepath.Join(root, "missing.c")); err == nil {
		t.Error("Expected error scanning a missing file")
	}
}

func TestScannerSkipHidden(t *testing.T) {
	root := writeTree(t, map[string]string{
		"visible.c":       "int v;",
		".hidden.c":       "int h;",
		".hiddendir/in.c": "int in;",
	})

	results, err := New(DefaultOptions()).Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := relPaths(results); !reflect.DeepEqual(got, []string{"visible.c"}) {
		t.Errorf("SkipHidden=true paths = %v", got)
	}

	opts := DefaultOptions()
	opts.SkipHidden = false
	opts.DefaultExcludes = nil
	results, err = New(opts).Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	want := []string{".hidden.c", ".hiddendir/in.c", "visible.c"}
	if got := relPaths(results); !reflect.DeepEqual(got, want) {
		t.Errorf("SkipHidden=false paths = %v, want %v", got, want)
	}
}

func TestPaths(t *testing.T) {
	files := []FileInfo{{FullPath: "/a/x.c"}, {FullPath: "/a/y.cpp"}}
	if got := Paths(files); !reflect.DeepEqual(got, []string{"/a/x.c", "/a/y.cpp"}) {
		t.Errorf("Paths() = %v", got)
	}
}

func TestLanguageDetection(t *testing.T) {
	tests := []struct {
		path   string
		lang   string
		header bool
	}{
		{"main.c", "c", false},
		{"lib.cpp", "cpp", false},
		{"lib.cc", "cpp", false},
		{"lib.cxx", "cpp", false},
		{"api.h", "cpp", true},
		{"api.hpp", "cpp", true},
		{"UPPER.C", "c", false},
		{"script.py", "", false},
		{"Makefile", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := DetectLanguage(tt.path); got != tt.lang {
				t.Errorf("DetectLanguage(%s) = %q, want %q", tt.path, got, tt.lang)
			}
			if got := IsHeader(tt.path); got != tt.header {
				t.Errorf("IsHeader(%s) = %v, want %v", tt.path, got, tt.header)
			}
		})
	}
}

func TestIgnorePattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		isDir   bool
		match   bool
	}{
		{"*.o", "foo.o", false, true},
		{"*.o", "obj/foo.o", false, true},
		{"*.o", "foo.c", false, false},
		{"build/", "build", true, true},
		{"build/", "build", false, false},
		{"build/", "src/build", true, true},
		{"/top.c", "top.c", false, true},
		{"/top.c", "lib/top.c", false, false},
		{"src/*.c", "src/a.c", false, true},
		{"src/*.c", "src/net/a.c", false, false},
		{"src/**/*.c", "src/net/a.c", false, true},
		{"!keep.c", "keep.c", false, true},
		{"gen_?.c", "gen_a.c", false, true},
		{"gen_?.c", "gen_ab.c", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.path, func(t *testing.T) {
			p, err := ParseIgnorePattern(tt.pattern)
			if err != nil {
				t.Fatalf("ParseIgnorePattern(%q) error: %v", tt.pattern, err)
			}
			if got := p.Match(tt.path, tt.isDir); got != tt.match {
				t.Errorf("Pattern %q Match(%q, %v) = %v, want %v", tt.pattern, tt.path, tt.isDir, got, tt.match)
			}
		})
	}
}

func TestIgnorePatternNegation(t *testing.T) {
	p, err := ParseIgnorePattern("!keep.c")
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsNegation() {
		t.Error("Expected negation pattern")
	}
	if p.String() != "!keep.c" {
		t.Errorf("String() = %q", p.String())
	}

	patterns := []IgnorePattern{}
	for _, s := range []string{"*.c", "!keep.c"} {
		p, err := ParseIgnorePattern(s)
		if err != nil {
			t.Fatal(err)
		}
		patterns = append(patterns, p)
	}
	if !matchesIgnorePatterns("drop.c", false, patterns) {
		t.Error("drop.c should be ignored")
	}
	if matchesIgnorePatterns("keep.c", false, patterns) {
		t.Error("keep.c should be re-included")
	}
}

func TestRebase(t *testing.T) {
	tests := []struct {
		line   string
		prefix string
		want   string
	}{
		{"skip.c", "sub", "/sub/{skip.c,**/skip.c}"},
		{"out/", "sub", "/sub/{out,**/out}/"},
		{"/only.c", "sub", "/sub/only.c"},
		{"a/b.c", "sub/x", "/sub/x/a/b.c"},
		{"!keep.c", "sub", "!/sub/{keep.c,**/keep.c}"},
	}
	for _, tt := range tests {
		if got := rebase(tt.line, tt.prefix); got != tt.want {
			t.Errorf("rebase(%q, %q) = %q, want %q", tt.line, tt.prefix, got, tt.want)
		}
	}
}
