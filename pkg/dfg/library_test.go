package dfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLibrary(t *testing.T) {
	lib := DefaultLibrary()
	require.Greater(t, lib.Len(), 10)

	fn, ok := lib.Lookup("std::memcpy")
	require.True(t, ok)
	assert.Equal(t, "arg0", fn.Returns)
	require.Len(t, fn.Effects, 1)
	assert.Equal(t, "arg1", fn.Effects[0].Copy.From)

	fn, ok = lib.Lookup("dlsym")
	require.True(t, ok)
	require.NotNil(t, fn.DynamicSymbolArg)
	assert.Equal(t, 1, *fn.DynamicSymbolArg)

	_, ok = lib.Lookup("no_such_function")
	assert.False(t, ok)
}

func TestLibrary_Parse(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"valid", "functions:\n  - name: xalloc\n    returns: heap\n", ""},
		{"missing name", "functions:\n  - returns: heap\n", "without a name"},
		{"bad returns", "functions:\n  - name: f\n    returns: arg\n", "invalid returns"},
		{"bad copy target", "functions:\n  - name: f\n    effects:\n      - copy: {from: arg0, to: out}\n", "invalid copy target"},
		{"empty effect", "functions:\n  - name: f\n    effects:\n      - {}\n", "empty effect"},
		{"not yaml", "functions: [", "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewLibrary().Parse([]byte(tt.doc))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadLibrary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extra.yaml")
	require.NoError(t, os.WriteFile(path, []byte("functions:\n  - name: pool_get\n    returns: heap\n"), 0o644))

	lib, err := LoadLibrary(path)
	require.NoError(t, err)
	_, ok := lib.Lookup("pool_get")
	assert.True(t, ok)
	_, ok = lib.Lookup("malloc")
	assert.True(t, ok, "embedded summaries are kept")
	_, ok = DefaultLibrary().Lookup("pool_get")
	assert.False(t, ok, "the default library is not modified")

	_, err = LoadLibrary(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read summary file")
}
