package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/3leaps/bucketscan/internal/config"
)

// writeBuckets creates one directory per bucket under a temp root, each
// holding files of the given sizes.
func writeBuckets(t *testing.T, buckets map[string][]int) string {
	t.Helper()
	root := t.TempDir()
	for name, sizes := range buckets {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for i, size := range sizes {
			path := filepath.Join(dir, "obj-"+string(rune('a'+i))+".bin")
			require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
		}
	}
	return root
}

// fileConfig loads a configuration using the file provider at root.
func fileConfig(t *testing.T, root string, overrides map[string]any) *config.Config {
	t.Helper()
	base := map[string]any{
		"provider": "file",
		"local":    map[string]any{"root": root},
	}
	cfg, err := config.Load(context.Background(), "", base, overrides)
	require.NoError(t, err)
	return cfg
}
