package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitializeDisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Settings{DebugMode: false}))

	_, err := os.Stat(filepath.Join(dir, "logs"))
	require.True(t, os.IsNotExist(err))

	l := Get(CategoryRecalc)
	l.Info("should not panic even though disabled")
}

func TestInitializeEnabledWritesCategoryFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Settings{DebugMode: true, Level: "debug"}))

	l := Get(CategoryRecalc)
	l.Info("recalc run started for version=%s", "v1")

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var found bool
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			found = true
		}
	}
	require.True(t, found)
}

func TestIsCategoryEnabledRespectsFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Settings{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"recalc": true, "draft": false},
	}))

	require.True(t, IsCategoryEnabled(CategoryRecalc))
	require.False(t, IsCategoryEnabled(CategoryDraft))
	require.True(t, IsCategoryEnabled(CategoryRisk))
}
