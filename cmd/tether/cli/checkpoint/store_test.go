package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetherhq/cli/cmd/tether/cli/testutil"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	testutil.InitRepo(t, dir)
	testutil.WriteFile(t, dir, "main.go", "package main\n")
	testutil.CommitAll(t, dir, "initial")

	store, err := Open(dir)
	require.NoError(t, err)
	return store, dir
}

func TestCreateLabeledAndReadBack(t *testing.T) {
	t.Parallel()

	store, dir := newTestStore(t)
	ctx := context.Background()

	testutil.WriteFile(t, dir, "lib/util.go", "package lib\n\nfunc Util() {}\n")

	_, err := store.CreateLabeled(ctx, "sess-1", "turn-1-test", "checkpoint before turn 1")
	require.NoError(t, err)

	content, err := store.FileContent(ctx, "turn-1-test", "lib/util.go")
	require.NoError(t, err)
	assert.Equal(t, "package lib\n\nfunc Util() {}\n", string(content))

	// Content is frozen at checkpoint time.
	testutil.WriteFile(t, dir, "lib/util.go", "changed\n")
	content, err = store.FileContent(ctx, "turn-1-test", "lib/util.go")
	require.NoError(t, err)
	assert.Equal(t, "package lib\n\nfunc Util() {}\n", string(content))
}

func TestFileContentMissingPath(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateLabeled(ctx, "sess-1", "turn-1-missing", "checkpoint")
	require.NoError(t, err)

	_, err = store.FileContent(ctx, "turn-1-missing", "does/not/exist.go")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestFileContentUnknownLabel(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	_, err := store.FileContent(context.Background(), "no-such-label", "main.go")
	assert.ErrorIs(t, err, ErrLabelNotFound)
}

func TestCreateLabeledDeduplicatesIdenticalTrees(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreateLabeled(ctx, "sess-1", "label-a", "first")
	require.NoError(t, err)

	// Same tree: label must resolve, commit must be reused.
	second, err := store.CreateLabeled(ctx, "sess-1", "label-b", "second")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, store.HasLabel("label-a"))
	assert.True(t, store.HasLabel("label-b"))
}

func TestCreateLabeledExcludesInternalDirs(t *testing.T) {
	t.Parallel()

	store, dir := newTestStore(t)
	ctx := context.Background()

	testutil.WriteFile(t, dir, ".tether/settings.json", "{}\n")

	_, err := store.CreateLabeled(ctx, "sess-1", "turn-internal", "checkpoint")
	require.NoError(t, err)

	_, err = store.FileContent(ctx, "turn-internal", ".tether/settings.json")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestCreateLabeledRejectsBadLabel(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	_, err := store.CreateLabeled(context.Background(), "sess-1", "bad/label", "checkpoint")
	assert.Error(t, err)
}

func TestNewLabelIsRefSafe(t *testing.T) {
	t.Parallel()

	label := NewLabel("reject", "lib/util.go")
	assert.NotContains(t, label, "/")
	assert.Contains(t, label, "reject")
	assert.Contains(t, label, "lib-util-go")
}
