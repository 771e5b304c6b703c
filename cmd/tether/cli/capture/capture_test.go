package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetherhq/cli/cmd/tether/cli/checkpoint"
	"github.com/tetherhq/cli/cmd/tether/cli/testutil"
)

func TestChainOrderFirstNonEmptyWins(t *testing.T) {
	t.Parallel()

	chain := NewChain(
		Static("mirror", "a.go", "mirror content"),
		SourceFunc("disk", func(context.Context, string) (string, bool) {
			return "disk content", true
		}),
	)

	content, source, ok := chain.Resolve(context.Background(), "a.go")
	require.True(t, ok)
	assert.Equal(t, "mirror content", content)
	assert.Equal(t, "mirror", source)
}

func TestChainSkipsEmptyResults(t *testing.T) {
	t.Parallel()

	chain := NewChain(
		Static("mirror", "a.go", ""),
		SourceFunc("disk", func(context.Context, string) (string, bool) {
			return "", true
		}),
		SourceFunc("last-known", func(context.Context, string) (string, bool) {
			return "old content", true
		}),
	)

	content, source, ok := chain.Resolve(context.Background(), "a.go")
	require.True(t, ok)
	assert.Equal(t, "old content", content)
	assert.Equal(t, "last-known", source)
}

func TestChainAllSourcesFail(t *testing.T) {
	t.Parallel()

	chain := NewChain(
		Static("mirror", "other.go", "content"),
		SourceFunc("disk", func(context.Context, string) (string, bool) {
			return "", false
		}),
	)

	_, _, ok := chain.Resolve(context.Background(), "a.go")
	assert.False(t, ok)
}

func TestDiskSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFile(t, dir, "pkg/file.go", "package pkg\n")

	content, _, ok := NewChain(Disk(dir)).Resolve(context.Background(), "pkg/file.go")
	require.True(t, ok)
	assert.Equal(t, "package pkg\n", content)

	_, _, ok = NewChain(Disk(dir)).Resolve(context.Background(), "missing.go")
	assert.False(t, ok)
}

func TestCheckpointSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.InitRepo(t, dir)
	testutil.WriteFile(t, dir, "a.go", "original\n")
	testutil.CommitAll(t, dir, "initial")

	store, err := checkpoint.Open(dir)
	require.NoError(t, err)
	_, err = store.CreateLabeled(context.Background(), "s", "cap-test", "checkpoint")
	require.NoError(t, err)

	// The agent overwrites the file after the checkpoint was taken.
	testutil.WriteFile(t, dir, "a.go", "overwritten\n")

	label := "cap-test"
	src := Checkpoint(store, func() string { return label })

	content, _, ok := NewChain(src).Resolve(context.Background(), "a.go")
	require.True(t, ok)
	assert.Equal(t, "original\n", content)

	// No label yet: source must decline, not error.
	label = ""
	_, _, ok = NewChain(src).Resolve(context.Background(), "a.go")
	assert.False(t, ok)
}
