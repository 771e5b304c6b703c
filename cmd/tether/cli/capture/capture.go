// Package capture resolves "what did this file contain right before it
// changed" through an ordered chain of fallback sources.
//
// The order is load-bearing: the live mirror is consulted before disk so
// that an agent write racing the observation never has its new content read
// back as the "before" state. Disk comes before the checkpoint store because
// checkpoints are taken once per turn and can predate later edits. The
// cross-turn last-known cache is the fallback of last resort, mainly for
// deletions of files no other channel ever saw.
package capture

import (
	"context"
	"errors"
	"os"

	"github.com/tetherhq/cli/cmd/tether/cli/checkpoint"
	"github.com/tetherhq/cli/cmd/tether/cli/paths"
)

// Source resolves a file's content from a single channel.
// relPath is project-relative with forward slashes.
type Source interface {
	Name() string
	Content(ctx context.Context, relPath string) (string, bool)
}

// Chain tries each source in order and keeps the first successful,
// non-empty result.
type Chain struct {
	sources []Source
}

// NewChain builds a chain over the given sources, tried in order.
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

// Resolve returns the first successful non-empty content for relPath along
// with the name of the source that produced it.
func (c *Chain) Resolve(ctx context.Context, relPath string) (content, source string, ok bool) {
	for _, s := range c.sources {
		got, found := s.Content(ctx, relPath)
		if found && got != "" {
			return got, s.Name(), true
		}
	}
	return "", "", false
}

// funcSource adapts a function to the Source interface.
type funcSource struct {
	name string
	fn   func(ctx context.Context, relPath string) (string, bool)
}

func (f funcSource) Name() string { return f.name }

func (f funcSource) Content(ctx context.Context, relPath string) (string, bool) {
	return f.fn(ctx, relPath)
}

// SourceFunc wraps fn as a named Source.
func SourceFunc(name string, fn func(ctx context.Context, relPath string) (string, bool)) Source {
	return funcSource{name: name, fn: fn}
}

// Static returns a source that serves fixed content for a single path.
// Used to carry a watcher mirror value observed before a change.
func Static(name, relPath, content string) Source {
	return funcSource{name: name, fn: func(_ context.Context, p string) (string, bool) {
		if p != relPath || content == "" {
			return "", false
		}
		return content, true
	}}
}

// Disk reads the file's current content from the working tree under root.
func Disk(root string) Source {
	return funcSource{name: "disk", fn: func(_ context.Context, relPath string) (string, bool) {
		data, err := os.ReadFile(paths.Abs(root, relPath))
		if err != nil {
			return "", false
		}
		return string(data), true
	}}
}

// Checkpoint reads byte content as of the checkpoint label supplied by
// label(). The indirection exists because the label is taken at turn start,
// after the chain is constructed.
func Checkpoint(store *checkpoint.Store, label func() string) Source {
	return funcSource{name: "checkpoint", fn: func(ctx context.Context, relPath string) (string, bool) {
		if store == nil {
			return "", false
		}
		l := label()
		if l == "" {
			return "", false
		}
		data, err := store.FileContent(ctx, l, relPath)
		if err != nil {
			if !errors.Is(err, checkpoint.ErrFileNotFound) && !errors.Is(err, checkpoint.ErrLabelNotFound) {
				return "", false
			}
			return "", false
		}
		return string(data), true
	}}
}

// LastKnown serves content recorded at the end of an earlier turn.
func LastKnown(lookup func(relPath string) (string, bool)) Source {
	return funcSource{name: "last-known", fn: func(_ context.Context, relPath string) (string, bool) {
		return lookup(relPath)
	}}
}
