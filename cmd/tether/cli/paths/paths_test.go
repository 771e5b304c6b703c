package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelAndAbsRoundTrip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	abs := filepath.Join(root, "internal", "server", "main.go")
	rel := Rel(root, abs)
	assert.Equal(t, "internal/server/main.go", rel)
	assert.Equal(t, abs, Abs(root, rel))
}

func TestRelOutsideRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	other := t.TempDir()

	assert.Empty(t, Rel(root, filepath.Join(other, "file.go")))
	assert.Empty(t, Rel(root, filepath.Dir(root)))
}

func TestRelPassesThroughRelativePaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a/b.go", Rel("/repo", "a/b.go"))
	assert.Equal(t, "a/b.go", Rel("/repo", "./a/b.go"))
}

func TestAbsKeepsAbsolutePaths(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	abs := filepath.Join(root, "x.go")
	assert.Equal(t, abs, Abs(root, abs))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "a/b.go", want: "a/b.go"},
		{name: "dot_prefix", input: "./a/b.go", want: "a/b.go"},
		{name: "single_file", input: "main.go", want: "main.go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestIsInternal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "tether_dir", path: ".tether", want: true},
		{name: "tether_file", path: ".tether/settings.json", want: true},
		{name: "git_dir", path: ".git", want: true},
		{name: "git_file", path: ".git/index", want: true},
		{name: "regular_file", path: "main.go", want: false},
		{name: "tether_prefix_but_not_dir", path: ".tetherfile", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsInternal(tt.path))
		})
	}
}
