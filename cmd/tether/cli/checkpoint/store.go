// Package checkpoint provides a labeled checkpoint store backed by git.
//
// A checkpoint captures the entire working tree as a commit on the
// tether/checkpoints branch, addressable by a human-readable label via a
// reference under refs/tether/labels/. Checkpoints exist so that any file's
// content "as of" a label can be recovered later, independent of the index
// or the user's own branches.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tetherhq/cli/cmd/tether/cli/paths"
	"github.com/tetherhq/cli/cmd/tether/cli/validation"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Errors returned by checkpoint operations.
var (
	// ErrLabelNotFound is returned when a checkpoint label doesn't exist.
	ErrLabelNotFound = errors.New("checkpoint label not found")

	// ErrFileNotFound is returned when a path doesn't exist in a checkpoint.
	ErrFileNotFound = errors.New("file not found in checkpoint")
)

// Store writes and reads labeled working-tree checkpoints.
type Store struct {
	repo *git.Repository
	root string
}

// Open opens the checkpoint store for the repository containing root.
func Open(root string) (*Store, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return &Store{repo: repo, root: root}, nil
}

// NewLabel builds a ref-safe checkpoint label from arbitrary parts plus a
// timestamp suffix, e.g. "turn-3-20260831T141503".
func NewLabel(parts ...string) string {
	safe := make([]string, 0, len(parts)+1)
	for _, p := range parts {
		if s := validation.SanitizeLabelPart(p); s != "" {
			safe = append(safe, s)
		}
	}
	safe = append(safe, time.Now().UTC().Format("20060102T150405"))
	return strings.Join(safe, "-")
}

// CreateLabeled snapshots the entire working tree (excluding .git and
// .tether) as a commit on the tether/checkpoints branch and points
// refs/tether/labels/<label> at it. If the tree is identical to the previous
// checkpoint the label reuses the existing commit instead of creating a new
// one.
func (s *Store) CreateLabeled(ctx context.Context, sessionID, label, message string) (plumbing.Hash, error) {
	_ = ctx // Reserved for future use (e.g., cancellation)

	if err := validation.ValidateLabel(label); err != nil {
		return plumbing.ZeroHash, err
	}

	parentHash, parentTreeHash, err := s.branchTip()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving checkpoint branch: %w", err)
	}

	files, err := s.collectWorkingTreeFiles()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("collecting working tree files: %w", err)
	}

	entries := make(map[string]object.TreeEntry, len(files))
	for _, file := range files {
		absPath := filepath.Join(s.root, filepath.FromSlash(file))
		blobHash, mode, blobErr := createBlobFromFile(s.repo, absPath)
		if blobErr != nil {
			// File may have been removed between walk and read.
			continue
		}
		entries[file] = object.TreeEntry{
			Name: file,
			Mode: mode,
			Hash: blobHash,
		}
	}

	treeHash, err := BuildTreeFromEntries(s.repo, entries)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("building tree: %w", err)
	}

	// Deduplication: if nothing changed since the last checkpoint, reuse it.
	if parentHash != plumbing.ZeroHash && treeHash == parentTreeHash {
		if err := s.setLabelRef(label, parentHash); err != nil {
			return plumbing.ZeroHash, err
		}
		return parentHash, nil
	}

	commitMsg := formatCheckpointMessage(message, label, sessionID)
	commitHash, err := s.createCommit(treeHash, parentHash, commitMsg)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("creating checkpoint commit: %w", err)
	}

	refName := plumbing.NewBranchReferenceName(paths.CheckpointBranchName)
	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(refName, commitHash)); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("updating checkpoint branch: %w", err)
	}

	if err := s.setLabelRef(label, commitHash); err != nil {
		return plumbing.ZeroHash, err
	}
	return commitHash, nil
}

// FileContent returns the byte content of a project-relative path as of the
// given checkpoint label. Returns ErrLabelNotFound if the label doesn't
// exist and ErrFileNotFound if the path wasn't present in the checkpoint.
func (s *Store) FileContent(ctx context.Context, label, relPath string) ([]byte, error) {
	_ = ctx // Reserved for future use

	commit, err := s.resolveLabel(label)
	if err != nil {
		return nil, err
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint tree: %w", err)
	}

	file, err := tree.File(paths.Normalize(relPath))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("reading file from checkpoint: %w", err)
	}

	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening blob reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	return data, nil
}

// HasLabel reports whether the given checkpoint label exists.
func (s *Store) HasLabel(label string) bool {
	_, err := s.resolveLabel(label)
	return err == nil
}

// resolveLabel resolves a label reference to its checkpoint commit.
func (s *Store) resolveLabel(label string) (*object.Commit, error) {
	if err := validation.ValidateLabel(label); err != nil {
		return nil, err
	}

	ref, err := s.repo.Reference(plumbing.ReferenceName(paths.LabelRefPrefix+label), true)
	if err != nil {
		return nil, ErrLabelNotFound
	}

	commit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint commit: %w", err)
	}
	return commit, nil
}

func (s *Store) setLabelRef(label string, hash plumbing.Hash) error {
	ref := plumbing.NewHashReference(plumbing.ReferenceName(paths.LabelRefPrefix+label), hash)
	if err := s.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("setting label ref: %w", err)
	}
	return nil
}

// branchTip returns (tipHash, tipTreeHash). Both are zero when the
// checkpoint branch doesn't exist yet.
func (s *Store) branchTip() (plumbing.Hash, plumbing.Hash, error) {
	refName := plumbing.NewBranchReferenceName(paths.CheckpointBranchName)
	ref, err := s.repo.Reference(refName, true)
	if err != nil {
		return plumbing.ZeroHash, plumbing.ZeroHash, nil
	}

	commit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return plumbing.ZeroHash, plumbing.ZeroHash, fmt.Errorf("reading branch tip commit: %w", err)
	}
	return ref.Hash(), commit.TreeHash, nil
}

// createCommit creates a commit object pointing at treeHash.
func (s *Store) createCommit(treeHash, parentHash plumbing.Hash, message string) (plumbing.Hash, error) {
	name, email := authorFromRepo(s.repo)
	now := time.Now()
	sig := object.Signature{Name: name, Email: email, When: now}

	commit := &object.Commit{
		TreeHash:  treeHash,
		Author:    sig,
		Committer: sig,
		Message:   message,
	}
	if parentHash != plumbing.ZeroHash {
		commit.ParentHashes = []plumbing.Hash{parentHash}
	}

	obj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encoding commit: %w", err)
	}

	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("storing commit: %w", err)
	}
	return hash, nil
}

// authorFromRepo retrieves git user.name and user.email from the repository
// config, with defaults so checkpoints work in unconfigured environments.
func authorFromRepo(repo *git.Repository) (name, email string) {
	cfg, err := repo.Config()
	if err == nil {
		name = cfg.User.Name
		email = cfg.User.Email
	}
	if name == "" {
		name = "Tether"
	}
	if email == "" {
		email = "tether@local"
	}
	return name, email
}

func formatCheckpointMessage(message, label, sessionID string) string {
	var sb strings.Builder
	sb.WriteString(message)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "%s: %s\n", paths.LabelTrailerKey, label)
	if sessionID != "" {
		fmt.Fprintf(&sb, "%s: %s\n", paths.SessionTrailerKey, sessionID)
	}
	return sb.String()
}

// collectWorkingTreeFiles collects all files under the store root.
// Excludes .git/ and .tether/ directories.
func (s *Store) collectWorkingTreeFiles() ([]string, error) {
	var files []string
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // Skip filesystem errors during walk
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil //nolint:nilerr // Skip paths we can't make relative
		}
		relPath = filepath.ToSlash(relPath)

		if info.IsDir() {
			if paths.IsInternal(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if paths.IsInternal(relPath) || !info.Mode().IsRegular() {
			return nil
		}

		files = append(files, relPath)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking working tree: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

// createBlobFromFile creates a blob object from a file in the working tree.
func createBlobFromFile(repo *git.Repository, filePath string) (plumbing.Hash, filemode.FileMode, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return plumbing.ZeroHash, 0, fmt.Errorf("stat file: %w", err)
	}

	mode := filemode.Regular
	if info.Mode()&0o111 != 0 {
		mode = filemode.Executable
	}

	data, err := os.ReadFile(filePath) //nolint:gosec // path is repo-relative, resolved by caller
	if err != nil {
		return plumbing.ZeroHash, 0, fmt.Errorf("read file: %w", err)
	}

	hash, err := CreateBlobFromContent(repo, data)
	if err != nil {
		return plumbing.ZeroHash, 0, err
	}
	return hash, mode, nil
}

// CreateBlobFromContent stores raw bytes as a git blob and returns its hash.
func CreateBlobFromContent(repo *git.Repository, content []byte) (plumbing.Hash, error) {
	obj := repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("creating blob writer: %w", err)
	}
	if _, err := writer.Write(content); err != nil {
		_ = writer.Close()
		return plumbing.ZeroHash, fmt.Errorf("writing blob: %w", err)
	}
	if err := writer.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("closing blob writer: %w", err)
	}

	hash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("storing blob: %w", err)
	}
	return hash, nil
}
