// Package snapshot implements the undo boundary as plain directory copies.
// A snapshot is taken before every write-class tool call; reverting swaps
// the workspace contents back. Copies are crude but have no dependency on
// the workspace being a repository.
package snapshot

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/introspectai/learnloop/pkg/core"
	"github.com/introspectai/learnloop/pkg/errors"
	"github.com/introspectai/learnloop/pkg/logging"
)

// Store keeps workspace snapshots under a directory outside the workspace.
type Store struct {
	workspace string
	baseDir   string
	logger    *logging.Logger
}

// NewStore creates a snapshot store for the given workspace. An empty
// baseDir gets a fresh temp directory; it must not live inside the
// workspace or snapshots would snowball.
func NewStore(workspace, baseDir string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}
	if baseDir == "" {
		dir, err := os.MkdirTemp("", "learnloop-snapshots-")
		if err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "could not create snapshot directory")
		}
		baseDir = dir
	}

	absWorkspace, err := filepath.Abs(workspace)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "invalid workspace path")
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "invalid snapshot base path")
	}
	if rel, err := filepath.Rel(absWorkspace, absBase); err == nil && !strings.HasPrefix(rel, "..") {
		return nil, errors.New(errors.InvalidInput, "snapshot directory must live outside the workspace")
	}

	return &Store{workspace: absWorkspace, baseDir: absBase, logger: logger}, nil
}

// Snapshot copies the workspace and returns the snapshot id.
func (s *Store) Snapshot(ctx context.Context) (string, error) {
	if err := errors.CheckContext(ctx, "snapshot"); err != nil {
		return "", err
	}

	id := uuid.New().String()
	target := filepath.Join(s.baseDir, id)
	if err := copyTree(s.workspace, target); err != nil {
		os.RemoveAll(target)
		return "", errors.Wrap(err, errors.Unknown, "snapshot copy failed")
	}

	s.logger.Debug(ctx, "snapshot %s taken", id)
	return id, nil
}

// Revert restores the workspace to a previous snapshot. The snapshot
// itself is kept, so the same id can be reverted to again.
func (s *Store) Revert(ctx context.Context, id string) error {
	if err := errors.CheckContext(ctx, "revert"); err != nil {
		return err
	}

	source := filepath.Join(s.baseDir, id)
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		return errors.WithFields(errors.New(errors.ResourceNotFound, "unknown snapshot"),
			errors.Fields{"snapshot_id": id})
	}

	if err := clearDir(s.workspace); err != nil {
		return errors.Wrap(err, errors.Unknown, "could not clear workspace for revert")
	}
	if err := copyTree(source, s.workspace); err != nil {
		return errors.Wrap(err, errors.Unknown, "revert copy failed")
	}

	s.logger.Info(ctx, "workspace reverted to snapshot %s", id)
	return nil
}

// Cleanup removes every stored snapshot.
func (s *Store) Cleanup() error {
	return os.RemoveAll(s.baseDir)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

var _ core.SnapshotStore = (*Store)(nil)
