package account

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// FSAssets stores binary assets under a root directory on the local
// filesystem.
type FSAssets struct {
	root string
}

var _ AssetStore = (*FSAssets)(nil)

// NewFSAssets creates a filesystem-backed asset store rooted at dir
func NewFSAssets(dir string) *FSAssets {
	return &FSAssets{root: dir}
}

// Save writes content under prefix and returns the stored path relative to
// the root. Filenames are uniquified so concurrent uploads never clobber one
// another.
func (a *FSAssets) Save(ctx context.Context, prefix, filename string, content io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	key := assetKey(prefix, filename)

	full := filepath.Join(a.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to create asset directory")
	}

	f, err := os.Create(full)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to create asset file")
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to write asset file")
	}

	return key, nil
}

// Remove deletes a stored asset. A path that is already gone is success.
func (a *FSAssets) Remove(ctx context.Context, assetPath string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if assetPath == "" {
		return nil
	}

	err := os.Remove(filepath.Join(a.root, filepath.FromSlash(assetPath)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to remove asset file")
	}

	return nil
}

// assetKey builds "<prefix>/<uuid>_<basename>". The uuid keeps repeated
// uploads of the same filename distinct.
func assetKey(prefix, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	return path.Join(prefix, uuid.New().String()+"_"+base)
}
