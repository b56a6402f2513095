// Package locate enumerates candidate artifacts under a local or remote tree.
package locate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/internal/logging"
	"github.com/pipecorr/pipecorr/schema"
)

// ErrNoArtifacts is returned when a tree holds no recognized artifact.
// An empty tree almost always means a wrong root path.
var ErrNoArtifacts = errors.New("no candidate artifacts found")

// recognizedSuffixes are the file endings the locator keeps.
var recognizedSuffixes = []string{".nii.gz", ".nii", ".csv", ".tsv", ".txt", ".1D"}

// VolumetricSuffix is what remote listings filter on.
const VolumetricSuffix = ".nii"

// IsRecognized reports whether a file name carries a recognized extension.
func IsRecognized(name string) bool {
	for _, suffix := range recognizedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Walk walks a local tree and returns every recognized file as an absolute,
// slash-separated path, in lexical order.
func Walk(ctx context.Context, root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !IsRecognized(d.Name()) {
			return nil
		}
		paths = append(paths, filepath.ToSlash(path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	slices.Sort(paths)
	return paths, nil
}

// Locate returns the candidate artifacts of a tree, dispatching on its scheme.
// Remote roots need a lister. Paths matching an exclude pattern are dropped.
func Locate(ctx context.Context, root string, lister contract.TreeLister, excludes []string) ([]string, error) {
	var (
		paths []string
		err   error
	)
	if schema.IsRemote(root) {
		if lister == nil {
			return nil, fmt.Errorf("remote tree %s needs an object store client", root)
		}
		paths, err = lister.List(ctx, root)
	} else {
		paths, err = Walk(ctx, root)
	}
	if err != nil {
		return nil, err
	}

	kept := make([]string, 0, len(paths))
	for _, p := range paths {
		if !contract.ShouldIgnore(p, excludes) {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoArtifacts, root)
	}

	logging.New("locate").Debug("located artifacts", "root", root, "count", len(kept), "excluded", len(paths)-len(kept))
	return kept, nil
}
