// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package archive unpacks packaged plugins into their working directories.
//
// A packaged plugin is a zip file named <name>.plugin. It extracts into the
// sibling directory <name>, whatever name the manifest inside declares.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
)

// Extension is the filename extension of packaged plugins.
const Extension = ".plugin"

// CodeExtractionError is the error code for any extraction failure.
const CodeExtractionError = "EXTRACTION_ERROR"

// maxEntrySize bounds a single extracted file.
const maxEntrySize = 1 << 30

// ErrExtraction wraps an extraction failure for archive.
func ErrExtraction(archive string, cause error) error {
	return oops.Code(CodeExtractionError).
		In("archive").
		With("archive", archive).
		Wrapf(cause, "failed to extract plugin archive")
}

// WorkingDir returns the directory archive extracts into: the archive path
// with its extension removed.
func WorkingDir(archive string) string {
	return strings.TrimSuffix(archive, filepath.Ext(archive))
}

// NameOf returns the working directory name for archive.
func NameOf(archive string) string {
	return filepath.Base(WorkingDir(archive))
}

// Extract unpacks archive into WorkingDir(archive), replacing whatever was
// there. Extraction happens in a staging directory first; on failure the
// staging directory is discarded and the existing working directory is left
// as it was.
func Extract(archive string) (string, error) {
	dest := WorkingDir(archive)
	if dest == archive {
		return "", ErrExtraction(archive, errors.New("archive has no extension"))
	}

	r, err := zip.OpenReader(archive)
	if err != nil {
		return "", ErrExtraction(archive, err)
	}
	defer func() { _ = r.Close() }()

	staging, err := os.MkdirTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".extract-")
	if err != nil {
		return "", ErrExtraction(archive, err)
	}

	if err := extractAll(&r.Reader, staging); err != nil {
		_ = os.RemoveAll(staging)
		return "", ErrExtraction(archive, err)
	}

	if err := os.RemoveAll(dest); err != nil {
		_ = os.RemoveAll(staging)
		return "", ErrExtraction(archive, err)
	}
	if err := os.Rename(staging, dest); err != nil {
		_ = os.RemoveAll(staging)
		return "", ErrExtraction(archive, err)
	}

	return dest, nil
}

func extractAll(r *zip.Reader, root string) error {
	for _, f := range r.File {
		if err := extractEntry(f, root); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}

func extractEntry(f *zip.File, root string) error {
	target, err := entryPath(root, f.Name)
	if err != nil {
		return err
	}

	mode := f.Mode()
	switch {
	case mode.IsDir():
		return os.MkdirAll(target, 0o750)
	case mode&os.ModeSymlink != 0:
		return errors.New("symbolic links are not allowed")
	case !mode.IsRegular():
		return fmt.Errorf("unsupported entry type %s", mode.Type())
	}

	if f.UncompressedSize64 > maxEntrySize {
		return fmt.Errorf("entry exceeds %d bytes", maxEntrySize)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	//nolint:gosec // target is confined to root by entryPath
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm()|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(rc, maxEntrySize)); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// entryPath resolves name under root and rejects entries that would land
// outside it.
func entryPath(root, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("invalid entry name %q", name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q escapes the extraction directory", name)
	}
	return target, nil
}
