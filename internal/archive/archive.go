// Package archive packs directory trees into gzip-compressed tar files.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// Error wraps every failure while building an archive.
type Error struct {
	Src string
	Out string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("archive %s -> %s: %v", e.Src, e.Out, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Directory writes srcDir as a tar.gz to outPath, replacing any existing file.
// With a rootName every entry is nested under rootName/; without one the
// contents of srcDir sit at the archive root. Only directories and regular
// files are archived.
func Directory(srcDir, outPath, rootName string) (err error) {
	wrap := func(e error) error { return &Error{Src: srcDir, Out: outPath, Err: e} }

	info, err := os.Stat(srcDir)
	if err != nil {
		return wrap(fmt.Errorf("source directory: %w", err))
	}
	if !info.IsDir() {
		return wrap(fmt.Errorf("source %s is not a directory", srcDir))
	}
	if err := os.Remove(outPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return wrap(fmt.Errorf("remove previous archive: %w", err))
	}

	root, err := filepath.EvalSymlinks(srcDir)
	if err != nil {
		return wrap(err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return wrap(err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = wrap(cerr)
		}
	}()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	if err := writeTree(tw, root, rootName); err != nil {
		return wrap(err)
	}
	if err := tw.Close(); err != nil {
		return wrap(err)
	}
	if err := gz.Close(); err != nil {
		return wrap(err)
	}
	return nil
}

func writeTree(tw *tar.Writer, srcDir, rootName string) error {
	return filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if name == "." {
			if rootName == "" {
				return nil
			}
			name = ""
		}
		if rootName != "" {
			name = path.Join(rootName, name)
		}

		switch {
		case d.IsDir():
			return writeEntry(tw, p, name+"/", d)
		case d.Type().IsRegular():
			return writeEntry(tw, p, name, d)
		default:
			return nil
		}
	})
}

func writeEntry(tw *tar.Writer, p, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("header %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	src, err := os.Open(p)
	if err != nil {
		return err
	}
	defer src.Close()
	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("copy %s: %w", name, err)
	}
	return nil
}
