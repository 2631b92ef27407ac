package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// WriteDirectory writes a ZIP archive of srcDir to w, laid out the way
// "zip -r - <base>" run from the parent directory lays it out: entry names
// start with the base name of srcDir and use forward slashes, and every
// directory, srcDir included, gets an entry with a trailing slash. If srcDir is
// a regular file, the archive holds that single file under its base name.
func WriteDirectory(w io.Writer, srcDir string) error {
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("source does not exist: %w", err)
	}

	zw := zip.NewWriter(w)

	if !info.IsDir() {
		if err := addFile(zw, srcDir, info.Name(), info); err != nil {
			return err
		}
		return zw.Close()
	}

	base := info.Name()
	err = filepath.WalkDir(srcDir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, file)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("reading file info for %s: %w", file, err)
		}

		name := path.Join(base, filepath.ToSlash(relPath))
		if d.IsDir() {
			hdr, err := zip.FileInfoHeader(info)
			if err != nil {
				return fmt.Errorf("creating header for %s: %w", name, err)
			}
			hdr.Name = name + "/"
			_, err = zw.CreateHeader(hdr)
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return addFile(zw, file, name, info)
	})
	if err != nil {
		return fmt.Errorf("adding files to zip: %w", err)
	}

	return zw.Close()
}

func addFile(zw *zip.Writer, path, name string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("creating header for %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("creating zip entry %s: %w", name, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(entry, f); err != nil {
		return fmt.Errorf("compressing %s: %w", name, err)
	}
	return nil
}
