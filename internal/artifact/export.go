package artifact

import (
	"archive/tar"
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// Export writes the tree at srcDir to dest. A dest ending in ".zip" becomes
// a zip archive, ".tar.xz" an xz-compressed tarball; anything else is
// treated as a directory and merged with CopyTree.
func Export(srcDir, dest string) error {
	switch {
	case strings.HasSuffix(dest, ".zip"):
		return zipDir(srcDir, dest)
	case strings.HasSuffix(dest, ".tar.xz"):
		return tarXzDir(srcDir, dest)
	}
	return CopyTree(srcDir, dest)
}

// zipDir creates a zip archive at dest from the contents of srcDir.
func zipDir(srcDir, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	w := zip.NewWriter(f)
	err = walkFiles(srcDir, func(rel string, info os.FileInfo, r io.Reader) error {
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		writer, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		_, err = io.Copy(writer, r)
		return err
	})
	if err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// tarXzDir creates an xz-compressed tar archive at dest from srcDir.
func tarXzDir(srcDir, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	xw, err := xz.NewWriter(f)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(xw)
	err = walkFiles(srcDir, func(rel string, info os.FileInfo, r io.Reader) error {
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		_, err = io.Copy(tw, r)
		return err
	})
	if err != nil {
		tw.Close()
		xw.Close()
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return xw.Close()
}

// walkFiles calls fn for every regular file under root with its path
// relative to root.
func walkFiles(root string, fn func(rel string, info os.FileInfo, r io.Reader) error) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		return fn(rel, info, file)
	})
}
