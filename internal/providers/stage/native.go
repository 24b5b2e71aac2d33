package stage

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var errEscapesRoot = errors.New("entry escapes staging directory")

// extractNative unpacks a compressed tarball in-process.
func extractNative(ctx context.Context, kind Kind, artifact, dir string) error {
	file, err := os.Open(artifact)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader
	switch kind {
	case KindGzip:
		gz, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	case KindZstd:
		zr, err := zstd.NewReader(file)
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	case KindBzip2:
		r = bzip2.NewReader(file)
	default:
		return fmt.Errorf("no in-process extractor for %s", kind)
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		target, err := within(root, header.Name)
		if err != nil {
			return fmt.Errorf("%s: %w", header.Name, err)
		}

		if err := writeEntry(root, target, header, tr); err != nil {
			return fmt.Errorf("%s: %w", header.Name, err)
		}
	}
}

func writeEntry(root, target string, header *tar.Header, tr io.Reader) error {
	mode := os.FileMode(header.Mode).Perm()

	switch header.Typeflag {
	case tar.TypeDir:
		if err := safeParent(root, target); err != nil {
			return err
		}
		return os.MkdirAll(target, mode|0o700)

	case tar.TypeReg:
		if err := safeParent(root, target); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		// An earlier entry may have left a symlink at this path.
		_ = os.Remove(target)
		out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		return out.Close()

	case tar.TypeSymlink:
		if err := safeParent(root, target); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		// Absolute links are kept verbatim: root filesystems point at
		// paths that resolve inside the guest, not on this host.
		_ = os.Remove(target)
		return os.Symlink(header.Linkname, target)

	case tar.TypeLink:
		source, err := within(root, header.Linkname)
		if err != nil {
			return err
		}
		if err := safeParent(root, target); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Link(source, target)
	}

	// Device nodes, fifos and the like are not needed by staged components.
	return nil
}

// within joins name under root and rejects paths that leave it.
func within(root, name string) (string, error) {
	target := filepath.Join(root, name)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", errEscapesRoot
	}
	return target, nil
}

// safeParent rejects writes whose nearest existing ancestor resolves,
// through previously extracted symlinks, outside root.
func safeParent(root, target string) error {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}

	dir := filepath.Dir(target)
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			if resolved != resolvedRoot && !strings.HasPrefix(resolved, resolvedRoot+string(os.PathSeparator)) {
				return errEscapesRoot
			}
			return nil
		}
		if !os.IsNotExist(err) {
			return err
		}
		if len(dir) <= len(root) {
			return nil
		}
		dir = filepath.Dir(dir)
	}
}
