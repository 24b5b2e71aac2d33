package testutil

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Entry is one file in a generated tarball. A non-empty Link makes it a
// symlink.
type Entry struct {
	Body []byte
	Mode int64
	Link string
}

// TarGz builds a gzip-compressed tarball from files keyed by path.
func TarGz(t *testing.T, files map[string]Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	writeTar(t, gz, files)
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// TarZst builds a zstd-compressed tarball from files keyed by path.
func TarZst(t *testing.T, files map[string]Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	writeTar(t, zw, files)
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	return buf.Bytes()
}

// Files is shorthand for regular-file entries.
func Files(contents map[string]string) map[string]Entry {
	out := make(map[string]Entry, len(contents))
	for name, body := range contents {
		out[name] = Entry{Body: []byte(body)}
	}
	return out
}

// WriteFile writes data under dir and returns the full path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func writeTar(t *testing.T, w interface{ Write([]byte) (int, error) }, files map[string]Entry) {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	for _, name := range names {
		e := files[name]
		mode := e.Mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{Name: name, Mode: mode, Size: int64(len(e.Body)), Typeflag: tar.TypeReg}
		if e.Link != "" {
			hdr = &tar.Header{Name: name, Mode: 0o777, Linkname: e.Link, Typeflag: tar.TypeSymlink}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", name, err)
		}
		if e.Link == "" {
			if _, err := tw.Write(e.Body); err != nil {
				t.Fatalf("tar write %s: %v", name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
}
