package stage

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is a compressed archive format.
type Kind string

const (
	KindUnknown Kind = ""
	KindGzip    Kind = "gzip"
	KindBzip2   Kind = "bzip2"
	KindXz      Kind = "xz"
	KindZstd    Kind = "zstd"
)

var suffixKinds = []struct {
	suffix string
	kind   Kind
}{
	{".tar.gz", KindGzip},
	{".tgz", KindGzip},
	{".gz", KindGzip},
	{".tar.bz2", KindBzip2},
	{".tbz2", KindBzip2},
	{".bz2", KindBzip2},
	{".tar.xz", KindXz},
	{".txz", KindXz},
	{".xz", KindXz},
	{".tar.zst", KindZstd},
	{".tzst", KindZstd},
	{".zst", KindZstd},
}

var mimeKinds = map[string]Kind{
	"application/gzip":    KindGzip,
	"application/x-bzip2": KindBzip2,
	"application/x-xz":    KindXz,
	"application/zstd":    KindZstd,
}

// DetectKind classifies an artifact by suffix, then by content.
func DetectKind(path string) Kind {
	if kind := kindFromSuffix(path); kind != KindUnknown {
		return kind
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return KindUnknown
	}
	for m := mtype; m != nil; m = m.Parent() {
		if kind, ok := mimeKinds[m.String()]; ok {
			return kind
		}
	}
	return KindUnknown
}

func kindFromSuffix(path string) Kind {
	lower := strings.ToLower(path)
	for _, s := range suffixKinds {
		if strings.HasSuffix(lower, s.suffix) {
			return s.kind
		}
	}
	return KindUnknown
}

// tarFlags returns the decompression flag for tar -x.
func tarFlags(kind Kind) []string {
	switch kind {
	case KindGzip:
		return []string{"-xzf"}
	case KindBzip2:
		return []string{"-xjf"}
	case KindXz:
		return []string{"-xJf"}
	case KindZstd:
		return []string{"--zstd", "-xf"}
	}
	return nil
}
