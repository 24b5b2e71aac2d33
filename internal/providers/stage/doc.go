/*
Package stage turns downloaded artifacts into staged component trees.

Archives are recognised by suffix (.tar.gz/.tgz/.gz, .tar.bz2/.tbz2/.bz2,
.tar.xz/.txz/.xz, .tar.zst) and, failing that, by content. Extraction runs the
tar binary by default; ModeNative unpacks gzip, bzip2 and zstd tarballs
in-process and still hands xz to tar. Artifacts that are not archives are
copied verbatim into the destination directory.

Output goes to "<dest>.staging" and is renamed onto dest once complete, so an
existing dest directory always means a finished staging and is skipped.
Extraction is bounded by Config.Timeout; on expiry the tar process is killed
and the partial tree removed.
*/
package stage
