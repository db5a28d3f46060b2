package reader

import (
	"errors"
	"io"
	"os"

	"github.com/open-logtail/logtailcore/internal/fileid"
)

// SignatureOutcome classifies the result of a signature-and-offset check,
// per spec.md §4.6.3.
type SignatureOutcome int

const (
	// SignatureNormal: signature unchanged, file-size >= last-offset.
	SignatureNormal SignatureOutcome = iota
	// SignatureTruncatedOrReplaced: the stored signature no longer matches
	// the file's current first line — content was truncated and rewritten,
	// or entirely replaced.
	SignatureTruncatedOrReplaced
	// SignatureInPlaceTruncated: signature still matches (the file's first
	// line survived) but file-size has shrunk below last-offset.
	SignatureInPlaceTruncated
)

// fileStater is the minimal handle CheckFileSignatureAndOffset needs:
// os.File satisfies it directly, and tests can substitute an in-memory
// fake without touching a real filesystem.
type fileStater interface {
	io.ReaderAt
	Stat() (os.FileInfo, error)
}

// CheckFileSignatureAndOffset implements spec.md §4.6.3's
// check-file-signature-and-offset: read the first sampleBytes of f,
// compute its (length, hash) signature over the first line, and compare
// against stored to classify what happened to the file since last-offset
// was last advanced.
func CheckFileSignatureAndOffset(f fileStater, sampleBytes int, lastOffset int64, stored fileid.Signature) (outcome SignatureOutcome, current fileid.Signature, fileSize int64, err error) {
	sample := make([]byte, sampleBytes)
	n, rerr := f.ReadAt(sample, 0)
	if rerr != nil && rerr != io.EOF {
		return SignatureNormal, fileid.Signature{}, 0, rerr
	}
	current = fileid.ComputeSignature(sample[:n])

	info, serr := f.Stat()
	if serr != nil {
		return SignatureNormal, current, 0, serr
	}
	fileSize = info.Size()

	switch {
	case !current.Equal(stored):
		return SignatureTruncatedOrReplaced, current, fileSize, nil
	case fileSize < lastOffset:
		return SignatureInPlaceTruncated, current, fileSize, nil
	default:
		return SignatureNormal, current, fileSize, nil
	}
}

// ErrDeviceInodeSearchDisabled names the case of rotation recovery with no
// searcher wired. Nothing in this package returns it: RecoverRotatedPath
// reports a nil searcher as not found.
var ErrDeviceInodeSearchDisabled = errors.New("reader: device-inode rotation search unavailable")

// RotationSearcher is the subset of internal/checkpoint/v1.Store the
// reader needs for rotation recovery, kept as an interface here so reader
// package tests don't have to depend on v1's bbolt-free but still
// filesystem-backed Store.
type RotationSearcher interface {
	SearchByDeviceInode(dir string, maxDepth, maxFileCount int, want fileid.DeviceInode, cache map[string]fileid.DeviceInode) (string, bool)
}

// RecoverRotatedPath implements the "rotation with device-inode change"
// half of spec.md §4.6.3: when the stored real path no longer resolves to
// the file's original device-inode, ask searcher to relocate it under dir.
func RecoverRotatedPath(searcher RotationSearcher, dir string, maxDepth, maxFileCount int, want fileid.DeviceInode) (string, bool) {
	if searcher == nil {
		return "", false
	}
	return searcher.SearchByDeviceInode(dir, maxDepth, maxFileCount, want, nil)
}
