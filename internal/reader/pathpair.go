// Package reader implements the per-file reader state machine (C7): the
// component that owns a file descriptor, tracks signature/offset, handles
// rotation, truncation and symlink changes, and emits record-aligned
// buffers (including multiline merging). Grounded throughout on spec.md
// §4.6 and the teacher's os.File-centric style in fs/fstesting.
package reader

// PathPair is the "SplitedFilePath"-style logical/real path split named in
// SPEC_FULL.md's supplemented features: LogicalPath is the configured
// (possibly symlinked) path a reader was discovered under; RealPath is the
// path that currently resolves to the same underlying file once symlinks
// are followed. They diverge exactly when LogicalPath is, or sits under, a
// symlink, and are kept separate so a checkpoint can record both: the
// stable name an operator configured, and the concrete file currently
// backing it.
type PathPair struct {
	LogicalPath string
	RealPath    string
}

// NewPathPair builds a pair where both halves start out equal; RealPath is
// updated independently once a symlink resolution or rotation search
// finds a different backing path.
func NewPathPair(logical string) PathPair {
	return PathPair{LogicalPath: logical, RealPath: logical}
}

// WithRealPath returns a copy of p with RealPath replaced.
func (p PathPair) WithRealPath(real string) PathPair {
	p.RealPath = real
	return p
}

// IsSplit reports whether the logical and real paths have diverged.
func (p PathPair) IsSplit() bool {
	return p.LogicalPath != p.RealPath
}
