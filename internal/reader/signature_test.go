package reader

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-logtail/logtailcore/internal/fileid"
)

type fakeFile struct {
	data []byte
}

func (f *fakeFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *fakeFile) Stat() (os.FileInfo, error) {
	return fakeFileInfo{size: int64(len(f.data))}, nil
}

type fakeFileInfo struct{ size int64 }

func (fi fakeFileInfo) Name() string       { return "fake" }
func (fi fakeFileInfo) Size() int64        { return fi.size }
func (fi fakeFileInfo) Mode() os.FileMode  { return 0 }
func (fi fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (fi fakeFileInfo) IsDir() bool        { return false }
func (fi fakeFileInfo) Sys() any           { return nil }

func TestCheckFileSignatureAndOffsetNormal(t *testing.T) {
	f := &fakeFile{data: []byte("line1\nline2\nline3\n")}
	sig := fileid.ComputeSignature([]byte("line1\n"))

	outcome, cur, size, err := CheckFileSignatureAndOffset(f, 1024, 6, sig)
	require.NoError(t, err)
	assert.Equal(t, SignatureNormal, outcome)
	assert.Equal(t, sig, cur)
	assert.Equal(t, int64(len(f.data)), size)
}

func TestCheckFileSignatureAndOffsetTruncatedOrReplaced(t *testing.T) {
	f := &fakeFile{data: []byte("newfirstline\nrest\n")}
	stale := fileid.ComputeSignature([]byte("line1\n"))

	outcome, cur, _, err := CheckFileSignatureAndOffset(f, 1024, 1000, stale)
	require.NoError(t, err)
	assert.Equal(t, SignatureTruncatedOrReplaced, outcome)
	assert.NotEqual(t, stale, cur)
}

func TestCheckFileSignatureAndOffsetInPlaceTruncation(t *testing.T) {
	f := &fakeFile{data: []byte("line1\n")}
	sig := fileid.ComputeSignature([]byte("line1\n"))

	outcome, _, size, err := CheckFileSignatureAndOffset(f, 1024, 1000, sig)
	require.NoError(t, err)
	assert.Equal(t, SignatureInPlaceTruncated, outcome)
	assert.Equal(t, int64(6), size)
}

type stubRotationSearcher struct {
	path  string
	found bool
}

func (s stubRotationSearcher) SearchByDeviceInode(dir string, maxDepth, maxFileCount int, want fileid.DeviceInode, cache map[string]fileid.DeviceInode) (string, bool) {
	return s.path, s.found
}

func TestRecoverRotatedPathDelegatesToSearcher(t *testing.T) {
	path, ok := RecoverRotatedPath(stubRotationSearcher{path: "/var/log/app.log", found: true}, "/var/log", 3, 500, fileid.DeviceInode{Device: 1, Inode: 2})
	assert.True(t, ok)
	assert.Equal(t, "/var/log/app.log", path)
}

func TestRecoverRotatedPathNilSearcherReturnsNotFound(t *testing.T) {
	_, ok := RecoverRotatedPath(nil, "/var/log", 3, 500, fileid.DeviceInode{})
	assert.False(t, ok)
}
