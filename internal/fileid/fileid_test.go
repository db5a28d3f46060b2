package fileid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeviceInodeCompareOrdersByDeviceThenInode(t *testing.T) {
	a := DeviceInode{Device: 1, Inode: 5}
	b := DeviceInode{Device: 1, Inode: 9}
	c := DeviceInode{Device: 2, Inode: 1}

	require.Negative(t, a.Compare(b))
	require.Positive(t, b.Compare(a))
	require.Zero(t, a.Compare(a))
	require.Negative(t, b.Compare(c))
	require.Positive(t, c.Compare(a))
}

func TestDeviceInodeZero(t *testing.T) {
	require.True(t, Zero.IsZero())
	require.False(t, DeviceInode{Device: 1}.IsZero())
}

func TestDeviceInodeString(t *testing.T) {
	require.Equal(t, "1:2", DeviceInode{Device: 1, Inode: 2}.String())
}

func TestComputeSignatureUsesOnlyFirstLine(t *testing.T) {
	sig1 := ComputeSignature([]byte("line1\nline2\nline3\n"))
	sig2 := ComputeSignature([]byte("line1\nXXXXXXXXX\n"))
	require.True(t, sig1.Equal(sig2), "signature must depend only on the first line")
	require.EqualValues(t, len("line1\n"), sig1.Length)
}

func TestComputeSignatureNoTrailingNewlineUsesWholeSample(t *testing.T) {
	sig := ComputeSignature([]byte("no newline here"))
	require.EqualValues(t, len("no newline here"), sig.Length)
}

func TestComputeSignatureDiffersOnContentChange(t *testing.T) {
	sig1 := ComputeSignature([]byte("hello\n"))
	sig2 := ComputeSignature([]byte("world\n"))
	require.False(t, sig1.Equal(sig2))
}

func TestFromFileInfoMatchesSameFileTwice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	info1, err := os.Stat(path)
	require.NoError(t, err)
	info2, err := os.Stat(path)
	require.NoError(t, err)

	id1 := FromFileInfo(info1)
	id2 := FromFileInfo(info2)
	require.False(t, id1.IsZero())
	require.Equal(t, id1, id2)
}

func TestFromFileInfoDiffersAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.log")
	pathB := filepath.Join(dir, "b.log")
	require.NoError(t, os.WriteFile(pathA, []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("hi"), 0o644))

	infoA, err := os.Stat(pathA)
	require.NoError(t, err)
	infoB, err := os.Stat(pathB)
	require.NoError(t, err)

	idA := FromFileInfo(infoA)
	idB := FromFileInfo(infoB)
	require.NotEqual(t, idA, idB)
}
