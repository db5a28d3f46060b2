// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileThenReadFileRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("placeholder"), 0o600))

	require.NoError(t, WriteFile(path, "hello world"))

	content, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(content))
}

func TestWriteFileMissingFileReturnsError(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing.txt"), "x")
	require.Error(t, err)
}

func TestReadFileMissingFileReturnsError(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestCloseFileOnAlreadyOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	f, err := os.Open(path)
	require.NoError(t, err)
	CloseFile(f)
}
