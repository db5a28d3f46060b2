// Copyright 2024 Google Inc. All Rights Reserved.
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

package cfg

// Reader buffer size bounds (§4.6: tunable 10KB-1GB, default 512KB).
const (
	MinReaderBufferSize     ByteSize = 10 * byteSizeKB
	DefaultReaderBufferSize ByteSize = 512 * byteSizeKB
	MaxReaderBufferSize     ByteSize = byteSizeGB
)

// Exactly-once partition space: range checkpoints' hash-keys are spread
// across this many logical buckets (§3 Range checkpoint).
const DefaultPartitionSpace = 512

// checkpoint_find_max_file_count default (§3 boundary behavior: M+1 cache
// entries when the search is exhausted without a match).
const DefaultFindMaxFileCount = 500
