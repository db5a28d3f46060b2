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

// Rationalize updates the config fields based on the values of other
// fields, after flags/YAML have been unmarshalled but before validation.
func Rationalize(c *Config) error {
	if c.Debug.LogMutex {
		c.Logging.Severity = TraceLogSeverity
	}

	if c.Reader.BufferSize < MinReaderBufferSize {
		c.Reader.BufferSize = MinReaderBufferSize
	} else if c.Reader.BufferSize > MaxReaderBufferSize {
		c.Reader.BufferSize = MaxReaderBufferSize
	}

	if c.Checkpoint.PartitionSpace == 0 {
		c.Checkpoint.PartitionSpace = DefaultPartitionSpace
	}

	// PreservedDirDepth < 0 means "use max-search-depth", matching the
	// §4.3.3 semantics of files at or below the configured root depth never
	// ageing out early.
	if c.Polling.PreservedDirDepth < 0 {
		c.Polling.PreservedDirDepth = c.Polling.MaxSearchDepth
	}

	return nil
}
