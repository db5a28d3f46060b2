// Copyright 2024 Google LLC
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

import "path/filepath"

// V1CheckpointPath returns the path to the legacy (V1) checkpoint file
// under the agent's state directory (§6 Persisted state layout).
func V1CheckpointPath(c *Config) string {
	return filepath.Join(c.StateDir, "logtail_check_point")
}

// V2CheckpointPath returns the path to the embedded KV store directory
// backing the exactly-once (V2) checkpoint store.
func V2CheckpointPath(c *Config) string {
	return filepath.Join(c.StateDir, c.Checkpoint.V2Path)
}
