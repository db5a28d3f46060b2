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

import "fmt"

func isValidLogRotateConfig(config *LogRotateLoggingConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be at least 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (retain all) or positive")
	}
	return nil
}

func isValidReaderConfig(c *ReaderConfig) error {
	if c.BufferSize < MinReaderBufferSize || c.BufferSize > MaxReaderBufferSize {
		return fmt.Errorf("reader.buffer-size must be between %s and %s", MinReaderBufferSize, MaxReaderBufferSize)
	}
	if c.TailLimitBytes < 0 {
		return fmt.Errorf("reader.tail-limit-bytes must be non-negative")
	}
	return nil
}

func isValidCheckpointConfig(c *CheckpointConfig) error {
	if c.PartitionSpace <= 0 {
		return fmt.Errorf("checkpoint.partition-space must be positive")
	}
	if c.GCRatePerRound <= 0 || c.GCRatePerRound > 1 {
		return fmt.Errorf("checkpoint.gc-rate-per-round must be in (0, 1]")
	}
	if c.FindMaxFileCount <= 0 {
		return fmt.Errorf("checkpoint.find-max-file-count must be positive")
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	if err := isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}
	if err := isValidReaderConfig(&config.Reader); err != nil {
		return fmt.Errorf("error parsing reader config: %w", err)
	}
	if err := isValidCheckpointConfig(&config.Checkpoint); err != nil {
		return fmt.Errorf("error parsing checkpoint config: %w", err)
	}
	if config.StateDir == "" {
		return fmt.Errorf("state-dir must not be empty")
	}
	return nil
}
