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

import "time"

// GetDefaultLoggingConfig returns the default configuration that is to be
// used during application startup, before the provided configuration has
// been parsed.
func GetDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Severity: InfoLogSeverity,
		Format:   "json",
		LogRotate: LogRotateLoggingConfig{
			BackupFileCount: 10,
			Compress:        true,
			MaxFileSizeMb:   512,
		},
	}
}

// GetDefaultPollingConfig returns the defaults for C4 (§4.3).
func GetDefaultPollingConfig() PollingConfig {
	return PollingConfig{
		RoundInterval:          time.Second,
		MaxSearchDepth:         5,
		StatCountLimitPerRound: 100000,
		UnavailableSweepRounds: 20,
		CacheSizeUpperBound:    500000,
		CacheTimeout:           12 * time.Hour,
		CacheTimeoutTick:       600 * time.Second,
		ModifyCacheCapacity:    500000,
		MaxFileNotExistTimes:   10,
		PreservedDirDepth:      -1,
		CheckSymbolicLinkEvery: 120 * time.Second,
	}
}

// GetDefaultDispatcherConfig returns the defaults for C8 (§4.5).
func GetDefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		ReadEventsInterval:          20 * time.Millisecond,
		LogInputThreadWaitInterval:  20 * time.Millisecond,
		CheckBlockEventInterval:     3 * time.Second,
		ReadLocalEventInterval:      10 * time.Second,
		MetricsUpdateInterval:       40 * time.Second,
		TimeoutInterval:             60 * time.Second,
		CheckBaseDirInterval:        10 * time.Second,
		CheckHandlerTimeoutInterval: 20 * time.Second,
		DumpWatcherInterval:         10 * time.Minute,
		ClearConfigMatchInterval:    5 * time.Minute,
		MaxOpenFiles:                500,
	}
}

// GetDefaultCheckpointConfig returns the defaults for C2/C3 (§4.1, §4.2).
func GetDefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		V1DumpInterval:        10 * time.Second,
		V1SweepThreshold:      6 * time.Hour,
		FindMaxFileCount:      DefaultFindMaxFileCount,
		V2Path:                "checkpoint_v2",
		GCInterval:            60 * time.Second,
		GCCandidateAge:        30 * time.Minute,
		GCRatePerRound:        0.1,
		GCTimeBudget:          500 * time.Millisecond,
		IncrementalScanBudget: 100 * time.Millisecond,
		ExpiryThreshold:       6 * time.Hour,
		PartitionSpace:        DefaultPartitionSpace,
	}
}

// GetDefaultReaderConfig returns the defaults for C7 (§4.6).
func GetDefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		BufferSize:              DefaultReaderBufferSize,
		TailLimitBytes:          1 << 20,
		FirstOpenPolicy:         PolicyBackwardToFixedPosition,
		CloseUnusedFileTime:     5 * time.Minute,
		DelayBytesUpperLimit:    200 << 20,
		ReadDelayAlarmDuration:  time.Minute,
		ReadDelaySkipBytes:      0,
		TruncatePosSkipBytes:    0,
		SignatureSampleBytes:    1024,
		FixLastFilePosScanBytes: 128 << 10,
	}
}

// GetDefaultAlarmConfig returns the defaults for the alarm rate limiter.
func GetDefaultAlarmConfig() AlarmConfig {
	return AlarmConfig{
		Window:     time.Minute,
		ResetAfter: 10 * time.Minute,
	}
}

// GetDefaultConfig assembles every section's defaults, mirroring the
// teacher's per-section Get*Default* functions.
func GetDefaultConfig() Config {
	return Config{
		StateDir:   "/var/lib/logtailcore",
		Polling:    GetDefaultPollingConfig(),
		Dispatcher: GetDefaultDispatcherConfig(),
		Checkpoint: GetDefaultCheckpointConfig(),
		Reader:     GetDefaultReaderConfig(),
		Logging:    GetDefaultLoggingConfig(),
		Alarm:      GetDefaultAlarmConfig(),
	}
}
