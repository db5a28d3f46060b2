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

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the root of the agent's static configuration. It is assembled
// from a YAML file, command-line flags and environment, in that order of
// increasing precedence.
type Config struct {
	StateDir        string `yaml:"state-dir"`
	WatchConfigFile string `yaml:"watch-config-file"`
	HostIP          string `yaml:"host-ip"`

	Polling     PollingConfig     `yaml:"polling"`
	Dispatcher  DispatcherConfig  `yaml:"dispatcher"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	Reader      ReaderConfig      `yaml:"reader"`
	Logging     LoggingConfig     `yaml:"logging"`
	Debug       DebugConfig       `yaml:"debug"`
	Alarm       AlarmConfig       `yaml:"alarm"`
}

// AlarmConfig names the (project, logstore, region) triple every alarm is
// scoped to (§7) and tunes internal/alarm's rate limiter.
type AlarmConfig struct {
	Project    string        `yaml:"project"`
	Logstore   string        `yaml:"logstore"`
	Region     string        `yaml:"region"`
	Window     time.Duration `yaml:"window"`
	ResetAfter time.Duration `yaml:"reset-after"`
}

// PollingConfig tunes the directory/file walker and modify poller (C4).
type PollingConfig struct {
	RoundInterval          time.Duration `yaml:"round-interval"`
	MaxSearchDepth         int           `yaml:"max-search-depth"`
	StatCountLimitPerRound int           `yaml:"stat-count-limit-per-round"`
	UnavailableSweepRounds int           `yaml:"unavailable-sweep-rounds"`
	CacheSizeUpperBound    int           `yaml:"cache-size-upper-bound"`
	CacheTimeout           time.Duration `yaml:"cache-timeout"`
	CacheTimeoutTick       time.Duration `yaml:"cache-timeout-tick"`
	ModifyCacheCapacity    int           `yaml:"modify-cache-capacity"`
	MaxFileNotExistTimes   int           `yaml:"max-file-not-exist-times"`
	PreservedDirDepth      int           `yaml:"preserved-dir-depth"`
	CheckSymbolicLinkEvery time.Duration `yaml:"check-symbolic-link-interval"`
}

// DispatcherConfig tunes the single-threaded event loop (C8).
type DispatcherConfig struct {
	ReadEventsInterval        time.Duration `yaml:"read-events-interval"`
	LogInputThreadWaitInterval time.Duration `yaml:"log-input-thread-wait-interval"`
	CheckBlockEventInterval   time.Duration `yaml:"check-block-event-interval"`
	ReadLocalEventInterval    time.Duration `yaml:"read-local-event-interval"`
	MetricsUpdateInterval     time.Duration `yaml:"metrics-update-interval"`
	TimeoutInterval           time.Duration `yaml:"timeout-interval"`
	CheckBaseDirInterval      time.Duration `yaml:"check-base-dir-interval"`
	CheckHandlerTimeoutInterval time.Duration `yaml:"check-handler-timeout-interval"`
	DumpWatcherInterval       time.Duration `yaml:"dump-watcher-interval"`
	ClearConfigMatchInterval  time.Duration `yaml:"clear-config-match-interval"`
	MaxOpenFiles              int          `yaml:"max-open-files"`
}

// CheckpointConfig tunes both the legacy (V1) and exactly-once (V2)
// checkpoint stores (C2/C3).
type CheckpointConfig struct {
	V1DumpInterval      time.Duration `yaml:"v1-dump-interval"`
	V1SweepThreshold    time.Duration `yaml:"v1-sweep-threshold"`
	FindMaxFileCount    int           `yaml:"find-max-file-count"`

	V2Path              string        `yaml:"v2-path"`
	GCInterval          time.Duration `yaml:"gc-interval"`
	GCCandidateAge      time.Duration `yaml:"gc-candidate-age"`
	GCRatePerRound      float64       `yaml:"gc-rate-per-round"`
	GCTimeBudget        time.Duration `yaml:"gc-time-budget"`
	IncrementalScanBudget time.Duration `yaml:"incremental-scan-budget"`
	ExpiryThreshold     time.Duration `yaml:"expiry-threshold"`
	PartitionSpace      int           `yaml:"partition-space"`
}

// ReaderConfig tunes the per-file reader state machine (C7).
type ReaderConfig struct {
	BufferSize              ByteSize        `yaml:"buffer-size"`
	TailLimitBytes          int64           `yaml:"tail-limit-bytes"`
	FirstOpenPolicy         FirstOpenPolicy `yaml:"first-open-policy"`
	CloseUnusedFileTime     time.Duration   `yaml:"close-unused-file-time"`
	DelayBytesUpperLimit    int64           `yaml:"delay-bytes-upperlimit"`
	ReadDelayAlarmDuration  time.Duration   `yaml:"read-delay-alarm-duration"`
	ReadDelaySkipBytes      int64           `yaml:"read-delay-skip-bytes"`
	TruncatePosSkipBytes    int64           `yaml:"truncate-pos-skip-bytes"`
	SignatureSampleBytes    int             `yaml:"signature-sample-bytes"`
	FixLastFilePosScanBytes int64           `yaml:"fix-last-file-pos-scan-bytes"`
}

// LoggingConfig controls the agent's own operational log.
type LoggingConfig struct {
	Severity  LogSeverity             `yaml:"severity"`
	Format    string                  `yaml:"format"`
	FilePath  string                  `yaml:"file-path"`
	LogRotate LogRotateLoggingConfig  `yaml:"log-rotate"`
}

// LogRotateLoggingConfig configures gopkg.in/natefinch/lumberjack.v2.
type LogRotateLoggingConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

// DebugConfig turns on extra diagnostics.
type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
	LogMutex                 bool `yaml:"log-mutex"`
}

// BindFlags registers the command-line flags that mirror Config and binds
// them into viper, the way the teacher's generated cfg/config.go does.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("state-dir", "", "/var/lib/logtailcore", "Directory holding checkpoint and watcher state.")
	if err = viper.BindPFlag("state-dir", flagSet.Lookup("state-dir")); err != nil {
		return err
	}

	flagSet.DurationP("polling-round-interval", "", time.Second, "Interval between polling-discovery rounds.")
	if err = viper.BindPFlag("polling.round-interval", flagSet.Lookup("polling-round-interval")); err != nil {
		return err
	}

	flagSet.IntP("polling-max-search-depth", "", 5, "Maximum directory recursion depth for discovery.")
	if err = viper.BindPFlag("polling.max-search-depth", flagSet.Lookup("polling-max-search-depth")); err != nil {
		return err
	}

	flagSet.StringP("reader-buffer-size", "", "512KB", "Per-file read buffer size (10KB-1GB).")
	if err = viper.BindPFlag("reader.buffer-size", flagSet.Lookup("reader-buffer-size")); err != nil {
		return err
	}

	flagSet.StringP("logging-severity", "", "INFO", "Minimum log severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("logging-severity")); err != nil {
		return err
	}

	flagSet.BoolP("debug-invariants", "", false, "Exit when internal invariants are violated.")
	if err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug-invariants")); err != nil {
		return err
	}

	return nil
}
