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
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// LogSeverity represents the logging severity and can accept the following
// values: "TRACE", "DEBUG", "INFO", "WARNING", "ERROR", "OFF".
type LogSeverity string

// Constants for all supported log severities.
const (
	TraceLogSeverity   LogSeverity = "TRACE"
	DebugLogSeverity   LogSeverity = "DEBUG"
	InfoLogSeverity    LogSeverity = "INFO"
	WarningLogSeverity LogSeverity = "WARNING"
	ErrorLogSeverity   LogSeverity = "ERROR"
	OffLogSeverity     LogSeverity = "OFF"
)

// severityRanking maps each level to an integer for validation and comparison.
var severityRanking = map[LogSeverity]int{
	TraceLogSeverity:   0,
	DebugLogSeverity:   1,
	InfoLogSeverity:    2,
	WarningLogSeverity: 3,
	ErrorLogSeverity:   4,
	OffLogSeverity:     5,
}

func (l *LogSeverity) UnmarshalText(text []byte) error {
	level := LogSeverity(strings.ToUpper(string(text)))
	if _, ok := severityRanking[level]; !ok {
		return fmt.Errorf("invalid log severity level: %s. Must be one of [TRACE, DEBUG, INFO, WARNING, ERROR, OFF]", text)
	}
	*l = level
	return nil
}

// Rank returns the integer representation of the severity rank.
// Returns -1 if the severity is unknown.
func (l LogSeverity) Rank() int {
	if rank, ok := severityRanking[l]; ok {
		return rank
	}
	return -1
}

// ByteSize is a data-size quantity (e.g. the reader buffer size) that
// accepts suffixed textual forms like "512KB", "10MB", "1GB" in config/flags.
type ByteSize int64

const (
	byteSizeKB = 1024
	byteSizeMB = 1024 * byteSizeKB
	byteSizeGB = 1024 * byteSizeMB
)

func (b *ByteSize) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(strings.ToUpper(string(text)))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		mult, s = byteSizeGB, strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		mult, s = byteSizeMB, strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		mult, s = byteSizeKB, strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", text, err)
	}
	*b = ByteSize(v * mult)
	return nil
}

func (b ByteSize) String() string {
	return strconv.FormatInt(int64(b), 10) + "B"
}

// Encoding names the text encoding a watched file is assumed to use.
type Encoding string

const (
	EncodingUTF8 Encoding = "utf8"
	EncodingGBK  Encoding = "gbk"
)

func (e *Encoding) UnmarshalText(text []byte) error {
	v := Encoding(strings.ToLower(string(text)))
	if !slices.Contains([]Encoding{EncodingUTF8, EncodingGBK}, v) {
		return fmt.Errorf("invalid encoding value: %s. It can only accept values in the list: [utf8 gbk]", text)
	}
	*e = v
	return nil
}

// FirstOpenPolicy selects how a reader picks its initial read offset the
// first time it sees a file.
type FirstOpenPolicy string

const (
	// PolicyBackwardToFixedPosition starts tail-limit bytes from EOF (or 0).
	PolicyBackwardToFixedPosition FirstOpenPolicy = "backward-fixed"
	// PolicyBackwardToBootTime binary-searches for the first record at/after
	// process boot time.
	PolicyBackwardToBootTime FirstOpenPolicy = "backward-boot-time"
	// PolicyBackwardToBeginning always starts at offset 0.
	PolicyBackwardToBeginning FirstOpenPolicy = "backward-beginning"
)

func (p *FirstOpenPolicy) UnmarshalText(text []byte) error {
	v := FirstOpenPolicy(strings.ToLower(string(text)))
	all := []FirstOpenPolicy{PolicyBackwardToFixedPosition, PolicyBackwardToBootTime, PolicyBackwardToBeginning}
	if !slices.Contains(all, v) {
		return fmt.Errorf("invalid first-open policy: %s. Must be one of %v", text, all)
	}
	*p = v
	return nil
}
