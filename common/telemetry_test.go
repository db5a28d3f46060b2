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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinShutdownFuncRunsAllAndJoinsErrors(t *testing.T) {
	var calledA, calledB bool
	errA := errors.New("a failed")

	fn := JoinShutdownFunc(
		func(ctx context.Context) error { calledA = true; return errA },
		nil,
		func(ctx context.Context) error { calledB = true; return nil },
	)

	err := fn(context.Background())
	require.True(t, calledA)
	require.True(t, calledB)
	require.ErrorIs(t, err, errA)
}

func TestJoinShutdownFuncNoErrorsReturnsNil(t *testing.T) {
	fn := JoinShutdownFunc(
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return nil },
	)
	require.NoError(t, fn(context.Background()))
}

func TestMetricAttrString(t *testing.T) {
	a := &MetricAttr{Key: "config", Value: "app"}
	require.Equal(t, "Key: config, Value: app", a.String())
}
