package cfg

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestV1CheckpointPath(t *testing.T) {
	c := GetDefaultConfig()
	c.StateDir = "/var/lib/logtailcore"
	require.Equal(t, filepath.Join("/var/lib/logtailcore", "logtail_check_point"), V1CheckpointPath(&c))
}

func TestV2CheckpointPath(t *testing.T) {
	c := GetDefaultConfig()
	c.StateDir = "/var/lib/logtailcore"
	c.Checkpoint.V2Path = "checkpoint_v2"
	require.Equal(t, filepath.Join("/var/lib/logtailcore", "checkpoint_v2"), V2CheckpointPath(&c))
}
