package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"

	"github.com/open-logtail/logtailcore/internal/collab"
)

func TestTranslateMapsFsnotifyOpsToEventKinds(t *testing.T) {
	cases := []struct {
		op   fsnotify.Op
		kind collab.EventKind
	}{
		{fsnotify.Create, collab.EventCreate},
		{fsnotify.Write, collab.EventModify},
		{fsnotify.Remove, collab.EventDelete},
		{fsnotify.Rename, collab.EventMoveFrom},
		{fsnotify.Chmod, collab.EventModify},
	}
	for _, tc := range cases {
		ev := translate(fsnotify.Event{Name: "/var/log/app.log", Op: tc.op})
		require.Equal(t, tc.kind, ev.Kind)
		require.Equal(t, "/var/log", ev.Dir)
		require.Equal(t, "app.log", ev.Name)
	}
}

func TestDirWatcherReportsRealFileEvents(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDirWatcher()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add(dir))

	events := w.Events()
	path := filepath.Join(dir, "new.log")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	select {
	case ev := <-events:
		require.Equal(t, "new.log", ev.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("did not observe a filesystem event for the created file")
	}
}
