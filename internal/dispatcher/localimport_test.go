package dispatcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-logtail/logtailcore/internal/collab"
	"github.com/open-logtail/logtailcore/internal/eventhub"
)

type fakeHistoryImporter struct {
	paths []string
	err   error
}

func (f *fakeHistoryImporter) AddHistoryFile(path string) error {
	f.paths = append(f.paths, path)
	return f.err
}

func TestLocalEventImporterEmptyPathIsNoop(t *testing.T) {
	imp := NewLocalEventImporter("")
	hub := eventhub.New(10)
	n, err := imp.Import(hub, nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestLocalEventImporterMissingFileIsNoop(t *testing.T) {
	imp := NewLocalEventImporter(filepath.Join(t.TempDir(), "missing.jsonl"))
	hub := eventhub.New(10)
	n, err := imp.Import(hub, nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestLocalEventImporterPushesAndTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	content := `{"kind":"CREATE","dir":"/var/log","name":"a.log"}
{"kind":"modify","dir":"/var/log","name":"b.log"}
garbage-not-json
{"kind":"delete","dir":"/var/log","name":"c.log"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	imp := NewLocalEventImporter(path)
	hub := eventhub.New(10)
	fake := &fakeHistoryImporter{}

	n, err := imp.Import(hub, fake)
	require.NoError(t, err)
	require.Equal(t, 3, n, "the malformed line must be skipped, not counted")

	evs := hub.Pop(10)
	require.Len(t, evs, 3)
	require.Equal(t, collab.EventCreate, evs[0].Kind)
	require.Equal(t, collab.EventModify, evs[1].Kind)
	require.Equal(t, collab.EventDelete, evs[2].Kind)

	require.Equal(t, []string{path}, fake.paths)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, data, "the staged file must be truncated after import")
}

func TestLocalEventImporterIgnoresBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("\n\n   \n"), 0o644))

	imp := NewLocalEventImporter(path)
	hub := eventhub.New(10)
	n, err := imp.Import(hub, nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestParseLocalEventKindUnknownDefaultsToModify(t *testing.T) {
	require.Equal(t, collab.EventModify, parseLocalEventKind("bogus"))
	require.Equal(t, collab.EventMoveFrom, parseLocalEventKind("MOVE_FROM"))
	require.Equal(t, collab.EventMoveTo, parseLocalEventKind("move_to"))
}
