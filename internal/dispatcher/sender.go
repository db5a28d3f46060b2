package dispatcher

import (
	"context"

	"github.com/open-logtail/logtailcore/internal/collab"
	"github.com/open-logtail/logtailcore/internal/logger"
)

// LoggingSender is the default collab.SenderBus: the downstream send
// pipeline is explicitly out of scope (spec.md §1), so this just logs the
// record count and reports success, letting the agent run end-to-end
// without a real collector attached. Production wiring replaces this with
// a concrete SenderBus over the out-of-scope pipeline; only the feedback
// contract (SendResult) is this core's concern.
type LoggingSender struct{}

var _ collab.SenderBus = LoggingSender{}

func (LoggingSender) Send(_ context.Context, configName string, records [][]byte) (collab.SendResult, error) {
	n := 0
	for _, r := range records {
		n += len(r)
	}
	logger.Debugf("dispatcher: sender stand-in delivered %d record(s), %d bytes, config=%s", len(records), n, configName)
	return collab.SendOK, nil
}
