// Package alarm rate-limits the agent's operational alarms so a file stuck
// in a tight failure loop (permission denied, repeated truncation, a
// runaway config reload) logs its category once per window instead of
// flooding internal/logger. Grounded on the sliding-window category limiter
// from the retrieved joeycumines-go-utilpkg pack (catrate), reused here
// rather than reimplemented by hand.
package alarm

import (
	"fmt"
	"time"

	catrate "github.com/joeycumines/go-catrate"

	"github.com/open-logtail/logtailcore/internal/logger"
)

// Category names a stable alarm kind (not a free-text message), per §7's
// "alarms carry a stable category and the (project, logstore, region)
// triple" requirement.
type Category string

const (
	CategoryOpenFileFailed    Category = "OPEN_FILE_FAIL_ALARM"
	CategoryReadLogFailed     Category = "LOG_ALARM"
	CategoryRotateDetected    Category = "LOG_ROTATE_ALARM"
	CategoryMultilineTimeout  Category = "MULTI_LINE_TIMEOUT_ALARM"
	CategoryEncodingConvert   Category = "ENCODING_CONVERT_ALARM"
	CategoryCheckpointInvalid Category = "CHECKPOINT_INVALID_ALARM"
	CategoryDiscoveryOverflow Category = "DISCOVERY_OVERFLOW_ALARM"
	CategorySenderBackoff     Category = "SENDER_BACKOFF_ALARM"
	CategoryTopicExtract      Category = "TOPIC_EXTRACT_ALARM"
	CategoryReadDelay         Category = "READ_LOG_DELAY_ALARM"
)

// Dims is the (project, logstore, region) triple an alarm is scoped to.
type Dims struct {
	Project  string
	Logstore string
	Region   string
}

func (d Dims) key(c Category) string {
	return fmt.Sprintf("%s|%s|%s|%s", c, d.Project, d.Logstore, d.Region)
}

// Manager emits rate-limited alarms: at most one logged occurrence of a
// given (category, dims) pair per window, regardless of how many times
// Fire is called.
type Manager struct {
	limiter *catrate.Limiter
}

// NewManager builds a Manager that allows at most one alarm per category+
// dims pair per window. resetAfter is accepted but not used.
func NewManager(window, resetAfter time.Duration) *Manager {
	return &Manager{
		limiter: catrate.NewLimiter(map[time.Duration]int{
			window: 1,
		}),
		// resetAfter is not passed to catrate: catrate derives its
		// own cleanup retention from the configured rates, so an idle
		// category is already forgotten once `window` elapses without use.
	}
}

// Fire logs detail under category/dims if the rate limiter admits it;
// otherwise it is silently dropped. Returns true if the alarm was logged.
func (m *Manager) Fire(category Category, dims Dims, detail string) bool {
	if _, ok := m.limiter.Allow(dims.key(category)); !ok {
		return false
	}
	logger.Alarm(string(category), dims.Project, dims.Logstore, dims.Region, time.Now(), detail)
	return true
}
