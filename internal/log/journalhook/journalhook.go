// Package journalhook adapts logrus to the systemd journal via
// github.com/coreos/go-systemd/v22/journal, the same library the teacher
// uses for readiness notification.
package journalhook

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/sirupsen/logrus"
)

// Hook forwards every logrus entry to journal.Send.
type Hook struct{}

// New returns a Hook, or nil if the journal isn't reachable (not running
// under systemd, or /run/systemd/journal/socket doesn't exist) — in which
// case the caller should skip AddHook entirely rather than eat every
// Send's error.
func New() *Hook {
	if !journal.Enabled() {
		return nil
	}
	return &Hook{}
}

func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hook) Fire(entry *logrus.Entry) error {
	vars := make(map[string]string, len(entry.Data))
	for k, v := range entry.Data {
		vars[k] = toString(v)
	}
	return journal.Send(entry.Message, toPriority(entry.Level), vars)
}

func toPriority(level logrus.Level) journal.Priority {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return journal.PriEmerg
	case logrus.ErrorLevel:
		return journal.PriErr
	case logrus.WarnLevel:
		return journal.PriWarning
	case logrus.InfoLevel:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", v)
}
