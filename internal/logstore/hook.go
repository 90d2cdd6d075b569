package logstore

import (
	"os"

	"github.com/sirupsen/logrus"
)

const appendFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY

// Hook mirrors every logger entry into a Store.
type Hook struct {
	Store *Store
}

func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hook) Fire(e *logrus.Entry) error {
	var fields map[string]any
	if len(e.Data) > 0 {
		fields = make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			fields[k] = v
		}
	}
	h.Store.Append(Entry{
		Timestamp: e.Time,
		Level:     e.Level.String(),
		Message:   e.Message,
		Fields:    fields,
	})
	return nil
}
