package diag

import (
	"github.com/sirupsen/logrus"
)

// LogrusObserver forwards events to a logrus.FieldLogger (tool
// resolutions and optional-tool absences at debug level, discovery
// failures at warn, cache events at trace), mirroring the teacher's
// MysqlAudit: a thin adapter that turns discrete domain events into
// structured log lines without the caller needing to know the event
// shape.
type LogrusObserver struct {
	Log logrus.FieldLogger
}

// NewLogrusObserver wraps log, or logrus.StandardLogger() if log is nil.
func NewLogrusObserver(log logrus.FieldLogger) *LogrusObserver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogrusObserver{Log: log}
}

func (o *LogrusObserver) ToolResolved(tool, path, variant string, overridden bool) {
	o.Log.WithFields(logrus.Fields{
		"tool":       tool,
		"path":       path,
		"variant":    variant,
		"overridden": overridden,
	}).Debug("shellspark: tool resolved")
}

func (o *LogrusObserver) ToolMissing(tool string, err error) {
	entry := o.Log.WithField("tool", tool)
	if err != nil {
		entry.WithField("error", err).Warn("shellspark: tool unavailable")
		return
	}
	entry.Debug("shellspark: tool absent, falling back")
}

func (o *LogrusObserver) CacheEvent(event string, planHash uint64) {
	o.Log.WithFields(logrus.Fields{
		"event": event,
		"plan":  planHash,
	}).Trace("shellspark: cache event")
}
