package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Init configures the global logrus instance. JSON output so log collectors
// can index the component/connection/run fields the pipeline attaches.
func Init(level logrus.Level) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)
}

// For returns a log entry scoped to one component of the pipeline.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
