package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// LogrusCollector is a logrus hook that counts log entries by level and
// service prefix.
type LogrusCollector struct {
	counterVec *prometheus.CounterVec
}

var supportedLevels = []logrus.Level{logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel}

const (
	prefixKey     = "prefix"
	defaultPrefix = "global"
)

// NewLogrusCollector register internal metrics and return an logrus hook to collect log counters.
// This function can be called only once, if called more than once it will panic because of an
// attempt to register the counter vector twice.
func NewLogrusCollector() *LogrusCollector {
	counterVec := promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "log_entries_total",
		Help: "Total number of log messages.",
	}, []string{"level", prefixKey})
	return &LogrusCollector{
		counterVec: counterVec,
	}
}

// Fire is called on every log call.
func (hook *LogrusCollector) Fire(entry *logrus.Entry) error {
	prefix := defaultPrefix
	if prefixValue, ok := entry.Data[prefixKey]; ok {
		prefix = prefixValue.(string)
	}
	hook.counterVec.WithLabelValues(entry.Level.String(), prefix).Inc()
	return nil
}

// Levels return the supported log levels.
func (hook *LogrusCollector) Levels() []logrus.Level {
	return supportedLevels
}
