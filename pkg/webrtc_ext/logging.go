package webrtc_ext

import (
	"github.com/pion/logging"
	"github.com/sirupsen/logrus"
)

// Routes pion's internal logs to logrus. pion logs a lot at its lower levels, so trace and debug
// both end up at logrus' trace level and info at debug.
type LoggerFactory struct {
	logger *logrus.Entry
}

func NewLoggerFactory(logger *logrus.Entry) *LoggerFactory {
	return &LoggerFactory{logger: logger}
}

func (f *LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{logger: f.logger.WithField("scope", scope)}
}

type leveledLogger struct {
	logger *logrus.Entry
}

func (l *leveledLogger) Trace(msg string)                          { l.logger.Trace(msg) }
func (l *leveledLogger) Tracef(format string, args ...interface{}) { l.logger.Tracef(format, args...) }
func (l *leveledLogger) Debug(msg string)                          { l.logger.Trace(msg) }
func (l *leveledLogger) Debugf(format string, args ...interface{}) { l.logger.Tracef(format, args...) }
func (l *leveledLogger) Info(msg string)                           { l.logger.Debug(msg) }
func (l *leveledLogger) Infof(format string, args ...interface{})  { l.logger.Debugf(format, args...) }
func (l *leveledLogger) Warn(msg string)                           { l.logger.Warn(msg) }
func (l *leveledLogger) Warnf(format string, args ...interface{})  { l.logger.Warnf(format, args...) }
func (l *leveledLogger) Error(msg string)                          { l.logger.Error(msg) }
func (l *leveledLogger) Errorf(format string, args ...interface{}) { l.logger.Errorf(format, args...) }
