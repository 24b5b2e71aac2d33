package logging

import "go.uber.org/zap"

// Leveled adapts a zap logger to the key/value leveled interface used by
// HTTP client libraries such as go-retryablehttp.
type Leveled struct {
	sugar *zap.SugaredLogger
}

// NewLeveled wraps logger. A nil logger discards output.
func NewLeveled(logger *zap.Logger) *Leveled {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Leveled{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *Leveled) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *Leveled) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *Leveled) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *Leveled) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}
