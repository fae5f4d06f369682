package temporal

import "go.uber.org/zap"

// ZapAdapter bridges Temporal's keyval logger interface onto zap. The SDK
// hands keyvals variadically, so the sugared logger is the natural fit.
type ZapAdapter struct{ *zap.SugaredLogger }

// NewZapAdapter wraps a zap logger for use as the Temporal client logger.
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	// Skip one caller frame so log sites point at SDK callers, not here.
	return &ZapAdapter{logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (z *ZapAdapter) Debug(msg string, keyvals ...interface{}) { z.Debugw(msg, keyvals...) }
func (z *ZapAdapter) Info(msg string, keyvals ...interface{})  { z.Infow(msg, keyvals...) }
func (z *ZapAdapter) Warn(msg string, keyvals ...interface{})  { z.Warnw(msg, keyvals...) }
func (z *ZapAdapter) Error(msg string, keyvals ...interface{}) { z.Errorw(msg, keyvals...) }
