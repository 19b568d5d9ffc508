package bootctx

import "github.com/rs/zerolog"

// ZeroLogger adapts a zerolog.Logger to the Logger interface, the way the
// pack's CLI tools hand a configured zerolog.Logger down into library code
// through a narrow interface rather than importing zerolog directly in
// every package.
type ZeroLogger struct {
	Log zerolog.Logger
}

func (z ZeroLogger) Debugf(format string, args ...any) { z.Log.Debug().Msgf(format, args...) }
func (z ZeroLogger) Infof(format string, args ...any)  { z.Log.Info().Msgf(format, args...) }
func (z ZeroLogger) Warnf(format string, args ...any)  { z.Log.Warn().Msgf(format, args...) }

var _ Logger = ZeroLogger{}
