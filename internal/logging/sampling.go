package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore samples each configured level independently. Levels
// without a configuration, and error and above, pass through unsampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled || len(cfg.Levels) == 0 {
		return core
	}

	cores := []zapcore.Core{
		&levelFilterCore{Core: core, enabled: func(l zapcore.Level) bool {
			_, sampled := cfg.Levels[l]
			return !sampled || l >= zapcore.ErrorLevel
		}},
	}
	for level, rate := range cfg.Levels {
		if level >= zapcore.ErrorLevel {
			continue
		}
		only := level
		filtered := &levelFilterCore{Core: core, enabled: func(l zapcore.Level) bool {
			return l == only
		}}
		cores = append(cores, zapcore.NewSamplerWithOptions(filtered, cfg.Tick, rate.Initial, rate.Thereafter))
	}
	return zapcore.NewTee(cores...)
}

// levelFilterCore restricts core to the levels enabled accepts.
type levelFilterCore struct {
	zapcore.Core
	enabled func(zapcore.Level) bool
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return c.enabled(lvl) && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), enabled: c.enabled}
}
