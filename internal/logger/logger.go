package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	instance *zap.Logger
	once     sync.Once
)

type Config struct {
	Development bool
	Level       string
}

// New builds the process logger once; later calls return the same instance.
func New(cfg Config) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		zc := zap.NewProductionConfig()
		if cfg.Development {
			zc = zap.NewDevelopmentConfig()
		}
		if cfg.Level != "" {
			var lvl zap.AtomicLevel
			lvl, err = zap.ParseAtomicLevel(cfg.Level)
			if err != nil {
				return
			}
			zc.Level = lvl
		}
		var l *zap.Logger
		l, err = zc.Build()
		if err != nil {
			return
		}
		instance = l
	})
	if instance == nil && err == nil {
		return zap.NewNop(), nil
	}
	return instance, err
}
