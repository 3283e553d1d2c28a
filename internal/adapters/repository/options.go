package repository

import (
	"time"

	"github.com/okian/battle/pkg/logger"
)

// Defaults for the GORM store.
const (
	defaultSlowThreshold = 200 * time.Millisecond
)

// Option applies a configuration option to the GormStore.
type Option func(*GormStore)

// WithSlowThreshold sets the duration above which queries are logged as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(s *GormStore) {
		if d > 0 {
			s.slowThreshold = d
		}
	}
}

// WithLogger sets the logger used for SQL diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(s *GormStore) {
		if l != nil {
			s.logger = l
		}
	}
}
