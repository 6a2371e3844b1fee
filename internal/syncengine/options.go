package syncengine

import (
	"go.uber.org/zap"

	"github.com/g960059/hostkeep/internal/logging"
)

type Option func(*options)

type options struct {
	logger *zap.Logger
	gate   *Gate
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithGate shares one mount flag between the loaders and mutators of a view.
func WithGate(gate *Gate) Option {
	return func(o *options) {
		o.gate = gate
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = logging.OrNop(o.logger)
	if o.gate == nil {
		o.gate = NewGate()
	}
	return o
}
