package synet

import (
	"log/slog"

	"github.com/nest/nest-simulator-sub010/codec"
	"github.com/nest/nest-simulator-sub010/exchange"
)

type options struct {
	threads          int
	resolutionMS     float64
	seed             uint64
	exchangeChunk    int
	comm             exchange.Communicator
	logger           *Logger
	metricsCollector MetricsCollector
	codec            codec.Codec
}

// Option configures Network construction.
type Option func(*options)

// WithThreads sets the number of worker threads (virtual processes per
// rank). Defaults to 1.
func WithThreads(threads int) Option {
	return func(o *options) {
		o.threads = threads
	}
}

// WithResolution sets the simulation resolution in milliseconds per step.
// Delays are validated against it. Defaults to 0.1 ms.
func WithResolution(resolutionMS float64) Option {
	return func(o *options) {
		o.resolutionMS = resolutionMS
	}
}

// WithSeed sets the seed driving probabilistic builders and structural
// plasticity. Every rank of a run must use the same seed.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithCommunicator sets the collective transport for multi-rank runs.
// Defaults to a single-rank communicator.
func WithCommunicator(comm exchange.Communicator) Option {
	return func(o *options) {
		o.comm = comm
	}
}

// WithExchangeChunkSize bounds the per-rank record budget of one exchange
// round. Smaller chunks mean less peak memory and more rounds; the
// resulting routing tables are identical either way.
func WithExchangeChunkSize(chunk int) Option {
	return func(o *options) {
		o.exchangeChunk = chunk
	}
}

// WithLogger configures structured logging. Pass nil to disable.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel is a convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures metrics collection. Pass nil to disable.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithCodec configures the codec used for descriptor export and network
// documents. Defaults to codec.Default.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		threads:          1,
		resolutionMS:     0.1,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		codec:            codec.Default,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
