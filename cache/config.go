package cache

import "time"

// Config gathers the tunables spec.md §6 exposes as environment variables
// (CACHE_CAPACITY, CACHE_DEFAULT_TTL_SECS, CACHE_SWEEP_INTERVAL_SECS,
// CACHE_BUS_BUFFER). Build one with NewConfig and Options, then pass it to
// NewFromConfig.
type Config struct {
	Capacity      int
	DefaultTTL    time.Duration
	SweepInterval time.Duration
	BusBuffer     int
}

// Option mutates a Config during construction, mirroring the functional
// options the teacher uses for graph construction.
type Option func(*Config)

// WithCapacity sets the maximum number of live entries before LRU
// eviction kicks in. <= 0 means unbounded.
func WithCapacity(n int) Option {
	return func(c *Config) { c.Capacity = n }
}

// WithDefaultTTL records a default TTL in Config.DefaultTTL. Neither
// NewFromConfig nor Store applies it: every Set call passes its own ttl.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Config) { c.DefaultTTL = d }
}

// WithSweepInterval sets how often the background worker's TTL sweep
// timer fires.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Config) { c.SweepInterval = d }
}

// WithBusBuffer sets the invalidation bus's ring buffer size.
func WithBusBuffer(n int) Option {
	return func(c *Config) { c.BusBuffer = n }
}

// defaultConfig mirrors the defaults spec.md §6 assigns each environment
// variable when unset.
func defaultConfig() Config {
	return Config{
		Capacity:      10_000,
		DefaultTTL:    5 * time.Minute,
		SweepInterval: DefaultSweepInterval,
		BusBuffer:     DefaultBusBuffer,
	}
}

// NewConfig builds a Config from defaults plus opts, applied in order.
func NewConfig(opts ...Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewFromConfig builds a Store and its Worker together from cfg, wiring
// the worker's sweep interval and the store's bus buffer size to match.
// The caller still owns starting the worker via Worker.Run.
func NewFromConfig[V any](cfg Config) (*Store[V], *Worker[V]) {
	store := &Store[V]{
		entries:  make(map[string]entry[V]),
		capacity: cfg.Capacity,
		bus:      NewBus(cfg.BusBuffer),
	}
	worker := NewWorker[V](store)
	worker.SetSweepInterval(cfg.SweepInterval)
	return store, worker
}
