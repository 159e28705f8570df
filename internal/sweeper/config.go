package sweeper

import "time"

const (
	defaultInterval  = 5 * time.Minute
	defaultBatchSize = 100
	defaultLockKey   = "menuwallet:sweeper"
	defaultLockTTL   = 2 * time.Minute
)

// Config controls how often expired Pro plans are swept and how many per run.
type Config struct {
	Interval  time.Duration
	BatchSize int
	LockKey   string
	LockTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:  defaultInterval,
		BatchSize: defaultBatchSize,
		LockKey:   defaultLockKey,
		LockTTL:   defaultLockTTL,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.LockKey == "" {
		c.LockKey = defaults.LockKey
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
