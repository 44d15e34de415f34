// Package scheduler runs queued submission evaluations on a single worker.
package scheduler

import "time"

// Config defines the evaluation queue configuration.
type Config struct {
	// QueueSize is the number of submissions that can wait for the worker.
	QueueSize int `yaml:"queue_size"`
	// JobTimeout bounds one evaluation end to end.
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		QueueSize:  100,
		JobTimeout: 5 * time.Minute,
	}
}
