package scheduler

import "time"

type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration

	// SLAGrace is how long after its scheduled time a booking may sit in
	// confirmed/technician_en_route before the breach job compensates.
	SLAGrace time.Duration
	// InactivityLookahead bounds how far ahead the inactivity sweep looks
	// for due bookings.
	InactivityLookahead time.Duration
	// InactivityStaleness is the maximum age of a technician's last-seen
	// signal before the sweep raises a flag.
	InactivityStaleness time.Duration
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = 2 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	if c.SLAGrace <= 0 {
		c.SLAGrace = 4 * time.Hour
	}
	if c.InactivityLookahead <= 0 {
		c.InactivityLookahead = 2 * time.Hour
	}
	if c.InactivityStaleness <= 0 {
		c.InactivityStaleness = time.Hour
	}
	return c
}
