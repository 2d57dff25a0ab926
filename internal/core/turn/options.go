package turn

import (
	"errors"
	"time"
)

// Options configures a Coordinator. The zero value plus a Backend is enough
// for library use; hosts usually also inject a Logger and Metrics.
type Options struct {
	// Backend is the stream collaborator the coordinator drives. Required.
	Backend Backend

	// EventBuffer controls the capacity of the notification channel. The
	// default is tuned for interactive hosts that drain promptly.
	EventBuffer int

	// EmitTimeout guards against blocking forever when no host drains the
	// notification channel. Zero means drop instead of waiting; notifications
	// are advisory and state is always recoverable from Snapshot.
	EmitTimeout time.Duration

	// Logger receives structured coordinator logs. Defaults to NoOpLogger.
	Logger Logger

	// Metrics receives coordinator counters. Defaults to NoOpMetrics.
	Metrics Metrics

	// Clock allows tests to control time. Defaults to time.Now.
	Clock func() time.Time
}

func (o *Options) setDefaults() {
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.Logger == nil {
		o.Logger = NoOpLogger{}
	}
	if o.Metrics == nil {
		o.Metrics = NoOpMetrics{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

func (o *Options) validate() error {
	if o.Backend == nil {
		return errors.New("turn: a Backend is required")
	}
	return nil
}
