package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickDriver is the engine surface the clock drives. Each tick is routed
// through every auction's serialization point, so time-driven transitions
// never interleave inconsistently with bids.
type TickDriver interface {
	TickAll(ctx context.Context, now time.Time)
}

// Clock periodically advances every open auction through its lifecycle. It
// is the only component that may flip an auction status without a user
// action.
type Clock struct {
	cron     *cron.Cron
	engine   TickDriver
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	logger   zerolog.Logger
}

type ClockParams struct {
	Engine   TickDriver
	Interval time.Duration
	Logger   zerolog.Logger
}

// NewClock creates the engine clock
func NewClock(params ClockParams) *Clock {
	ctx, cancel := context.WithCancel(context.Background())

	interval := params.Interval
	if interval < time.Second {
		interval = time.Second
	}

	return &Clock{
		cron:     cron.New(cron.WithSeconds()),
		engine:   params.Engine,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		logger:   params.Logger.With().Str("component", "engine_clock").Logger(),
	}
}

// Start begins the tick schedule
func (c *Clock) Start() error {
	spec := fmt.Sprintf("@every %s", c.interval)
	_, err := c.cron.AddFunc(spec, func() {
		c.engine.TickAll(c.ctx, time.Now())
	})
	if err != nil {
		return fmt.Errorf("failed to register tick job: %w", err)
	}

	c.cron.Start()
	c.logger.Info().Dur("interval", c.interval).Msg("Engine clock started")
	return nil
}

// Stop halts the tick schedule and waits for an in-flight tick to finish
func (c *Clock) Stop() {
	c.cancel()
	<-c.cron.Stop().Done()
	c.logger.Info().Msg("Engine clock stopped")
}
