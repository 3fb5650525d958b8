// Package scheduler drives automated firing: a minute ticker enumerates
// automation-enabled channels, finds slots due at the current minute, and
// fires generation at most once per slot per occurrence.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/creatorloop/clipscript-bot/internal/model"
	"github.com/creatorloop/clipscript-bot/internal/repository"
	"github.com/creatorloop/clipscript-bot/internal/service"
)

const (
	defaultCallTimeout = 25 * time.Second
	defaultWorkers     = 4
	tickInterval       = time.Minute
)

// Generator is the external generation collaborator.
type Generator interface {
	Generate(ctx context.Context, ch *model.Channel) (*service.Result, error)
}

// Dispatcher is the optional downstream messaging collaborator.
type Dispatcher interface {
	Send(ctx context.Context, ch *model.Channel, content string) error
}

// SlotFailure records one failed invocation for the tick report.
type SlotFailure struct {
	ChannelID string
	SlotID    string
	Err       error
}

// Report aggregates one tick's outcome across all channels.
type Report struct {
	At        time.Time
	Channels  int
	Fired     int // due slots whose firing was attempted
	Skipped   int // due slots suppressed by the idempotency gate
	Generated int // successful generation invocations
	Failures  []SlotFailure
}

// Processor is the tick engine. It is the sole writer of slot firing
// state; everything else it touches is read-only.
type Processor struct {
	repo        repository.ChannelRepository
	gen         Generator
	dispatch    Dispatcher
	logger      zerolog.Logger
	callTimeout time.Duration
	workers     int
}

// New constructs a processor. Zero callTimeout/workers select the
// defaults (25s per collaborator call, 4 concurrent channels).
func New(repo repository.ChannelRepository, gen Generator, dispatch Dispatcher, callTimeout time.Duration, workers int, logger zerolog.Logger) *Processor {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Processor{
		repo:        repo,
		gen:         gen,
		dispatch:    dispatch,
		logger:      logger,
		callTimeout: callTimeout,
		workers:     workers,
	}
}

// Run executes the tick loop until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	p.logger.Info().Msg("tick loop started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("tick loop stopped")
			return ctx.Err()
		case <-ticker.C:
			rep, err := p.Tick(ctx, time.Now())
			if err != nil {
				p.logger.Error().Err(err).Msg("tick failed")
				continue
			}
			evt := p.logger.Info()
			if len(rep.Failures) > 0 {
				evt = p.logger.Warn().Int("failures", len(rep.Failures))
			}
			evt.Int("channels", rep.Channels).
				Int("fired", rep.Fired).
				Int("skipped", rep.Skipped).
				Int("generated", rep.Generated).
				Msg("tick complete")
		}
	}
}

// Tick processes one clock instant. Channels fan out over a bounded
// worker group; a failing channel never aborts the others. The returned
// error covers only channel enumeration — everything downstream lands in
// the report.
func (p *Processor) Tick(ctx context.Context, now time.Time) (*Report, error) {
	channels, err := p.repo.ListAutomationEnabled(ctx)
	if err != nil {
		return nil, err
	}

	rep := &Report{At: now, Channels: len(channels)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(p.workers)
	for _, ch := range channels {
		ch := ch
		g.Go(func() error {
			p.processChannel(ctx, now, ch, rep, &mu)
			return nil
		})
	}
	g.Wait()
	return rep, nil
}

func (p *Processor) processChannel(ctx context.Context, now time.Time, ch *model.Channel, rep *Report, mu *sync.Mutex) {
	local := now.In(ch.Location())
	minute := local.Hour()*60 + local.Minute()
	weekday := int(local.Weekday())

	for i := range ch.Slots {
		slot := &ch.Slots[i]
		if !slot.Enabled || slot.Minute() < 0 {
			continue
		}
		if !slot.OnDay(weekday) || slot.Minute() != minute {
			continue
		}
		// Idempotency gate: one firing per slot per calendar date in the
		// channel's zone, no matter how often the trigger repeats.
		if slot.LastFiredAt != nil && sameDate(slot.LastFiredAt.In(ch.Location()), local) {
			mu.Lock()
			rep.Skipped++
			mu.Unlock()
			continue
		}
		p.fireSlot(ctx, now, ch, slot, rep, mu)
	}
}

// fireSlot runs the slot's generation invocations and records the firing.
// The occurrence is marked fired even when every invocation failed: a
// broken collaborator must not retry-storm on every subsequent tick.
func (p *Processor) fireSlot(ctx context.Context, now time.Time, ch *model.Channel, slot *model.Slot, rep *Report, mu *sync.Mutex) {
	fail := func(err error) {
		mu.Lock()
		rep.Failures = append(rep.Failures, SlotFailure{ChannelID: ch.ID, SlotID: slot.ID, Err: err})
		mu.Unlock()
	}

	for i := 0; i < slot.PromptsPerRun; i++ {
		callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		res, err := p.gen.Generate(callCtx, ch)
		cancel()
		if err != nil {
			p.logger.Warn().Err(err).Str("channel", ch.ID).Str("slot", slot.ID).Msg("generation failed")
			fail(err)
			continue
		}
		mu.Lock()
		rep.Generated++
		mu.Unlock()
		p.logger.Debug().Str("channel", ch.ID).Str("slot", slot.ID).Str("job", res.JobID).Msg("generated")

		if ch.DispatchEnabled && p.dispatch != nil {
			callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
			err := p.dispatch.Send(callCtx, ch, res.Content)
			cancel()
			if err != nil {
				p.logger.Warn().Err(err).Str("channel", ch.ID).Str("slot", slot.ID).Msg("dispatch failed")
				fail(err)
			}
		}
	}

	mu.Lock()
	rep.Fired++
	mu.Unlock()

	err := p.repo.UpdateSlotLastFired(ctx, ch.ID, slot.ID, now)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrAlreadyFired):
		// Another writer (an overlapping tick) owns this occurrence.
		p.logger.Debug().Str("channel", ch.ID).Str("slot", slot.ID).Msg("firing already recorded")
	default:
		p.logger.Error().Err(err).Str("channel", ch.ID).Str("slot", slot.ID).Msg("record firing failed")
		fail(err)
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
