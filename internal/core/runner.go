package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/yanun0323/logs"

	"main/internal/analytics"
	"main/internal/bus"
	"main/internal/clock"
	"main/internal/errors"
	"main/internal/feed"
	"main/internal/model"
	"main/internal/schema"
	"main/internal/state"
)

// ErrStrategyFault marks failures raised by strategy code, as opposed to
// engine-internal faults. The two map to different process exit codes.
var ErrStrategyFault = errors.New("strategy fault")

// Strategy is the user trading logic driven by the replay. Hooks run on
// the single event-loop goroutine; blocking blocks the run.
type Strategy interface {
	Init(env *Environment) error
	BeforeTrading(env *Environment) error
	HandleBar(env *Environment, dt time.Time) error
	HandleTick(env *Environment, tick *model.Tick) error
	AfterTrading(env *Environment) error
}

const cursorLayout = "2006-01-02"

// RunConfig fixes the replay range and checkpoint policy of one run.
type RunConfig struct {
	Start     time.Time
	End       time.Time
	Frequency schema.Frequency

	// Store enables end-of-day checkpointing when set.
	Store  *state.Store
	Resume bool
}

// Runner owns the replay loop: it drains the simulation clock, publishes
// each event and triggers settlement and checkpointing after each day.
type Runner struct {
	env      *Environment
	strategy Strategy
	cfg      RunConfig

	runID       string
	currentDate time.Time
}

func NewRunner(env *Environment, strategy Strategy, cfg RunConfig) *Runner {
	runID := uuid.NewString()
	if cfg.Store != nil {
		runID = cfg.Store.RunID()
	}
	return &Runner{env: env, strategy: strategy, cfg: cfg, runID: runID}
}

func (r *Runner) RunID() string { return r.runID }

// Run executes the replay from start to end (or from the checkpoint
// cursor when resuming) and returns the final report.
func (r *Runner) Run(ctx context.Context) error {
	r.subscribe()

	start := r.cfg.Start
	if r.cfg.Resume && r.cfg.Store != nil && r.cfg.Store.HasCheckpoint() {
		if err := r.cfg.Store.Restore(r.persistables()...); err != nil {
			return err
		}
		cursor, err := time.Parse(cursorLayout, r.cfg.Store.Cursor())
		if err != nil {
			return errors.Wrapf(err, "checkpoint cursor %q", r.cfg.Store.Cursor())
		}
		start = cursor.AddDate(0, 0, 1)
		logs.Infof("resuming run %s from %s", r.runID, start.Format(cursorLayout))
	} else {
		if err := r.strategy.Init(r.env); err != nil {
			return strategyFault("init", err)
		}
	}
	if len(r.env.Clock.Universe()) == 0 {
		r.env.Clock.SetUniverse(r.env.Registry.Symbols())
	}

	if err := r.loop(ctx, start); err != nil {
		if r.cfg.Store != nil && r.cfg.Store.HasCheckpoint() {
			// mid-day state is not resumable; the last settled day's
			// checkpoint is already on disk and stays authoritative
			logs.Warnf("run aborted, resumable checkpoint cursor: %s", r.cfg.Store.Cursor())
		}
		return err
	}
	return nil
}

func (r *Runner) loop(ctx context.Context, start time.Time) error {
	it := r.env.Clock.Events(start, r.cfg.End, r.cfg.Frequency)
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "run aborted")
		}
		ev, ok := it.Next()
		if !ok {
			break
		}
		if err := r.env.Bus.Publish(ev); err != nil {
			return err
		}
		if ev.Kind != schema.EventAfterTrading {
			continue
		}
		if err := r.env.Bus.Publish(bus.Event{
			Kind:         schema.EventSettlement,
			CalendarTime: ev.CalendarTime,
			TradingTime:  ev.TradingTime,
		}); err != nil {
			return err
		}
		if r.cfg.Store != nil {
			if err := r.cfg.Store.Save(r.currentDate.Format(cursorLayout), r.persistables()...); err != nil {
				return err
			}
		}
	}
	return nil
}

// subscribe wires the engine listeners (prepend, so they run before the
// strategy sees the event) and the strategy hooks (append).
func (r *Runner) subscribe() {
	eventBus := r.env.Bus

	lifecycle := []schema.EventKind{
		schema.EventBeforeTrading, schema.EventOpenAuction, schema.EventBar,
		schema.EventTick, schema.EventAfterTrading, schema.EventSettlement,
	}
	for _, kind := range lifecycle {
		eventBus.Subscribe(kind, func(e bus.Event) error {
			r.env.now = e.TradingTime
			return nil
		}, true)
	}

	eventBus.Subscribe(schema.EventBeforeTrading, func(e bus.Event) error {
		r.currentDate = feed.DateKey(e.TradingTime)
		r.env.Broker.OnDayOpen(e.TradingTime)
		adjustments, err := r.env.Portfolio.BeforeTrading(r.currentDate)
		if err != nil {
			return err
		}
		r.env.Broker.AdjustForSplits(adjustments)
		return nil
	}, true)

	eventBus.Subscribe(schema.EventBar, func(e bus.Event) error {
		if err := r.env.Broker.OnBar(e.TradingTime); err != nil {
			return err
		}
		r.env.Portfolio.MarkPrices(r.env.Data, e.TradingTime, r.cfg.Frequency)
		return nil
	}, true)

	eventBus.Subscribe(schema.EventTick, func(e bus.Event) error {
		return r.env.Broker.OnTick(e.Tick)
	}, true)

	eventBus.Subscribe(schema.EventAfterTrading, func(e bus.Event) error {
		return r.env.Broker.OnDayClose()
	}, true)

	eventBus.Subscribe(schema.EventSettlement, func(e bus.Event) error {
		synthesized, err := r.env.Portfolio.Settle(r.currentDate, r.nextTradingDate())
		if err != nil {
			return err
		}
		if r.env.Journal != nil {
			for _, t := range synthesized {
				r.env.Journal.RecordTrade(t, decimal.Zero)
			}
		}
		return nil
	}, true)

	eventBus.Subscribe(schema.EventBeforeTrading, func(bus.Event) error {
		return strategyFault("beforeTrading", r.strategy.BeforeTrading(r.env))
	}, false)
	eventBus.Subscribe(schema.EventBar, func(e bus.Event) error {
		return strategyFault("handleBar", r.strategy.HandleBar(r.env, e.TradingTime))
	}, false)
	eventBus.Subscribe(schema.EventTick, func(e bus.Event) error {
		return strategyFault("handleTick", r.strategy.HandleTick(r.env, e.Tick))
	}, false)
	eventBus.Subscribe(schema.EventAfterTrading, func(bus.Event) error {
		return strategyFault("afterTrading", r.strategy.AfterTrading(r.env))
	}, false)
}

// Report summarizes the run as of the last settlement.
func (r *Runner) Report() analytics.Report {
	in := analytics.Input{
		RunID:        r.runID,
		StartingCash: r.env.Portfolio.StartingCash(),
		FinalValue:   r.env.Portfolio.TotalValue(),
		DailyReturns: r.env.Portfolio.DailyReturns(),
		TradingDays:  r.env.Portfolio.TradingDays(),
	}
	if r.env.Journal != nil {
		in.TradeCount = r.env.Journal.TradeCount()
		in.RejectedOrders = r.env.Journal.RejectedCount()
		in.Close = r.env.Journal.CloseStats()
	}
	return analytics.Build(in)
}

func (r *Runner) nextTradingDate() time.Time {
	for _, date := range r.env.Data.TradingCalendar() {
		if date.After(r.currentDate) {
			return date
		}
	}
	return time.Time{}
}

func (r *Runner) persistables() []state.Persistable {
	out := []state.Persistable{
		r.env.Portfolio,
		r.env.Broker,
		r.env.Broker.Engine(),
		&universeCheckpoint{clock: r.env.Clock},
	}
	for _, acc := range r.env.Portfolio.Accounts() {
		out = append(out, acc)
	}
	return out
}

func strategyFault(hook string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(ErrStrategyFault, hook+": "+err.Error())
}

// ExitCode maps a run error to the process exit code: 0 on success, 2
// for strategy faults, 3 for engine faults.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrStrategyFault):
		return 2
	default:
		return 3
	}
}

// universeCheckpoint persists the subscribed symbol set alongside the
// component blobs.
type universeCheckpoint struct {
	clock *clock.Source
}

func (u *universeCheckpoint) PersistKey() string { return "universe" }

func (u *universeCheckpoint) PersistState() ([]byte, error) {
	return msgpack.Marshal(u.clock.Universe())
}

func (u *universeCheckpoint) RestoreState(data []byte) error {
	var symbols []string
	if err := msgpack.Unmarshal(data, &symbols); err != nil {
		return err
	}
	u.clock.SetUniverse(symbols)
	return nil
}
