package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/account"
	"main/internal/analytics"
	"main/internal/broker"
	"main/internal/bus"
	"main/internal/clock"
	"main/internal/core"
	"main/internal/feed"
	"main/internal/journal"
	"main/internal/match"
	"main/internal/model"
	"main/internal/ops"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/state"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	dataPath := flag.String("data", "", "SQLite data bundle (overrides config)")
	checkpointDir := flag.String("checkpoint-dir", "", "Checkpoint directory (overrides config)")
	resume := flag.Bool("resume", false, "Resume from the last checkpoint")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty disables profiling)")
	flag.Parse()

	if *configPath == "" {
		logs.Error("missing -config")
		os.Exit(3)
	}
	cfg, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed, err: %+v", err)
		os.Exit(3)
	}
	if *dataPath != "" {
		cfg.DataPath = *dataPath
	}
	if *checkpointDir != "" {
		cfg.CheckpointDir = *checkpointDir
	}

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "backtest",
			ServerAddress:   *pyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("pyroscope start failed, err: %+v", err)
			os.Exit(3)
		}
		defer func() { _ = profiler.Stop() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg, *resume)
	if err != nil {
		logs.Errorf("run failed, err: %+v", err)
		os.Exit(core.ExitCode(err))
	}
	result.Log()
}

func run(ctx context.Context, cfg ops.Loaded, resume bool) (analytics.Report, error) {
	source, err := feed.LoadSQLite(cfg.DataPath)
	if err != nil {
		return analytics.Report{}, err
	}

	registry := schema.NewRegistry()
	for _, ins := range source.Instruments() {
		if _, err := registry.Add(ins); err != nil {
			return analytics.Report{}, err
		}
	}

	accounts := make([]*account.Account, 0, len(cfg.Accounts))
	for _, ac := range cfg.Accounts {
		accounts = append(accounts, account.NewAccount(ac, registry, source))
	}
	portfolio := account.NewPortfolio(accounts)

	commission := match.StockCommission{
		Rate:    cfg.CommissionRate,
		Minimum: cfg.CommissionMin,
		Lookup:  source.CommissionInfo,
	}
	tax := match.StampDutyTax{Rate: cfg.StampDutyRate}
	engine := match.NewEngine(match.Config{
		Type:             cfg.Matching,
		Frequency:        cfg.Frequency,
		VolumeLimitRatio: cfg.VolumeLimitRatio,
		PriceLimit:       cfg.PriceLimit,
	}, source, registry, cfg.Slippage, commission, tax)

	store, err := state.NewStore(cfg.CheckpointDir)
	if err != nil {
		return analytics.Report{}, err
	}

	var sink journal.Sink
	if cfg.Database != nil {
		client, err := conn.New(conn.Option{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
		})
		if err != nil {
			return analytics.Report{}, err
		}
		defer func() { _ = client.Close() }()
		if sink, err = journal.NewPostgresSink(client); err != nil {
			return analytics.Report{}, err
		}
	}
	jl := journal.New(store.RunID(), sink)

	eventBus := bus.New()
	profile := schema.CNMarket()
	brk := broker.New(eventBus, engine, risk.NewEngine(cfg.Risk), portfolio, registry, source, broker.Options{
		MatchType:  cfg.Matching,
		Frequency:  cfg.Frequency,
		Profile:    profile,
		Commission: commission,
		Tax:        tax,
		Journal:    jl,
	})

	clockSrc := clock.NewSource(source, profile)
	env := core.NewEnvironment(eventBus, clockSrc, source, registry, portfolio, brk, jl, cfg.Frequency)
	runner := core.NewRunner(env, buyAndHold{}, core.RunConfig{
		Start:     cfg.Start,
		End:       cfg.End,
		Frequency: cfg.Frequency,
		Store:     store,
		Resume:    resume,
	})

	if err := runner.Run(ctx); err != nil {
		return runner.Report(), err
	}
	return runner.Report(), nil
}

// buyAndHold spreads the available cash equally over the universe on the
// first bar and holds to the end of the run.
type buyAndHold struct{}

func (buyAndHold) Init(*core.Environment) error          { return nil }
func (buyAndHold) BeforeTrading(*core.Environment) error { return nil }
func (buyAndHold) AfterTrading(*core.Environment) error  { return nil }

func (buyAndHold) HandleTick(*core.Environment, *model.Tick) error { return nil }

func (buyAndHold) HandleBar(env *core.Environment, dt time.Time) error {
	symbols := env.Universe()
	if len(symbols) == 0 {
		return nil
	}
	for _, symbol := range symbols {
		acc, err := env.Portfolio.AccountFor(kindOf(env, symbol))
		if err != nil {
			return err
		}
		if _, ok := acc.Position(symbol, model.DirectionLong); ok {
			continue
		}
		bars, err := env.History(symbol, 1)
		if err != nil || len(bars) == 0 {
			continue
		}
		budget := acc.Available().Div(decimal.NewFromInt(int64(len(symbols))))
		quantity := budget.Div(bars[len(bars)-1].Close)
		if !quantity.IsPositive() {
			continue
		}
		if _, err := env.SubmitOrder(symbol, model.SideBuy, model.EffectOpen, model.OrderKindMarket, decimal.Zero, quantity); err != nil {
			return err
		}
	}
	return nil
}

func kindOf(env *core.Environment, symbol string) schema.InstrumentKind {
	if ins, ok := env.Registry.Instrument(symbol); ok {
		return ins.Kind
	}
	return schema.InstrumentStock
}
