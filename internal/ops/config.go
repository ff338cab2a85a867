package ops

import (
	"encoding/json"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/account"
	"main/internal/errors"
	"main/internal/match"
	"main/internal/risk"
	"main/internal/schema"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

const dateLayout = "2006-01-02"

// FileConfig mirrors the JSON config layout. Zero fields fall back to
// withDefaults before validation.
type FileConfig struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Frequency string `json:"frequency"`
	Matching  string `json:"matching"`

	DataPath      string `json:"dataPath"`
	CheckpointDir string `json:"checkpointDir"`

	Accounts []AccountConfig `json:"accounts"`

	Slippage   SlippageConfig   `json:"slippage"`
	Commission CommissionConfig `json:"commission"`
	Tax        TaxConfig        `json:"tax"`

	VolumeLimitRatio string `json:"volumeLimitRatio"`
	PriceLimit       *bool  `json:"priceLimit"`

	Risk risk.Config `json:"risk"`

	Futures  FuturesConfig   `json:"futures"`
	Database *DatabaseConfig `json:"database"`
}

// AccountConfig declares one asset-class account and its starting cash.
type AccountConfig struct {
	Kind         string `json:"kind"`
	StartingCash string `json:"startingCash"`

	// CashOnDelisting compensates delisted stock positions at the last
	// settlement price instead of writing them off.
	CashOnDelisting bool `json:"cashOnDelisting"`
}

// SlippageConfig selects the execution slippage model.
type SlippageConfig struct {
	Model string `json:"model"`
	Value string `json:"value"`
}

// CommissionConfig is the by-money stock commission schedule.
type CommissionConfig struct {
	Rate    string `json:"rate"`
	Minimum string `json:"minimum"`
}

// TaxConfig is the sell-side stamp duty schedule.
type TaxConfig struct {
	StampDutyRate string `json:"stampDutyRate"`
}

// FuturesConfig holds futures settlement policies.
type FuturesConfig struct {
	UseSettlementPrice bool `json:"useSettlementPrice"`
}

// DatabaseConfig enables the durable journal sink when present.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

func (cfg *FileConfig) withDefaults() {
	if cfg.Frequency == "" {
		cfg.Frequency = "daily"
	}
	if cfg.Matching == "" {
		cfg.Matching = "current_bar"
	}
	if len(cfg.Accounts) == 0 {
		cfg.Accounts = []AccountConfig{{Kind: "stock", StartingCash: "1000000"}}
	}
	for i := range cfg.Accounts {
		if cfg.Accounts[i].StartingCash == "" {
			cfg.Accounts[i].StartingCash = "1000000"
		}
	}
	if cfg.Slippage.Model == "" {
		cfg.Slippage.Model = "none"
	}
	if cfg.Commission.Rate == "" {
		cfg.Commission.Rate = "0.0003"
	}
	if cfg.Commission.Minimum == "" {
		cfg.Commission.Minimum = "5"
	}
	if cfg.Tax.StampDutyRate == "" {
		cfg.Tax.StampDutyRate = "0.001"
	}
	if cfg.VolumeLimitRatio == "" {
		cfg.VolumeLimitRatio = "0.25"
	}
	if cfg.CheckpointDir == "" {
		cfg.CheckpointDir = "checkpoint"
	}
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Start time.Time
	End   time.Time

	Frequency schema.Frequency
	Matching  match.Type

	DataPath      string
	CheckpointDir string

	Accounts []account.Config

	Slippage         match.SlippageDecider
	CommissionRate   decimal.Decimal
	CommissionMin    decimal.Decimal
	StampDutyRate    decimal.Decimal
	VolumeLimitRatio decimal.Decimal
	PriceLimit       bool

	Risk risk.Config

	Database *DatabaseConfig
}

// Load reads a JSON config file, applies defaults and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrapf(err, "read config %s", path)
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrapf(err, "decode config %s", path)
	}
	return cfg.Resolve()
}

// Resolve applies defaults, validates and converts the file form into
// runtime types. Validation failures fail the run before any replay.
func (cfg FileConfig) Resolve() (Loaded, error) {
	cfg.withDefaults()

	var out Loaded
	var err error

	out.Start, err = time.Parse(dateLayout, cfg.Start)
	if err != nil {
		return Loaded{}, errors.Wrapf(ErrInvalidConfig, "start date %q", cfg.Start)
	}
	out.End, err = time.Parse(dateLayout, cfg.End)
	if err != nil {
		return Loaded{}, errors.Wrapf(ErrInvalidConfig, "end date %q", cfg.End)
	}
	if out.End.Before(out.Start) {
		return Loaded{}, errors.Wrapf(ErrInvalidConfig, "end %s before start %s", cfg.End, cfg.Start)
	}

	freq, ok := schema.ParseFrequency(cfg.Frequency)
	if !ok {
		return Loaded{}, errors.Wrapf(ErrInvalidConfig, "frequency %q", cfg.Frequency)
	}
	out.Frequency = freq

	mt, ok := match.ParseType(cfg.Matching)
	if !ok {
		return Loaded{}, errors.Wrapf(ErrInvalidConfig, "matching %q", cfg.Matching)
	}
	out.Matching = mt
	if err := validateMatching(mt, freq); err != nil {
		return Loaded{}, err
	}

	out.Accounts, err = resolveAccounts(cfg)
	if err != nil {
		return Loaded{}, err
	}

	out.Slippage, err = resolveSlippage(cfg.Slippage)
	if err != nil {
		return Loaded{}, err
	}

	out.CommissionRate, err = positiveOrZero("commission.rate", cfg.Commission.Rate)
	if err != nil {
		return Loaded{}, err
	}
	out.CommissionMin, err = positiveOrZero("commission.minimum", cfg.Commission.Minimum)
	if err != nil {
		return Loaded{}, err
	}
	out.StampDutyRate, err = positiveOrZero("tax.stampDutyRate", cfg.Tax.StampDutyRate)
	if err != nil {
		return Loaded{}, err
	}

	out.VolumeLimitRatio, err = positiveOrZero("volumeLimitRatio", cfg.VolumeLimitRatio)
	if err != nil {
		return Loaded{}, err
	}
	if out.VolumeLimitRatio.GreaterThan(decimal.NewFromInt(1)) {
		return Loaded{}, errors.Wrapf(ErrInvalidConfig, "volumeLimitRatio %s above 1", out.VolumeLimitRatio)
	}

	out.PriceLimit = cfg.PriceLimit == nil || *cfg.PriceLimit
	out.DataPath = cfg.DataPath
	out.CheckpointDir = cfg.CheckpointDir
	out.Risk = cfg.Risk
	out.Database = cfg.Database
	return out, nil
}

func validateMatching(mt match.Type, freq schema.Frequency) error {
	tickType := mt == match.TypeTickLast || mt == match.TypeTickBestOwn || mt == match.TypeTickBestCounterparty
	if tickType && freq != schema.FrequencyTick {
		return errors.Wrapf(ErrInvalidConfig, "matching %s requires tick frequency", mt)
	}
	if !tickType && freq == schema.FrequencyTick {
		return errors.Wrapf(ErrInvalidConfig, "matching %s requires bar frequency", mt)
	}
	return nil
}

func resolveAccounts(cfg FileConfig) ([]account.Config, error) {
	out := make([]account.Config, 0, len(cfg.Accounts))
	seen := make(map[schema.InstrumentKind]bool)
	for _, ac := range cfg.Accounts {
		var kind schema.InstrumentKind
		switch ac.Kind {
		case "stock":
			kind = schema.InstrumentStock
		case "future":
			kind = schema.InstrumentFuture
		default:
			return nil, errors.Wrapf(ErrInvalidConfig, "account kind %q", ac.Kind)
		}
		if seen[kind] {
			return nil, errors.Wrapf(ErrInvalidConfig, "duplicate account kind %q", ac.Kind)
		}
		seen[kind] = true

		cash, err := decimal.NewFromString(ac.StartingCash)
		if err != nil || !cash.IsPositive() {
			return nil, errors.Wrapf(ErrInvalidConfig, "starting cash %q for %s account", ac.StartingCash, ac.Kind)
		}
		out = append(out, account.Config{
			Kind:               kind,
			StartingCash:       cash,
			UseSettlementPrice: cfg.Futures.UseSettlementPrice,
			CashOnDelisting:    ac.CashOnDelisting,
		})
	}
	return out, nil
}

func resolveSlippage(cfg SlippageConfig) (match.SlippageDecider, error) {
	switch cfg.Model {
	case "none":
		return match.NoSlippage{}, nil
	case "ratio":
		ratio, err := positiveOrZero("slippage.value", cfg.Value)
		if err != nil {
			return nil, err
		}
		return match.FixedRatioSlippage{Ratio: ratio}, nil
	case "ticks":
		ticks, err := positiveOrZero("slippage.value", cfg.Value)
		if err != nil {
			return nil, err
		}
		return match.TickCountSlippage{Ticks: ticks.IntPart()}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "slippage model %q", cfg.Model)
	}
}

func positiveOrZero(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, errors.Wrapf(ErrInvalidConfig, "%s %q", field, value)
	}
	return d, nil
}
