package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/match"
	"main/internal/schema"
)

func minimal() FileConfig {
	return FileConfig{Start: "2024-01-02", End: "2024-06-28"}
}

func TestResolveDefaults(t *testing.T) {
	loaded, err := minimal().Resolve()
	require.NoError(t, err)

	assert.Equal(t, schema.FrequencyDaily, loaded.Frequency)
	assert.Equal(t, match.TypeCurrentBarClose, loaded.Matching)
	assert.True(t, loaded.PriceLimit)
	assert.Equal(t, "0.25", loaded.VolumeLimitRatio.String())
	require.Len(t, loaded.Accounts, 1)
	assert.Equal(t, schema.InstrumentStock, loaded.Accounts[0].Kind)
	assert.Equal(t, "1000000", loaded.Accounts[0].StartingCash.String())
	assert.IsType(t, match.NoSlippage{}, loaded.Slippage)
}

func TestResolveDateErrors(t *testing.T) {
	cfg := minimal()
	cfg.Start = "02-01-2024"
	_, err := cfg.Resolve()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = minimal()
	cfg.End = "2023-12-29"
	_, err = cfg.Resolve()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResolveMatchingFrequencyMismatch(t *testing.T) {
	cfg := minimal()
	cfg.Matching = "last"
	_, err := cfg.Resolve()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = minimal()
	cfg.Frequency = "tick"
	cfg.Matching = "current_bar"
	_, err = cfg.Resolve()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = minimal()
	cfg.Frequency = "tick"
	cfg.Matching = "best_counterparty"
	loaded, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, match.TypeTickBestCounterparty, loaded.Matching)
}

func TestResolveSlippage(t *testing.T) {
	cfg := minimal()
	cfg.Slippage = SlippageConfig{Model: "ratio", Value: "0.001"}
	loaded, err := cfg.Resolve()
	require.NoError(t, err)
	ratio, ok := loaded.Slippage.(match.FixedRatioSlippage)
	require.True(t, ok)
	assert.Equal(t, "0.001", ratio.Ratio.String())

	cfg.Slippage = SlippageConfig{Model: "ticks", Value: "2"}
	loaded, err = cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, match.TickCountSlippage{Ticks: 2}, loaded.Slippage)

	cfg.Slippage = SlippageConfig{Model: "bogus"}
	_, err = cfg.Resolve()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResolveAccounts(t *testing.T) {
	cfg := minimal()
	cfg.Accounts = []AccountConfig{
		{Kind: "stock", StartingCash: "500000"},
		{Kind: "future", StartingCash: "200000"},
	}
	loaded, err := cfg.Resolve()
	require.NoError(t, err)
	require.Len(t, loaded.Accounts, 2)
	assert.Equal(t, schema.InstrumentFuture, loaded.Accounts[1].Kind)

	cfg.Accounts = []AccountConfig{
		{Kind: "stock", StartingCash: "1"},
		{Kind: "stock", StartingCash: "1"},
	}
	_, err = cfg.Resolve()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.Accounts = []AccountConfig{{Kind: "stock", StartingCash: "-5"}}
	_, err = cfg.Resolve()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResolveVolumeLimitBounds(t *testing.T) {
	cfg := minimal()
	cfg.VolumeLimitRatio = "1.5"
	_, err := cfg.Resolve()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.VolumeLimitRatio = "0"
	loaded, err := cfg.Resolve()
	require.NoError(t, err)
	assert.True(t, loaded.VolumeLimitRatio.IsZero())
}
