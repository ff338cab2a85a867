package feed

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func writeBundle(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE instruments (
			symbol TEXT, kind TEXT, round_lot TEXT, tick_size TEXT,
			multiplier TEXT, margin_rate TEXT, listed_date TEXT, delisted_date TEXT)`,
		`CREATE TABLE trading_calendar (dt TEXT)`,
		`CREATE TABLE daily_bars (
			symbol TEXT, dt TEXT, open TEXT, high TEXT, low TEXT, close TEXT,
			volume TEXT, turnover TEXT, prev_close TEXT, limit_up TEXT,
			limit_down TEXT, settlement TEXT, prev_settlement TEXT, open_interest TEXT)`,
		`CREATE TABLE dividends (
			symbol TEXT, book_closure_date TEXT, ex_date TEXT, payable_date TEXT,
			cash_per_lot TEXT, round_lot TEXT)`,
		`CREATE TABLE splits (symbol TEXT, ex_date TEXT, factor TEXT)`,
		`CREATE TABLE commissions (
			symbol TEXT, by_volume BOOLEAN, open_rate TEXT, close_rate TEXT, close_today_rate TEXT)`,
		`INSERT INTO instruments VALUES
			('600000', 'stock', '100', '0.01', '1', '0', '1999-11-10', ''),
			('IF2406', 'future', '1', '0.2', '300', '0.12', '2023-06-16', '2024-06-21')`,
		`INSERT INTO trading_calendar VALUES ('2024-01-02'), ('2024-01-03')`,
		`INSERT INTO daily_bars VALUES
			('600000', '2024-01-02', '10.1', '10.6', '10', '10.5',
			 '1000000', '10300000', '10', '11', '9', NULL, NULL, NULL)`,
		`INSERT INTO dividends VALUES
			('600000', '2024-05-20', '2024-05-21', '2024-05-28', '3', '10')`,
		`INSERT INTO splits VALUES ('600000', '2024-06-12', '2')`,
		`INSERT INTO commissions VALUES ('IF2406', 0, '0.000023', '0.000023', '0.00023')`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return path
}

func TestLoadSQLite(t *testing.T) {
	src, err := LoadSQLite(writeBundle(t))
	require.NoError(t, err)

	instruments := src.Instruments()
	require.Len(t, instruments, 2)
	assert.Equal(t, "600000", instruments[0].Symbol)
	assert.Equal(t, schema.InstrumentStock, instruments[0].Kind)
	assert.Equal(t, schema.InstrumentFuture, instruments[1].Kind)
	assert.True(t, instruments[1].Multiplier.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC), instruments[1].DelistedDate)

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bar, err := src.Bar("600000", day, schema.FrequencyDaily)
	require.NoError(t, err)
	assert.True(t, bar.Close.Equal(decimal.RequireFromString("10.5")))
	assert.True(t, bar.LimitUp.Equal(decimal.NewFromInt(11)))
	assert.True(t, bar.Settlement.IsZero())

	calendar := src.TradingCalendar()
	require.Len(t, calendar, 2)
	assert.Equal(t, day, calendar[0])
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), calendar[1])

	dividends := src.Dividends("600000")
	require.Len(t, dividends, 1)
	assert.Equal(t, time.Date(2024, 5, 28, 0, 0, 0, 0, time.UTC), dividends[0].PayableDate)

	splits := src.Splits("600000")
	require.Len(t, splits, 1)
	assert.True(t, splits[0].Factor.Equal(decimal.NewFromInt(2)))

	info, ok := src.CommissionInfo("IF2406")
	require.True(t, ok)
	assert.False(t, info.ByVolume)
	assert.True(t, info.CloseTodayRate.Equal(decimal.RequireFromString("0.00023")))

	_, ok = src.CommissionInfo("600000")
	assert.False(t, ok)
}

func TestLoadSQLiteWithoutOptionalTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE instruments (
			symbol TEXT, kind TEXT, round_lot TEXT, tick_size TEXT,
			multiplier TEXT, margin_rate TEXT, listed_date TEXT, delisted_date TEXT)`,
		`CREATE TABLE trading_calendar (dt TEXT)`,
		`CREATE TABLE daily_bars (
			symbol TEXT, dt TEXT, open TEXT, high TEXT, low TEXT, close TEXT,
			volume TEXT, turnover TEXT, prev_close TEXT, limit_up TEXT,
			limit_down TEXT, settlement TEXT, prev_settlement TEXT, open_interest TEXT)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	src, err := LoadSQLite(path)
	require.NoError(t, err)
	assert.Empty(t, src.Instruments())
	assert.Empty(t, src.Dividends("600000"))
}
