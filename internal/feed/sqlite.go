package feed

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"main/internal/errors"
	"main/internal/model"
	"main/internal/schema"
)

const dateLayout = "2006-01-02"

// LoadSQLite reads the whole bundle database into a MemorySource. A
// backtest touches every bar anyway, so the data is loaded once up front
// and all subsequent lookups stay allocation-free and deterministic.
//
// Expected tables: instruments, trading_calendar, daily_bars, minute_bars,
// ticks, dividends, splits, transformations, commissions. Prices are
// stored as TEXT and parsed with decimal to avoid float drift.
func LoadSQLite(path string) (*MemorySource, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrap(err, "open bundle db")
	}
	defer db.Close()

	src := NewMemorySource()
	if err := loadInstruments(db, src); err != nil {
		return nil, err
	}
	if err := loadCalendar(db, src); err != nil {
		return nil, err
	}
	if err := loadBars(db, src, "daily_bars", schema.FrequencyDaily); err != nil {
		return nil, err
	}
	if err := loadBars(db, src, "minute_bars", schema.FrequencyMinute); err != nil {
		return nil, err
	}
	if err := loadCorporateActions(db, src); err != nil {
		return nil, err
	}
	if err := loadCommissions(db, src); err != nil {
		return nil, err
	}
	return src, nil
}

func loadInstruments(db *sql.DB, src *MemorySource) error {
	rows, err := db.Query(`
		SELECT symbol, kind, round_lot, tick_size, multiplier, margin_rate, listed_date, delisted_date
		FROM instruments ORDER BY symbol`)
	if err != nil {
		return errors.Wrap(err, "query instruments")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			symbol, kind                               string
			roundLot, tickSize, multiplier, marginRate string
			listed, delisted                           sql.NullString
		)
		if err := rows.Scan(&symbol, &kind, &roundLot, &tickSize, &multiplier, &marginRate, &listed, &delisted); err != nil {
			return errors.Wrap(err, "scan instrument")
		}
		ins := schema.Instrument{
			Symbol:     symbol,
			Kind:       parseKind(kind),
			RoundLot:   mustDecimal(roundLot),
			TickSize:   mustDecimal(tickSize),
			Multiplier: mustDecimal(multiplier),
			MarginRate: mustDecimal(marginRate),
		}
		if listed.Valid && listed.String != "" {
			ins.ListedDate, _ = time.Parse(dateLayout, listed.String)
		}
		if delisted.Valid && delisted.String != "" {
			ins.DelistedDate, _ = time.Parse(dateLayout, delisted.String)
		}
		src.AddInstrument(ins)
	}
	return rows.Err()
}

func loadCalendar(db *sql.DB, src *MemorySource) error {
	rows, err := db.Query(`SELECT dt FROM trading_calendar ORDER BY dt`)
	if err != nil {
		return errors.Wrap(err, "query trading calendar")
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return errors.Wrap(err, "scan calendar date")
		}
		date, err := time.Parse(dateLayout, raw)
		if err != nil {
			return errors.Wrapf(err, "parse calendar date %q", raw)
		}
		dates = append(dates, date)
	}
	src.SetCalendar(dates)
	return rows.Err()
}

func loadBars(db *sql.DB, src *MemorySource, table string, freq schema.Frequency) error {
	rows, err := db.Query(`
		SELECT symbol, dt, open, high, low, close, volume, turnover,
		       prev_close, limit_up, limit_down, settlement, prev_settlement, open_interest
		FROM ` + table + ` ORDER BY symbol, dt`)
	if err != nil {
		// minute bars are optional for daily-only bundles
		if table == "minute_bars" {
			return nil
		}
		return errors.Wrapf(err, "query %s", table)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			symbol, dt                                                string
			open, high, low, closep, volume, turnover                 string
			prevClose, limitUp, limitDown, settle, prevSettle, openIn sql.NullString
		)
		if err := rows.Scan(&symbol, &dt, &open, &high, &low, &closep, &volume, &turnover,
			&prevClose, &limitUp, &limitDown, &settle, &prevSettle, &openIn); err != nil {
			return errors.Wrapf(err, "scan %s", table)
		}
		ts, err := parseBarTime(dt)
		if err != nil {
			return errors.Wrapf(err, "parse %s time %q", table, dt)
		}
		src.AddBar(freq, model.Bar{
			Symbol:         symbol,
			DateTime:       ts,
			Open:           mustDecimal(open),
			High:           mustDecimal(high),
			Low:            mustDecimal(low),
			Close:          mustDecimal(closep),
			Volume:         mustDecimal(volume),
			Turnover:       mustDecimal(turnover),
			PrevClose:      nullDecimal(prevClose),
			LimitUp:        nullDecimal(limitUp),
			LimitDown:      nullDecimal(limitDown),
			Settlement:     nullDecimal(settle),
			PrevSettlement: nullDecimal(prevSettle),
			OpenInterest:   nullDecimal(openIn),
		})
	}
	return rows.Err()
}

func loadCorporateActions(db *sql.DB, src *MemorySource) error {
	rows, err := db.Query(`
		SELECT symbol, book_closure_date, ex_date, payable_date, cash_per_lot, round_lot
		FROM dividends ORDER BY symbol, ex_date`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var symbol, book, ex, payable, cash, lot string
			if err := rows.Scan(&symbol, &book, &ex, &payable, &cash, &lot); err != nil {
				return errors.Wrap(err, "scan dividend")
			}
			bookDate, _ := time.Parse(dateLayout, book)
			exDate, _ := time.Parse(dateLayout, ex)
			payDate, _ := time.Parse(dateLayout, payable)
			src.AddDividend(symbol, Dividend{
				BookClosureDate: bookDate,
				ExDate:          exDate,
				PayableDate:     payDate,
				CashPerLot:      mustDecimal(cash),
				RoundLot:        mustDecimal(lot),
			})
		}
		if err := rows.Err(); err != nil {
			return err
		}
	}

	splitRows, err := db.Query(`SELECT symbol, ex_date, factor FROM splits ORDER BY symbol, ex_date`)
	if err == nil {
		defer splitRows.Close()
		for splitRows.Next() {
			var symbol, ex, factor string
			if err := splitRows.Scan(&symbol, &ex, &factor); err != nil {
				return errors.Wrap(err, "scan split")
			}
			exDate, _ := time.Parse(dateLayout, ex)
			src.AddSplit(symbol, Split{ExDate: exDate, Factor: mustDecimal(factor)})
		}
		if err := splitRows.Err(); err != nil {
			return err
		}
	}

	trRows, err := db.Query(`SELECT symbol, effective_date, successor, ratio FROM transformations`)
	if err == nil {
		defer trRows.Close()
		for trRows.Next() {
			var symbol, eff, successor, ratio string
			if err := trRows.Scan(&symbol, &eff, &successor, &ratio); err != nil {
				return errors.Wrap(err, "scan transformation")
			}
			effDate, _ := time.Parse(dateLayout, eff)
			src.SetTransformation(symbol, Transformation{
				EffectiveDate: effDate,
				Successor:     successor,
				Ratio:         mustDecimal(ratio),
			})
		}
		if err := trRows.Err(); err != nil {
			return err
		}
	}
	return nil
}

func loadCommissions(db *sql.DB, src *MemorySource) error {
	rows, err := db.Query(`
		SELECT symbol, by_volume, open_rate, close_rate, close_today_rate
		FROM commissions ORDER BY symbol`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	for rows.Next() {
		var (
			symbol                         string
			byVolume                       bool
			openRate, closeRate, closeTRat string
		)
		if err := rows.Scan(&symbol, &byVolume, &openRate, &closeRate, &closeTRat); err != nil {
			return errors.Wrap(err, "scan commission")
		}
		src.SetCommissionInfo(symbol, CommissionInfo{
			ByVolume:       byVolume,
			OpenRate:       mustDecimal(openRate),
			CloseRate:      mustDecimal(closeRate),
			CloseTodayRate: mustDecimal(closeTRat),
		})
	}
	return rows.Err()
}

func parseKind(s string) schema.InstrumentKind {
	switch s {
	case "stock":
		return schema.InstrumentStock
	case "fund":
		return schema.InstrumentFund
	case "future":
		return schema.InstrumentFuture
	default:
		return schema.InstrumentUnknown
	}
}

func parseBarTime(s string) (time.Time, error) {
	if len(s) == len(dateLayout) {
		return time.Parse(dateLayout, s)
	}
	return time.Parse(time.DateTime, s)
}

func mustDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullDecimal(s sql.NullString) decimal.Decimal {
	if !s.Valid {
		return decimal.Zero
	}
	return mustDecimal(s.String)
}
