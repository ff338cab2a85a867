package schema

import "time"

// MarketProfile carries the market-wide trading rules that are configuration,
// not policy: session offsets from midnight, the daily price band and the
// T+1 settlement flag.
type MarketProfile struct {
	Name                string
	BeforeTradingOffset time.Duration
	OpenAuctionOffset   time.Duration
	BarCloseOffset      time.Duration
	AfterTradingOffset  time.Duration
	PriceLimitRatio     float64
	TPlusOne            bool
}

// CNMarket returns the default mainland China market profile.
func CNMarket() MarketProfile {
	return MarketProfile{
		Name:                "cn",
		BeforeTradingOffset: 9 * time.Hour,
		OpenAuctionOffset:   9*time.Hour + 15*time.Minute,
		BarCloseOffset:      15 * time.Hour,
		AfterTradingOffset:  15*time.Hour + 30*time.Minute,
		PriceLimitRatio:     0.1,
		TPlusOne:            true,
	}
}

// At anchors an offset onto a trading date.
func (p MarketProfile) At(date time.Time, offset time.Duration) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, date.Location()).Add(offset)
}
