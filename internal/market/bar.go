// Package market holds the plain OHLCV bar type shared by the indicators,
// broker, and state packages.
package market

import "time"

// Bar is one OHLCV candle for a symbol at a given timeframe.
type Bar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// Timeframe names the bar granularity a broker call requests.
type Timeframe string

const (
	Timeframe1Min Timeframe = "1Min"
	Timeframe2Min Timeframe = "2Min"
	Timeframe5Min Timeframe = "5Min"
	Timeframe1Day Timeframe = "1Day"
)

// TypicalPrice is (H+L+C)/3, the per-bar basis for VWAP.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}
