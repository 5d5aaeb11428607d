package domain

import (
	"fmt"
	"time"
)

// Candle is one OHLC bar. OpenTime is in unix seconds.
type Candle struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
}

func (c Candle) IsGreen() bool { return c.Close > c.Open }
func (c Candle) IsRed() bool   { return c.Close < c.Open }
func (c Candle) IsDoji() bool  { return c.Close == c.Open }

// Instrument is reference data supplied by the feed. ID zero means the feed
// did not provide an identity.
type Instrument struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	IsOTC       bool   `json:"is_otc"`
}

type SignalType string

const (
	SignalPut  SignalType = "PUT"
	SignalCall SignalType = "CALL"
	SignalHold SignalType = "HOLD"
)

func (s SignalType) IsDirectional() bool {
	return s == SignalPut || s == SignalCall
}

type Breakout struct {
	Upper bool `json:"upper"`
	Lower bool `json:"lower"`
}

type BandPosition struct {
	AboveUpper bool `json:"above_upper"`
	BelowLower bool `json:"below_lower"`
}

type StochasticPosition struct {
	Overbought bool    `json:"overbought"`
	Oversold   bool    `json:"oversold"`
	K          float64 `json:"k"`
}

// SignalDetails records every intermediate value used by a decision.
type SignalDetails struct {
	IsNearResistance       bool               `json:"is_near_resistance"`
	IsNearSupport          bool               `json:"is_near_support"`
	ResistanceZoneHeight   float64            `json:"resistance_zone_height"`
	SupportZoneHeight      float64            `json:"support_zone_height"`
	ResistanceZonePosition float64            `json:"resistance_zone_position"`
	SupportZonePosition    float64            `json:"support_zone_position"`
	DonchianBreakout       Breakout           `json:"donchian_breakout"`
	BollingerPosition      BandPosition       `json:"bollinger_position"`
	Stochastic             StochasticPosition `json:"stochastic"`
	ConsecutiveCandles     int                `json:"consecutive_candles"`
	RSI                    float64            `json:"rsi"`
}

// SignalResult is a value type; copies never share state.
type SignalResult struct {
	Signal  SignalType    `json:"signal"`
	Details SignalDetails `json:"details"`
}

// HoldResult is the zero-detail HOLD used when data is insufficient.
func HoldResult() SignalResult {
	return SignalResult{Signal: SignalHold}
}

// ProcessorKey identifies one instrument processor.
type ProcessorKey struct {
	InstrumentID int64 `json:"instrument_id"`
	CandleSize   int   `json:"candle_size"`
}

func (k ProcessorKey) String() string {
	return fmt.Sprintf("%d-%d", k.InstrumentID, k.CandleSize)
}

const (
	TimeframeOneMinute   = "oneMinute"
	TimeframeFiveMinutes = "fiveMinutes"
)

// SupportedTimeframes lists the candle sizes in minutes the engine runs on.
var SupportedTimeframes = []int{1, 5}

func TimeframeName(candleSize int) string {
	if candleSize == 60 {
		return TimeframeOneMinute
	}
	return TimeframeFiveMinutes
}

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"

	ZoneSupport    = "Support zone"
	ZoneResistance = "Resistance zone"
)

type TradeSignalData struct {
	InstrumentID   int64  `json:"instrument_id"`
	InstrumentName string `json:"instrument_name"`
	DisplayName    string `json:"display_name"`
	ImageURL       string `json:"image_url"`
	Action         string `json:"action"`
	Zone           string `json:"zone"`
	Timeframe      string `json:"timeframe"`
	IsOTC          bool   `json:"is_otc"`
}

// TradeSignal is the formatted record handed to persistence and alerting.
type TradeSignal struct {
	ID             string          `json:"id"`
	Channel        string          `json:"channel"`
	Message        string          `json:"message"`
	Signal         SignalType      `json:"signal"`
	PreviousSignal SignalType      `json:"previous_signal,omitempty"`
	Created        time.Time       `json:"created"`
	Data           TradeSignalData `json:"data"`
	Details        SignalDetails   `json:"details"`
}

type SignalFilter struct {
	Channel      string
	InstrumentID int64
	Limit        int
}

// SignalChange is emitted by a processor when its reported signal changes.
// Previous is empty for the first reported signal.
type SignalChange struct {
	Key        ProcessorKey `json:"key"`
	Instrument Instrument   `json:"instrument"`
	Result     SignalResult `json:"result"`
	Previous   SignalType   `json:"previous,omitempty"`
	At         time.Time    `json:"at"`
}
