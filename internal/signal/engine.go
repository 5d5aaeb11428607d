package signal

import (
	"github.com/vokmon/trade-signal/internal/domain"
	"github.com/vokmon/trade-signal/internal/indicator"
)

const (
	defaultSupportResistancePeriod = 25
	defaultDonchianPeriod          = 20
	defaultBollingerPeriod         = 14
	defaultBollingerStdDevs        = 2.0
	defaultStochasticKPeriod       = 13
	defaultStochasticDPeriod       = 3
	defaultStochasticSmoothing     = 3
	defaultRSIPeriod               = 14
	defaultMinCandles              = 20

	zoneProximity        = 0.9
	stochasticOverbought = 80.0
	stochasticOversold   = 20.0
	runThreshold         = 3
)

type Config struct {
	SupportResistancePeriod int
	DonchianPeriod          int
	BollingerPeriod         int
	BollingerStdDevs        float64
	StochasticKPeriod       int
	StochasticDPeriod       int
	StochasticSmoothing     int
	RSIPeriod               int
	MinCandles              int
}

func DefaultConfig() Config {
	return Config{
		SupportResistancePeriod: defaultSupportResistancePeriod,
		DonchianPeriod:          defaultDonchianPeriod,
		BollingerPeriod:         defaultBollingerPeriod,
		BollingerStdDevs:        defaultBollingerStdDevs,
		StochasticKPeriod:       defaultStochasticKPeriod,
		StochasticDPeriod:       defaultStochasticDPeriod,
		StochasticSmoothing:     defaultStochasticSmoothing,
		RSIPeriod:               defaultRSIPeriod,
		MinCandles:              defaultMinCandles,
	}
}

// Engine decides PUT/CALL/HOLD for a candle window. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.SupportResistancePeriod <= 0 {
		cfg.SupportResistancePeriod = def.SupportResistancePeriod
	}
	if cfg.DonchianPeriod <= 0 {
		cfg.DonchianPeriod = def.DonchianPeriod
	}
	if cfg.BollingerPeriod <= 0 {
		cfg.BollingerPeriod = def.BollingerPeriod
	}
	if cfg.BollingerStdDevs <= 0 {
		cfg.BollingerStdDevs = def.BollingerStdDevs
	}
	if cfg.StochasticKPeriod <= 0 {
		cfg.StochasticKPeriod = def.StochasticKPeriod
	}
	if cfg.StochasticDPeriod <= 0 {
		cfg.StochasticDPeriod = def.StochasticDPeriod
	}
	if cfg.StochasticSmoothing <= 0 {
		cfg.StochasticSmoothing = def.StochasticSmoothing
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = def.RSIPeriod
	}
	if cfg.MinCandles <= 0 {
		cfg.MinCandles = def.MinCandles
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config { return e.cfg }

// Evaluate runs every indicator over candles (oldest first) and applies the
// PUT/CALL conjunctions to the most recent values.
func (e *Engine) Evaluate(candles []domain.Candle) domain.SignalResult {
	if len(candles) < e.cfg.MinCandles {
		return domain.HoldResult()
	}

	levels := indicator.SupportResistance(candles, e.cfg.SupportResistancePeriod)
	channels := indicator.Donchian(candles, e.cfg.DonchianPeriod)
	bands := indicator.Bollinger(candles, e.cfg.BollingerPeriod, e.cfg.BollingerStdDevs)
	oscillator := indicator.Stochastic(candles, e.cfg.StochasticKPeriod, e.cfg.StochasticDPeriod, e.cfg.StochasticSmoothing)
	rsi := indicator.RSI(candles, e.cfg.RSIPeriod)
	runs := indicator.ConsecutiveColors(candles)

	if len(levels) == 0 || len(channels) == 0 || len(bands) == 0 ||
		len(oscillator) == 0 || len(rsi) == 0 || len(runs) == 0 {
		return domain.HoldResult()
	}
	lastLevel := levels[len(levels)-1]
	if lastLevel.Resistance == nil || lastLevel.Support == nil {
		return domain.HoldResult()
	}

	last := candles[len(candles)-1]
	resistance := *lastLevel.Resistance
	support := *lastLevel.Support
	lastBand := bands[len(bands)-1]
	lastK := oscillator[len(oscillator)-1].K
	run := runs[len(runs)-1].Run

	var d domain.SignalDetails

	mid := (resistance + support) / 2
	d.ResistanceZoneHeight = resistance - mid
	d.SupportZoneHeight = mid - support
	if d.ResistanceZoneHeight > 0 {
		d.ResistanceZonePosition = (last.High - mid) / d.ResistanceZoneHeight
		d.IsNearResistance = d.ResistanceZonePosition >= zoneProximity
	}
	if d.SupportZoneHeight > 0 {
		d.SupportZonePosition = (mid - last.Low) / d.SupportZoneHeight
		d.IsNearSupport = d.SupportZonePosition >= zoneProximity
	}

	// Breakouts compare against the channel as it stood one candle earlier.
	hasPrevChannel := len(channels) >= 2
	if hasPrevChannel {
		prev := channels[len(channels)-2]
		d.DonchianBreakout.Upper = last.High > prev.Upper
		d.DonchianBreakout.Lower = last.Low < prev.Lower
	}

	d.BollingerPosition.AboveUpper = last.High > lastBand.Upper
	d.BollingerPosition.BelowLower = last.Low < lastBand.Lower

	d.Stochastic.K = lastK
	d.Stochastic.Overbought = lastK > stochasticOverbought
	d.Stochastic.Oversold = lastK < stochasticOversold

	d.ConsecutiveCandles = run
	d.RSI = rsi[len(rsi)-1].Value

	put := d.IsNearResistance &&
		hasPrevChannel &&
		d.DonchianBreakout.Upper &&
		d.BollingerPosition.AboveUpper &&
		d.Stochastic.Overbought &&
		run >= runThreshold

	call := d.IsNearSupport &&
		hasPrevChannel &&
		d.DonchianBreakout.Lower &&
		d.BollingerPosition.BelowLower &&
		d.Stochastic.Oversold &&
		run <= -runThreshold

	result := domain.SignalResult{Signal: domain.SignalHold, Details: d}
	switch {
	case put:
		result.Signal = domain.SignalPut
	case call:
		result.Signal = domain.SignalCall
	}
	return result
}
