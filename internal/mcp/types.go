package mcp

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vokmon/trade-signal/internal/connection"
	"github.com/vokmon/trade-signal/internal/domain"
	"github.com/vokmon/trade-signal/internal/job"
	"github.com/vokmon/trade-signal/internal/processor"
	"github.com/vokmon/trade-signal/internal/service"
)

const (
	defaultSignalLimit = 50
	maxSignalLimit     = 500
)

type signalsListInput struct {
	Channel      string `json:"channel,omitempty" jsonschema:"optional channel: oneMinute, oneMinute_otc, fiveMinutes, fiveMinutes_vip, fiveMinutes_otc"`
	InstrumentID int64  `json:"instrument_id,omitempty" jsonschema:"optional instrument id"`
	Limit        int    `json:"limit,omitempty" jsonschema:"number of signals to return, max 500"`
}

type signalsListOutput struct {
	Signals []domain.TradeSignal `json:"signals"`
}

type signalsLatestInput struct {
	InstrumentID int64 `json:"instrument_id" jsonschema:"instrument id"`
	CandleSize   int   `json:"candle_size" jsonschema:"candle size in seconds: 60 or 300"`
}

type signalsLatestOutput struct {
	Found  bool                `json:"found"`
	Signal *domain.TradeSignal `json:"signal,omitempty"`
}

type processorsStatusInput struct{}

type processorsStatusOutput struct {
	Supervisor job.SupervisorStatus `json:"supervisor"`
	Processors []processor.Status   `json:"processors"`
}

type connectionStatusInput struct{}

type connectionStatusOutput struct {
	Connection connection.Status `json:"connection"`
}

func normalizeChannel(channel string) (string, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return "", nil
	}
	if !slices.Contains(service.Channels, channel) {
		return "", fmt.Errorf("unsupported channel: %s", channel)
	}
	return channel, nil
}

func normalizeSignalLimit(limit int) int {
	if limit <= 0 {
		return defaultSignalLimit
	}
	if limit > maxSignalLimit {
		return maxSignalLimit
	}
	return limit
}

func normalizeSignalFilter(in signalsListInput) (domain.SignalFilter, error) {
	filter := domain.SignalFilter{Limit: normalizeSignalLimit(in.Limit)}

	channel, err := normalizeChannel(in.Channel)
	if err != nil {
		return domain.SignalFilter{}, err
	}
	filter.Channel = channel

	if in.InstrumentID < 0 {
		return domain.SignalFilter{}, fmt.Errorf("instrument_id must be positive")
	}
	filter.InstrumentID = in.InstrumentID

	return filter, nil
}

// normalizeProcessorKey accepts only candle sizes a processor can run on.
func normalizeProcessorKey(instrumentID int64, candleSize int) (domain.ProcessorKey, error) {
	if instrumentID <= 0 {
		return domain.ProcessorKey{}, fmt.Errorf("instrument_id must be positive")
	}
	for _, minutes := range domain.SupportedTimeframes {
		if candleSize == minutes*60 {
			return domain.ProcessorKey{InstrumentID: instrumentID, CandleSize: candleSize}, nil
		}
	}
	return domain.ProcessorKey{}, fmt.Errorf("unsupported candle_size: %d", candleSize)
}
