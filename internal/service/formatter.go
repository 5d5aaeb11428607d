package service

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vokmon/trade-signal/internal/domain"
)

const (
	ChannelOneMinute      = "oneMinute"
	ChannelOneMinuteOTC   = "oneMinute_otc"
	ChannelFiveMinutes    = "fiveMinutes"
	ChannelFiveMinutesVIP = "fiveMinutes_vip"
	ChannelFiveMinutesOTC = "fiveMinutes_otc"

	zoneMarkerPut  = "🔻"
	zoneMarkerCall = "🔺"
)

// Channels lists every channel a signal can be published to.
var Channels = []string{
	ChannelOneMinute,
	ChannelOneMinuteOTC,
	ChannelFiveMinutes,
	ChannelFiveMinutesVIP,
	ChannelFiveMinutesOTC,
}

var optionSuffix = regexp.MustCompile(`(?i)-op$`)

// FormatSignal turns a reported change into the record handed to sinks.
// Channel and ID are assigned by routing.
func FormatSignal(change domain.SignalChange, created time.Time) domain.TradeSignal {
	inst := change.Instrument
	signal := change.Result.Signal

	marker, zone, action := zoneMarkerCall, domain.ZoneSupport, domain.ActionSell
	if signal == domain.SignalPut {
		marker, zone = zoneMarkerPut, domain.ZoneResistance
	}
	if signal == domain.SignalCall {
		action = domain.ActionBuy
	}

	displayName := inst.DisplayName
	if displayName == "" {
		displayName = inst.Name
	}

	return domain.TradeSignal{
		Message:        fmt.Sprintf("%s | %s [%s]", optionSuffix.ReplaceAllString(inst.Name, ""), marker, zone),
		Signal:         signal,
		PreviousSignal: change.Previous,
		Created:        created,
		Data: domain.TradeSignalData{
			InstrumentID:   inst.ID,
			InstrumentName: inst.Name,
			DisplayName:    displayName,
			ImageURL:       inst.ImageURL,
			Action:         action,
			Zone:           zone,
			Timeframe:      domain.TimeframeName(change.Key.CandleSize),
			IsOTC:          inst.IsOTC,
		},
		Details: change.Result.Details,
	}
}

func FormatForLog(sig domain.TradeSignal) string {
	return fmt.Sprintf("signal detected: %s - %s", sig.Message, sig.Data.Timeframe)
}

// RouteSignal expands a formatted signal into one record per destination
// channel. Non-OTC five minute signals go to a full VIP channel and a public
// channel whose message stops before the zone bracket.
func RouteSignal(sig domain.TradeSignal) []domain.TradeSignal {
	switch {
	case sig.Data.Timeframe == domain.TimeframeOneMinute && sig.Data.IsOTC:
		return []domain.TradeSignal{withChannel(sig, ChannelOneMinuteOTC)}
	case sig.Data.Timeframe == domain.TimeframeOneMinute:
		return []domain.TradeSignal{withChannel(sig, ChannelOneMinute)}
	case sig.Data.IsOTC:
		return []domain.TradeSignal{withChannel(sig, ChannelFiveMinutesOTC)}
	default:
		short := withChannel(sig, ChannelFiveMinutes)
		short.Message = truncateAtBracket(sig.Message)
		return []domain.TradeSignal{withChannel(sig, ChannelFiveMinutesVIP), short}
	}
}

func withChannel(sig domain.TradeSignal, channel string) domain.TradeSignal {
	sig.Channel = channel
	return sig
}

func truncateAtBracket(msg string) string {
	if i := strings.Index(msg, "["); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimSpace(msg)
}
