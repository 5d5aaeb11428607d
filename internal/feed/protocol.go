package feed

import (
	"encoding/json"

	"github.com/vokmon/trade-signal/internal/domain"
)

const (
	msgAuthenticate      = "authenticate"
	msgTimeSync          = "timeSync"
	msgGetUnderlyings    = "get-underlyings"
	msgGetActive         = "get-active"
	msgGetCandles        = "get-candles"
	msgSubscribeCandle   = "subscribe-candle"
	msgUnsubscribeCandle = "unsubscribe-candle"
	msgCandleGenerated   = "candle-generated"
)

// envelope is the frame exchanged in both directions. Responses echo the
// request id and carry a status; pushes have no request id.
type envelope struct {
	Name      string          `json:"name"`
	RequestID string          `json:"request_id,omitempty"`
	Status    int             `json:"status,omitempty"`
	Msg       json.RawMessage `json:"msg,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
}

type authenticateBody struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	PlatformID int    `json:"platform_id"`
}

type underlyingsRequest struct {
	AsOf int64 `json:"as_of"`
}

type activeRequest struct {
	ActiveID int64 `json:"active_id"`
}

type wireInstrument struct {
	ActiveID    int64  `json:"active_id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	ImageURL    string `json:"image_url"`
	IsOTC       bool   `json:"is_otc"`
	Suspended   bool   `json:"is_suspended"`
}

func (w wireInstrument) toDomain() domain.Instrument {
	return domain.Instrument{
		ID:          w.ActiveID,
		Name:        w.Name,
		DisplayName: w.DisplayName,
		ImageURL:    w.ImageURL,
		IsOTC:       w.IsOTC,
	}
}

type underlyingsResponse struct {
	Underlyings []wireInstrument `json:"underlyings"`
}

type candlesRequest struct {
	ActiveID int64 `json:"active_id"`
	Size     int   `json:"size"`
	From     int64 `json:"from"`
	To       int64 `json:"to"`
}

type wireCandle struct {
	ActiveID int64   `json:"active_id,omitempty"`
	Size     int     `json:"size,omitempty"`
	From     int64   `json:"from"`
	Open     float64 `json:"open"`
	Max      float64 `json:"max"`
	Min      float64 `json:"min"`
	Close    float64 `json:"close"`
}

func (w wireCandle) toDomain() domain.Candle {
	return domain.Candle{OpenTime: w.From, Open: w.Open, High: w.Max, Low: w.Min, Close: w.Close}
}

type candlesResponse struct {
	Candles []wireCandle `json:"candles"`
}

type candleSubscriptionBody struct {
	ActiveID int64 `json:"active_id"`
	Size     int   `json:"size"`
}
