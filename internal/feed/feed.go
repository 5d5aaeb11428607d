// Package feed defines the market-data contracts the signal pipeline consumes
// and a websocket implementation of them.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/vokmon/trade-signal/internal/domain"
)

var (
	ErrNotConnected = errors.New("feed: not connected")
	ErrTimeout      = errors.New("feed: request timed out")
)

// TransportState is reported by a Conn when its underlying transport changes.
type TransportState int

const (
	TransportDisconnected TransportState = iota
	TransportConnected
)

func (s TransportState) String() string {
	if s == TransportConnected {
		return "connected"
	}
	return "disconnected"
}

// Subscription is a live last-candle subscription.
type Subscription interface {
	Unsubscribe() error
}

// CandleSource is the read side of a feed session used by processors and the
// supervisor.
type CandleSource interface {
	// ServerTime is the feed's clock, not the local one.
	ServerTime() time.Time
	TradableInstruments(ctx context.Context, asOf time.Time) ([]domain.Instrument, error)
	Instrument(ctx context.Context, id int64) (domain.Instrument, error)
	FetchCandles(ctx context.Context, instrumentID int64, candleSize int, from time.Time) ([]domain.Candle, error)
	SubscribeLastCandle(ctx context.Context, instrumentID int64, candleSize int, fn func(domain.Candle)) (Subscription, error)
}

// Conn is one authenticated feed session.
type Conn interface {
	CandleSource
	OnStateChange(fn func(TransportState))
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }
