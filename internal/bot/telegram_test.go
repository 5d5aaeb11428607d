package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"github.com/vokmon/trade-signal/internal/connection"
	"github.com/vokmon/trade-signal/internal/domain"
)

func TestNewTelegramBotSkipsWithoutToken(t *testing.T) {
	tg, err := NewTelegramBot("", nil, zerolog.Nop())
	if err != nil || tg != nil {
		t.Fatalf("expected no bot without token, got %v %v", tg, err)
	}
	if tg.Alerts() != nil {
		t.Fatal("expected nil dispatcher from nil bot")
	}
	tg.Start(Deps{})
	tg.Stop()
}

func TestParseSignalArgs(t *testing.T) {
	filter, err := parseSignalArgs([]string{"oneMinute_otc", "10"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filter.Channel != "oneMinute_otc" || filter.Limit != 10 {
		t.Fatalf("unexpected filter: %+v", filter)
	}

	filter, err = parseSignalArgs(nil)
	if err != nil || filter.Limit != defaultSignalsLimit {
		t.Fatalf("expected default limit, got %+v err=%v", filter, err)
	}

	if _, err := parseSignalArgs([]string{"500"}); err == nil {
		t.Fatal("expected limit range error")
	}
	if _, err := parseSignalArgs([]string{"a", "b"}); err == nil {
		t.Fatal("expected multiple channel error")
	}
}

type fakeRegistry struct {
	handlers map[string]tele.HandlerFunc
}

func (r *fakeRegistry) Handle(endpoint interface{}, h tele.HandlerFunc, _ ...tele.MiddlewareFunc) {
	if r.handlers == nil {
		r.handlers = make(map[string]tele.HandlerFunc)
	}
	r.handlers[fmt.Sprint(endpoint)] = h
}

// fakeContext implements the handful of tele.Context methods the handlers use.
type fakeContext struct {
	tele.Context
	chat *tele.Chat
	args []string
	sent []string
}

func (c *fakeContext) Chat() *tele.Chat { return c.chat }
func (c *fakeContext) Args() []string   { return c.args }
func (c *fakeContext) Send(what interface{}, _ ...interface{}) error {
	c.sent = append(c.sent, fmt.Sprint(what))
	return nil
}

type stubCounter int

func (s stubCounter) Count() int { return int(s) }

type stubConnection connection.Status

func (s stubConnection) Status() connection.Status { return connection.Status(s) }

type stubLister struct {
	filter domain.SignalFilter
	out    []domain.TradeSignal
}

func (s *stubLister) ListSignals(_ context.Context, f domain.SignalFilter) ([]domain.TradeSignal, error) {
	s.filter = f
	return s.out, nil
}

func setupHandlers(deps Deps) (*fakeRegistry, *AlertDispatcher) {
	reg := &fakeRegistry{}
	alerts := NewAlertDispatcher(&fakeSender{}, zerolog.Nop())
	registerHandlers(reg, alerts, deps)
	return reg, alerts
}

func TestAlertsCommandTogglesSubscription(t *testing.T) {
	reg, alerts := setupHandlers(Deps{})
	chat := &tele.Chat{ID: 77}

	on := &fakeContext{chat: chat, args: []string{"on"}}
	if err := reg.handlers["/alerts"](on); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !alerts.IsSubscribed(77) || !strings.Contains(on.sent[0], "enabled") {
		t.Fatalf("expected subscription, replies %v", on.sent)
	}

	status := &fakeContext{chat: chat}
	_ = reg.handlers["/alerts"](status)
	if status.sent[0] != "Alerts status: ON" {
		t.Fatalf("unexpected status reply: %v", status.sent)
	}

	off := &fakeContext{chat: chat, args: []string{"off"}}
	_ = reg.handlers["/alerts"](off)
	if alerts.IsSubscribed(77) {
		t.Fatal("expected unsubscribe")
	}

	bad := &fakeContext{chat: chat, args: []string{"maybe"}}
	_ = reg.handlers["/alerts"](bad)
	if !strings.HasPrefix(bad.sent[0], "Usage") {
		t.Fatalf("expected usage reply, got %v", bad.sent)
	}
}

func TestStatusCommandReportsEngineState(t *testing.T) {
	reg, _ := setupHandlers(Deps{
		Processors: stubCounter(12),
		Connection: stubConnection{State: "connected", Attempts: 0},
	})
	c := &fakeContext{chat: &tele.Chat{ID: 1}}
	if err := reg.handlers["/status"](c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(c.sent[0], "Feed: connected") || !strings.Contains(c.sent[0], "Active processors: 12") {
		t.Fatalf("unexpected status: %s", c.sent[0])
	}
}

func TestSignalsCommandListsHistory(t *testing.T) {
	lister := &stubLister{out: []domain.TradeSignal{{
		Channel: "oneMinute",
		Message: "EURUSD | 🔺 [Support zone]",
		Created: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}}}
	reg, _ := setupHandlers(Deps{Signals: lister})

	c := &fakeContext{chat: &tele.Chat{ID: 1}, args: []string{"oneMinute"}}
	if err := reg.handlers["/signals"](c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lister.filter.Channel != "oneMinute" || lister.filter.Limit != defaultSignalsLimit {
		t.Fatalf("unexpected filter: %+v", lister.filter)
	}
	if !strings.Contains(c.sent[0], "EURUSD | 🔺 [Support zone] (oneMinute)") {
		t.Fatalf("unexpected reply: %s", c.sent[0])
	}
}

func TestSignalsCommandWithoutStorage(t *testing.T) {
	reg, _ := setupHandlers(Deps{})
	c := &fakeContext{chat: &tele.Chat{ID: 1}}
	_ = reg.handlers["/signals"](c)
	if c.sent[0] != "Signal history unavailable" {
		t.Fatalf("unexpected reply: %v", c.sent)
	}
}

func TestPingCommand(t *testing.T) {
	reg, _ := setupHandlers(Deps{})
	c := &fakeContext{}
	_ = reg.handlers["/ping"](c)
	if c.sent[0] != "pong" {
		t.Fatalf("unexpected reply: %v", c.sent)
	}
}
