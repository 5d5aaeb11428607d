package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"github.com/vokmon/trade-signal/internal/connection"
	"github.com/vokmon/trade-signal/internal/domain"
)

const defaultSignalsLimit = 5

type ProcessorCounter interface {
	Count() int
}

type ConnectionReporter interface {
	Status() connection.Status
}

type SignalLister interface {
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.TradeSignal, error)
}

type Deps struct {
	Processors ProcessorCounter
	Connection ConnectionReporter
	Signals    SignalLister
}

// TelegramBot owns the telebot client and the alert dispatcher built on it.
type TelegramBot struct {
	bot    *tele.Bot
	alerts *AlertDispatcher
	logger zerolog.Logger
}

// NewTelegramBot returns nil without error when token is empty. chatIDs are
// subscribed to alerts from the start.
func NewTelegramBot(token string, chatIDs []int64, logger zerolog.Logger) (*TelegramBot, error) {
	if token == "" {
		logger.Warn().Msg("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil, nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			logger.Error().Err(err).Msg("telegram handler failed")
		},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramBot{
		bot:    b,
		alerts: NewAlertDispatcher(b, logger, chatIDs...),
		logger: logger,
	}, nil
}

func (t *TelegramBot) Alerts() *AlertDispatcher {
	if t == nil {
		return nil
	}
	return t.alerts
}

// Start registers the command handlers and begins long polling in the
// background.
func (t *TelegramBot) Start(deps Deps) {
	if t == nil {
		return
	}
	registerHandlers(t.bot, t.alerts, deps)
	t.logger.Info().Int("subscribers", t.alerts.SubscriberCount()).Msg("telegram bot started")
	go t.bot.Start()
}

func (t *TelegramBot) Stop() {
	if t == nil {
		return
	}
	t.bot.Stop()
}

type handlerRegistry interface {
	Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
}

func registerHandlers(b handlerRegistry, alerts *AlertDispatcher, deps Deps) {
	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/status", func(c tele.Context) error {
		return c.Send(formatStatus(deps))
	})

	b.Handle("/signals", func(c tele.Context) error {
		if deps.Signals == nil {
			return c.Send("Signal history unavailable")
		}
		filter, err := parseSignalArgs(c.Args())
		if err != nil {
			return c.Send("Usage: /signals [channel] [limit]")
		}
		signals, err := deps.Signals.ListSignals(context.Background(), filter)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching signals: %v", err))
		}
		if len(signals) == 0 {
			return c.Send("No signals recorded yet.")
		}
		lines := make([]string, 0, len(signals)+1)
		lines = append(lines, "Latest signals:")
		for _, s := range signals {
			lines = append(lines, formatSignalLine(s))
		}
		return c.Send(strings.Join(lines, "\n"))
	})

	b.Handle("/alerts", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}

		mode, err := parseAlertMode(c.Args())
		if err != nil {
			return c.Send("Usage: /alerts on | /alerts off | /alerts status")
		}

		switch mode {
		case "on":
			if alerts.Subscribe(chat.ID) {
				return c.Send("Signal alerts enabled for this chat.")
			}
			return c.Send("Signal alerts are already enabled for this chat.")
		case "off":
			if alerts.Unsubscribe(chat.ID) {
				return c.Send("Signal alerts disabled for this chat.")
			}
			return c.Send("Signal alerts are already disabled for this chat.")
		default:
			if alerts.IsSubscribed(chat.ID) {
				return c.Send("Alerts status: ON")
			}
			return c.Send("Alerts status: OFF")
		}
	})
}

func formatStatus(deps Deps) string {
	lines := []string{"Signal engine status"}
	if deps.Connection != nil {
		st := deps.Connection.Status()
		line := fmt.Sprintf("Feed: %s (attempts %d)", st.State, st.Attempts)
		if st.LastErr != "" {
			line += "\nLast error: " + st.LastErr
		}
		lines = append(lines, line)
	}
	if deps.Processors != nil {
		lines = append(lines, fmt.Sprintf("Active processors: %d", deps.Processors.Count()))
	}
	return strings.Join(lines, "\n")
}

func parseSignalArgs(args []string) (domain.SignalFilter, error) {
	filter := domain.SignalFilter{Limit: defaultSignalsLimit}

	for _, raw := range args {
		arg := strings.TrimSpace(raw)
		if arg == "" {
			continue
		}
		if n, err := strconv.Atoi(arg); err == nil {
			if n <= 0 || n > 50 {
				return domain.SignalFilter{}, errors.New("limit out of range")
			}
			filter.Limit = n
			continue
		}
		if filter.Channel != "" {
			return domain.SignalFilter{}, errors.New("multiple channels provided")
		}
		filter.Channel = arg
	}
	return filter, nil
}

func formatSignalLine(s domain.TradeSignal) string {
	return fmt.Sprintf("%s %s (%s)", s.Created.UTC().Format(time.RFC822), s.Message, s.Channel)
}
