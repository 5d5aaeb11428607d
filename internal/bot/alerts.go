package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"github.com/vokmon/trade-signal/internal/domain"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// AlertDispatcher broadcasts directional signals to subscribed chats.
type AlertDispatcher struct {
	sender messageSender
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[int64]struct{}
}

func NewAlertDispatcher(sender messageSender, logger zerolog.Logger, chatIDs ...int64) *AlertDispatcher {
	d := &AlertDispatcher{
		sender:      sender,
		logger:      logger.With().Str("component", "alerts").Logger(),
		subscribers: make(map[int64]struct{}),
	}
	for _, id := range chatIDs {
		d.subscribers[id] = struct{}{}
	}
	return d
}

func (d *AlertDispatcher) Subscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; exists {
		return false
	}
	d.subscribers[chatID] = struct{}{}
	return true
}

func (d *AlertDispatcher) Unsubscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; !exists {
		return false
	}
	delete(d.subscribers, chatID)
	return true
}

func (d *AlertDispatcher) IsSubscribed(chatID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.subscribers[chatID]
	return exists
}

func (d *AlertDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

// NotifySignal sends sig to every subscriber. A failed chat does not stop
// delivery to the rest.
func (d *AlertDispatcher) NotifySignal(ctx context.Context, sig domain.TradeSignal) error {
	if d == nil || d.sender == nil {
		return nil
	}

	chatIDs := d.snapshotSubscribers()
	if len(chatIDs) == 0 {
		return nil
	}

	text := formatAlertMessage(sig)
	var failures []string
	for _, chatID := range chatIDs {
		if ctx.Err() != nil {
			failures = append(failures, fmt.Sprintf("chat %d: %v", chatID, ctx.Err()))
			continue
		}
		if _, err := d.sender.Send(&tele.Chat{ID: chatID}, alertPayload(sig, text)); err != nil {
			d.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("alert delivery failed")
			failures = append(failures, fmt.Sprintf("chat %d: %v", chatID, err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed sending %d alerts: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}

func (d *AlertDispatcher) snapshotSubscribers() []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chatIDs := make([]int64, 0, len(d.subscribers))
	for chatID := range d.subscribers {
		chatIDs = append(chatIDs, chatID)
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })
	return chatIDs
}

func parseAlertMode(args []string) (string, error) {
	if len(args) == 0 {
		return "status", nil
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "on":
		return "on", nil
	case "off":
		return "off", nil
	case "status":
		return "status", nil
	default:
		return "", fmt.Errorf("invalid mode")
	}
}

func formatAlertMessage(sig domain.TradeSignal) string {
	tags := []string{sig.Data.Timeframe}
	if sig.Data.IsOTC {
		tags = append(tags, "OTC")
	}
	return fmt.Sprintf("%s\n%s", sig.Message, strings.Join(tags, " · "))
}

// alertPayload attaches the instrument image when the feed supplied one.
func alertPayload(sig domain.TradeSignal, text string) interface{} {
	if sig.Data.ImageURL == "" {
		return text
	}
	return &tele.Photo{File: tele.FromURL(sig.Data.ImageURL), Caption: text}
}
