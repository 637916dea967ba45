package monitoring

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-telegram/bot"
)

// Notifier pushes alerts to a Telegram chat.
type Notifier struct {
	bot    *bot.Bot
	chatID int64
}

// NewNotifier creates a Telegram notifier. An empty token returns a nil
// notifier without error so callers can wire alerts unconditionally.
func NewNotifier(token string, chatID int64) (*Notifier, error) {
	if token == "" {
		return nil, nil
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &Notifier{bot: b, chatID: chatID}, nil
}

// Notify is a Service alert handler. Delivery failures are logged, not
// propagated, so a Telegram outage never blocks the check loop.
func (n *Notifier) Notify(alert Alert) {
	if n == nil || n.bot == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	text := fmt.Sprintf("[%s] %s: %s", alert.Severity, alert.Component, alert.Message)
	if alert.Resolved {
		text = fmt.Sprintf("resolved %s: %s", alert.Component, alert.Message)
	}
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		log.Printf("telegram alert delivery failed: %v", err)
	}
}
