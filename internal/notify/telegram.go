// Package notify delivers best-effort booking notifications. The scheduler
// posts booking activity to an operations channel; delivery failures are
// logged and never affect the booking transition itself.
package notify

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/reportgov/meeting-scheduler/internal/slot"
)

type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier builds a notifier posting to the given chat. An empty
// token disables delivery instead of failing startup, so local and test
// environments run without a bot.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	if token == "" {
		log.Println("telegram bot token is empty, booking notifications disabled")
		return &TelegramNotifier{}, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

// ChatIDFromEnv reads TELEGRAM_CHAT_ID, returning 0 when unset or invalid.
func ChatIDFromEnv() int64 {
	v := os.Getenv("TELEGRAM_CHAT_ID")
	if v == "" {
		return 0
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("invalid TELEGRAM_CHAT_ID %q, notifications disabled", v)
		return 0
	}
	return id
}

func (n *TelegramNotifier) SlotBooked(ctx context.Context, s *slot.Slot, booker *slot.User, owner *slot.Staff) {
	agency := ""
	if booker.Agency != nil {
		agency = " (" + *booker.Agency + ")"
	}
	n.send(ctx, fmt.Sprintf(
		"Meeting booked: %s%s with %s [%s] on %s",
		booker.Name, agency, owner.Name, s.Workstream,
		s.StartTime.Format("02 Jan 2006 15:04 MST"),
	))
}

func (n *TelegramNotifier) SlotReleased(ctx context.Context, s *slot.Slot, owner *slot.Staff) {
	n.send(ctx, fmt.Sprintf(
		"Meeting slot released: %s [%s] on %s is open again",
		owner.Name, s.Workstream,
		s.StartTime.Format("02 Jan 2006 15:04 MST"),
	))
}

func (n *TelegramNotifier) send(ctx context.Context, text string) {
	if n.bot == nil || n.chatID == 0 {
		log.Printf("notification skipped (bot disabled): %s", text)
		return
	}
	if err := ctx.Err(); err != nil {
		log.Printf("notification skipped (context cancelled): %s", text)
		return
	}

	if _, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, text)); err != nil {
		log.Printf("failed to send telegram notification: %v", err)
	}
}
