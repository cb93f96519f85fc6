package notifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/backstow/internal/domain"
)

// Telegram sends a summary of every run to one chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(botToken, chatID string) (*Telegram, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Telegram{bot: bot, chatID: id}, nil
}

func (t *Telegram) Notify(ctx context.Context, result domain.RunResult) error {
	msg := tgbotapi.NewMessage(t.chatID, Summary(result))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

// Summary renders result as one message: a header line, then one line per
// element outcome.
func Summary(result domain.RunResult) string {
	var b strings.Builder

	icon := "✅"
	if result.Failed() {
		icon = "❌"
	}
	fmt.Fprintf(&b, "%s %s run %s\n", icon, result.Mode, result.RunID)
	fmt.Fprintf(&b, "🕐 %s (%s)\n\n",
		result.StartedAt.UTC().Format("2006-01-02 15:04:05"),
		result.FinishedAt.Sub(result.StartedAt).Round(time.Second))

	for _, o := range result.Outcomes {
		switch {
		case o.Status != domain.StatusSuccess:
			fmt.Fprintf(&b, "• %s [%s] %s: %s\n", o.Title, o.Phase, o.Status, o.Reason())
		case o.Artifact != nil:
			fmt.Fprintf(&b, "• %s [%s] %s (%s)\n", o.Title, o.Phase, o.Artifact.Name, humanize.Bytes(uint64(o.Artifact.Size)))
		case len(o.Deletions) > 0:
			fmt.Fprintf(&b, "• %s [%s] %d deleted\n", o.Title, o.Phase, len(o.Deletions))
		default:
			fmt.Fprintf(&b, "• %s [%s] ok\n", o.Title, o.Phase)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
