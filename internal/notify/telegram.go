// Package notify sends newly relevant tenders to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/types"
)

// maxMessageLength is Telegram's limit for a text message.
const maxMessageLength = 4096

// Sender is the part of tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts tender digests to one chat.
type Telegram struct {
	api    Sender
	chatID int64
	log    logger.Logger
}

// NewTelegram connects to the Bot API with token.
func NewTelegram(token string, chatID int64, log logger.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramWithSender(api, chatID, log), nil
}

// NewTelegramWithSender builds a notifier over an existing sender.
func NewTelegramWithSender(api Sender, chatID int64, log logger.Logger) *Telegram {
	return &Telegram{api: api, chatID: chatID, log: logger.OrNop(log)}
}

// NotifyRelevant sends the tenders as one or more HTML messages. It stops at the
// first failed send.
func (t *Telegram) NotifyRelevant(ctx context.Context, tenders []*types.Tender) error {
	messages := Digest(tenders, maxMessageLength)
	for i, text := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(t.chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := t.api.Send(msg); err != nil {
			return fmt.Errorf("failed to send telegram message %d/%d: %w", i+1, len(messages), err)
		}
	}
	t.log.Info("sent relevant tender digest",
		logger.Int("tenders", len(tenders)),
		logger.Int("messages", len(messages)),
	)
	return nil
}

// Digest renders tenders into messages no longer than limit.
func Digest(tenders []*types.Tender, limit int) []string {
	if len(tenders) == 0 {
		return nil
	}
	header := fmt.Sprintf("<b>%d new relevant tender(s)</b>\n\n", len(tenders))

	var out []string
	var sb strings.Builder
	sb.WriteString(header)
	for _, t := range tenders {
		entry := FormatTender(t) + "\n\n"
		if sb.Len()+len(entry) > limit && sb.Len() > 0 {
			out = append(out, strings.TrimSpace(sb.String()))
			sb.Reset()
		}
		if len(entry) > limit {
			entry = entry[:limit]
		}
		sb.WriteString(entry)
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// FormatTender renders one tender as Telegram HTML.
func FormatTender(t *types.Tender) string {
	var sb strings.Builder
	title := escape(t.Title)
	if t.URL != "" {
		fmt.Fprintf(&sb, `<a href="%s">%s</a>`, html.EscapeString(t.URL), title)
	} else {
		sb.WriteString("<b>" + title + "</b>")
	}
	var meta []string
	if t.Organization != "" {
		meta = append(meta, escape(t.Organization))
	}
	if t.Country != "" {
		meta = append(meta, escape(t.Country))
	}
	if t.Deadline != nil {
		meta = append(meta, "deadline "+t.Deadline.Format("2006-01-02"))
	}
	if len(meta) > 0 {
		sb.WriteString("\n" + strings.Join(meta, " · "))
	}
	if v := t.Classification; v != nil {
		fmt.Fprintf(&sb, "\n<i>%s %.0f%%</i>", v.Method, v.Confidence)
		if v.Reasoning != "" {
			sb.WriteString(": " + escape(v.Reasoning))
		}
	}
	return sb.String()
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}
