package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tender-radar/internal/types"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func relevantTender(i int) *types.Tender {
	deadline := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	return &types.Tender{
		ID:           fmt.Sprint(i),
		Title:        fmt.Sprintf("Evaluation <lot %d> & review", i),
		Organization: "Ministry of Labour",
		Country:      "BE",
		URL:          fmt.Sprintf("https://example.org/t/%d?a=1&b=2", i),
		Deadline:     &deadline,
		Classification: &types.Verdict{
			IsRelevant: true, Confidence: 91, Method: types.MethodPrimary, Reasoning: "Programme evaluation",
		},
	}
}

func TestFormatTender(t *testing.T) {
	out := FormatTender(relevantTender(1))

	assert.Contains(t, out, `<a href="https://example.org/t/1?a=1&amp;b=2">Evaluation &lt;lot 1&gt; &amp; review</a>`)
	assert.Contains(t, out, "Ministry of Labour · BE · deadline 2026-06-30")
	assert.Contains(t, out, "<i>primary 91%</i>: Programme evaluation")
}

func TestFormatTender_NoURL(t *testing.T) {
	out := FormatTender(&types.Tender{Title: "Plain"})
	assert.Equal(t, "<b>Plain</b>", out)
}

func TestDigest_SplitsLongBatches(t *testing.T) {
	var tenders []*types.Tender
	for i := range 60 {
		tenders = append(tenders, relevantTender(i))
	}

	messages := Digest(tenders, 1000)

	require.Greater(t, len(messages), 1)
	total := 0
	for _, m := range messages {
		assert.LessOrEqual(t, len(m), 1000)
		total += strings.Count(m, "<a href=")
	}
	assert.Equal(t, 60, total)
	assert.True(t, strings.HasPrefix(messages[0], "<b>60 new relevant tender(s)</b>"))
}

func TestDigest_Empty(t *testing.T) {
	assert.Nil(t, Digest(nil, maxMessageLength))
}

func TestNotifyRelevant(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramWithSender(sender, -1001, nil)

	require.NoError(t, n.NotifyRelevant(context.Background(), []*types.Tender{relevantTender(1), relevantTender(2)}))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, int64(-1001), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.True(t, msg.DisableWebPagePreview)
	assert.Contains(t, msg.Text, "2 new relevant tender(s)")
}

func TestNotifyRelevant_SendError(t *testing.T) {
	n := NewTelegramWithSender(&fakeSender{err: errors.New("429 too many requests")}, 1, nil)
	err := n.NotifyRelevant(context.Background(), []*types.Tender{relevantTender(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1/1")
}
