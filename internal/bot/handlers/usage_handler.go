package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	defaultReportDays = 30
	maxReportDays     = 365
)

// NewUsageHandler returns a handler for the /token_usage command. It sends
// the admin a token usage report over the requested window of days
// (default 30).
func NewUsageHandler(deps HandlerDeps) bot.HandlerFunc {
	return usageHandler{deps}.Handle
}

type usageHandler struct {
	deps HandlerDeps
}

func (h usageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "token_usage")
	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Usage handler called with nil Message or From", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	days := parseDaysArg(update.Message.Text)

	log.InfoContext(ctx, "Handling /token_usage command",
		"chat_id", chatID, "user_id", update.Message.From.ID, "days", days)

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	report, err := h.deps.Ledger.Report(timeoutCtx, days)
	if err != nil {
		log.ErrorContext(ctx, "Failed to build usage report", "error", err, "days", days)
		_, sendErr := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   h.deps.Config.Telegram.Messages.GeneralError,
		})
		if sendErr != nil {
			log.ErrorContext(ctx, "Failed to send error message", "error", sendErr, "chat_id", chatID)
		}
		return
	}

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: report}); err != nil {
		log.ErrorContext(ctx, "Failed to send usage report", "error", err, "chat_id", chatID)
	}
}

// parseDaysArg extracts the optional day count from the command text.
// Invalid or missing arguments fall back to the default window.
func parseDaysArg(text string) int {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return defaultReportDays
	}
	days, err := strconv.Atoi(fields[1])
	if err != nil || days <= 0 {
		return defaultReportDays
	}
	if days > maxReportDays {
		return maxReportDays
	}
	return days
}
