package handlers

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/firtigh/firtigh/internal/groups"
	"github.com/firtigh/firtigh/internal/prompt"
)

const (
	aiProcessingTimeout = 2 * time.Minute
	sendMessageTimeout  = 10 * time.Second
	analysisTimeout     = 1 * time.Minute
)

// persianNames are the spoken forms that count as calling the bot, beyond
// the @username mention.
var persianNames = []string{"فیرتیق", "firtigh"}

type mentionHandler struct {
	deps HandlerDeps
}

// NewMentionHandler creates a handler that responds to messages where the bot is mentioned.
// Every group message is recorded; mentioned ones get an AI reply.
func NewMentionHandler(deps HandlerDeps) bot.HandlerFunc {
	return mentionHandler{deps}.Handle
}

func (h mentionHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	deps := h.deps
	log := deps.Logger.With("handler", "mention")

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.DebugContext(ctx, "Ignoring update with nil message or sender", "update_id", update.ID)
		return
	}

	text := messageText(msg)
	if strings.TrimSpace(text) == "" {
		log.DebugContext(ctx, "Ignoring message with no text content", "chat_id", msg.Chat.ID)
		return
	}

	chatID := msg.Chat.ID
	incoming := groups.Message{
		MessageID: msg.ID,
		GroupID:   chatID,
		UserID:    msg.From.ID,
		Sender:    senderName(msg.From),
		Text:      text,
		Timestamp: time.Unix(int64(msg.Date), 0).UTC(),
	}
	if msg.ReplyToMessage != nil {
		incoming.ReplyToID = msg.ReplyToMessage.ID
	}

	// Every message feeds the group history, mentioned or not.
	deps.Groups.Append(ctx, incoming)

	if !h.shouldHandle(msg) {
		return
	}

	log.InfoContext(ctx, "Handling mention", "chat_id", chatID, "message_id", msg.ID)

	go h.analyzeInBackground(incoming)

	_, _ = b.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping})

	aiCtx, cancel := context.WithTimeout(ctx, aiProcessingTimeout)
	defer cancel()

	reply, err := deps.Assembler.Respond(aiCtx, incoming)
	if err != nil {
		fallback := deps.Config.Telegram.Messages.GeneralError
		if errors.Is(err, prompt.ErrCompletionUnavailable) {
			fallback = deps.Config.Telegram.Messages.Unavailable
		}
		log.ErrorContext(ctx, "Failed to produce reply", "error", err, "chat_id", chatID)
		if _, sendErr := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: fallback}); sendErr != nil {
			log.ErrorContext(ctx, "Failed to send fallback message", "error", sendErr, "chat_id", chatID)
		}
		return
	}

	h.sendReply(ctx, b, chatID, msg.ID, reply)
}

// shouldHandle reports whether the message calls the bot: an @username
// mention, the bot's spoken name, or a reply to one of the bot's messages.
func (h mentionHandler) shouldHandle(msg *models.Message) bool {
	info := h.deps.Config.Telegram.BotInfo
	if info == nil {
		return false
	}

	text := strings.ToLower(messageText(msg))

	if info.Username != "" {
		mention := "@" + strings.ToLower(info.Username)
		for _, e := range append(msg.Entities, msg.CaptionEntities...) {
			if e.Type != models.MessageEntityTypeMention {
				continue
			}
			if e.Offset >= 0 && e.Length > 0 && e.Offset+e.Length <= len(text) &&
				text[e.Offset:e.Offset+e.Length] == mention {
				return true
			}
		}
	}

	for _, w := range strings.Fields(text) {
		stripped := strings.TrimFunc(w, unicode.IsPunct)
		if info.Username != "" && stripped == strings.ToLower(info.Username) {
			return true
		}
		for _, name := range persianNames {
			if stripped == name {
				return true
			}
		}
	}

	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && msg.ReplyToMessage.From.ID == info.ID {
		return true
	}

	return false
}

// sendReply sends the AI reply and records it in the group history so the
// bot's own messages become part of later context windows.
func (h mentionHandler) sendReply(ctx context.Context, b *bot.Bot, chatID int64, replyTo int, text string) {
	deps := h.deps
	log := deps.Logger.With("handler", "mention")
	if text == "" {
		log.WarnContext(ctx, "Empty reply text, nothing to send", "chat_id", chatID)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()

	sent, err := b.SendMessage(sendCtx, &bot.SendMessageParams{
		ChatID:          chatID,
		Text:            text,
		ReplyParameters: &models.ReplyParameters{MessageID: replyTo},
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
		return
	}

	info := deps.Config.Telegram.BotInfo
	if info == nil || info.ID == 0 {
		return
	}
	deps.Groups.Append(ctx, groups.Message{
		MessageID: sent.ID,
		GroupID:   chatID,
		UserID:    info.ID,
		Sender:    info.FirstName,
		Text:      text,
		Timestamp: time.Now().UTC(),
		ReplyToID: replyTo,
	})
}

// analyzeInBackground runs the structured message analysis off the reply
// path: the observation updates the sender's profile and the group memory,
// and the spent tokens are accounted like any other completion.
func (h mentionHandler) analyzeInBackground(msg groups.Message) {
	deps := h.deps
	log := deps.Logger.With("handler", "mention")

	ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
	defer cancel()

	obs, usage, err := deps.GeminiClient.AnalyzeMessage(ctx, msg)
	if usage.PromptTokens > 0 || usage.OutputTokens > 0 {
		if recErr := deps.Ledger.Record(ctx, msg.GroupID, usage.Model, usage.PromptTokens, usage.OutputTokens); recErr != nil {
			log.WarnContext(ctx, "Failed to record analysis token usage", "error", recErr)
		}
	}
	if err != nil {
		log.WarnContext(ctx, "Message analysis failed", "error", err, "chat_id", msg.GroupID)
		return
	}

	deps.Groups.Observe(ctx, msg.GroupID, msg.UserID, obs)
}

func messageText(msg *models.Message) string {
	switch {
	case msg.Text != "" && msg.Caption != "":
		return msg.Text + " " + msg.Caption
	case msg.Text != "":
		return msg.Text
	default:
		return msg.Caption
	}
}

func senderName(from *models.User) string {
	name := from.FirstName
	if name == "" {
		name = from.Username
	}
	if name == "" {
		name = "کاربر"
	}
	return name
}
