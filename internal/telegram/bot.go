package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/hunterwarburton/medsage/internal/auth"
	"github.com/hunterwarburton/medsage/internal/logger"
	"github.com/hunterwarburton/medsage/internal/tools"
)

const (
	maxMessageRunes = 4000
	maxPhotoBytes   = 20 << 20
	typingInterval  = 4 * time.Second
)

// ToolRouter executes tool calls on behalf of a user.
type ToolRouter interface {
	ExecuteToolCall(ctx context.Context, userID int64, call tools.Call) (string, error)
}

// PolicyService gates access to the bot.
type PolicyService interface {
	IsAllowed(userID int64) bool
}

// Bot is the Telegram front end. Every command becomes a tool call.
type Bot struct {
	bot           *bot.Bot
	toolRouter    ToolRouter
	policyService PolicyService
	httpClient    *http.Client
}

// NewBot creates a new bot instance.
func NewBot(token string, toolRouter ToolRouter, policyService PolicyService) (*Bot, error) {
	b := &Bot{
		toolRouter:    toolRouter,
		policyService: policyService,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}

	botAPI, err := bot.New(token, bot.WithDefaultHandler(b.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}

	b.bot = botAPI
	return b, nil
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// handleUpdate handles a Telegram update.
func (b *Bot) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	message := update.Message
	if message == nil || message.From == nil {
		return
	}
	chatID := message.Chat.ID
	userID := message.From.ID
	logger.TelegramDebug("Chat[%d] User[%d] %s: update received", chatID, userID, displayName(message.From))
	if !b.policyService.IsAllowed(userID) {
		logger.TelegramWarn("Chat[%d] User[%d] %s: Not on the allow list.", chatID, userID, displayName(message.From))
		b.reply(ctx, chatID, "Sorry, you are not allowed to use this bot.")
		return
	}

	switch {
	case len(message.Photo) > 0:
		b.handlePhotoMessage(ctx, message)
	case strings.HasPrefix(message.Text, "/"):
		b.handleCommand(ctx, message)
	case strings.TrimSpace(message.Text) != "":
		// plain text is treated as a search
		b.runTool(ctx, chatID, userID, auth.ToolMedicalSearch, tools.SearchArgs{Query: message.Text})
	default:
		logger.TelegramInfo("Chat[%d] User[%d]: Ignored unhandled message type.", chatID, userID)
	}
}

// displayName is the user's full name, or @username when no name is set.
func displayName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.Username != "" {
		name = "@" + u.Username
	}
	return name
}

// handleCommand processes a command message.
func (b *Bot) handleCommand(ctx context.Context, message *models.Message) {
	command, rest := parseCommand(message.Text)
	chatID := message.Chat.ID
	userID := message.From.ID
	logger.TelegramInfo("Chat[%d] User[%d]: Received command: /%s", chatID, userID, command)

	switch command {
	case "start", "help":
		b.reply(ctx, chatID, helpText)

	case "search":
		if rest == "" {
			b.reply(ctx, chatID, "Usage: /search <query>")
			return
		}
		b.runTool(ctx, chatID, userID, auth.ToolMedicalSearch, tools.SearchArgs{Query: rest})

	case "diagnose":
		modality, symptoms, ok := parseDiagnoseArgs(rest)
		if !ok {
			b.reply(ctx, chatID, "Usage: /diagnose <skin|chest> <symptoms>, or send a photo with that caption.")
			return
		}
		b.runTool(ctx, chatID, userID, auth.ToolDiagnoseCase, tools.DiagnoseArgs{
			Modality: modality,
			Symptoms: symptoms,
			UserID:   fmt.Sprint(userID),
		})

	case "stats":
		b.runTool(ctx, chatID, userID, auth.ToolDatasetStats, struct{}{})

	case "reload":
		b.runTool(ctx, chatID, userID, auth.ToolDatasetReload, struct{}{})

	default:
		logger.TelegramInfo("Chat[%d] User[%d]: Unknown command received: /%s", chatID, userID, command)
		b.reply(ctx, chatID, "Unknown command. Try /help to see available commands.")
	}
}

// handlePhotoMessage runs a diagnostic case on the largest photo size,
// reading modality and symptoms from the caption.
func (b *Bot) handlePhotoMessage(ctx context.Context, message *models.Message) {
	chatID := message.Chat.ID
	userID := message.From.ID
	logger.TelegramInfo("Chat[%d] User[%d]: Received photo message (Caption: %s)", chatID, userID, message.Caption)

	caption := strings.TrimSpace(message.Caption)
	if strings.HasPrefix(caption, "/") {
		_, caption = parseCommand(caption)
	}
	modality, symptoms, ok := parseDiagnoseArgs(caption)
	if !ok {
		b.reply(ctx, chatID, "Please add a caption like: skin itchy dark mole")
		return
	}

	photoSize := message.Photo[len(message.Photo)-1]
	file, err := b.bot.GetFile(ctx, &bot.GetFileParams{FileID: photoSize.FileID})
	if err != nil {
		logger.TelegramError("Chat[%d]: Error getting file info for photo: %v", chatID, err)
		b.reply(ctx, chatID, "Sorry, I couldn't get the info for your image.")
		return
	}

	image, err := b.download(ctx, b.bot.FileDownloadLink(file))
	if err != nil {
		logger.TelegramError("Chat[%d]: Error downloading photo: %v", chatID, err)
		b.reply(ctx, chatID, "Sorry, I couldn't download your image.")
		return
	}

	b.runTool(ctx, chatID, userID, auth.ToolDiagnoseCase, tools.DiagnoseArgs{
		Modality: modality,
		Symptoms: symptoms,
		Image:    image,
		UserID:   fmt.Sprint(userID),
	})
}

// runTool executes one tool call with a typing indicator and replies with
// its result or a short failure notice.
func (b *Bot) runTool(ctx context.Context, chatID, userID int64, name string, args interface{}) {
	call, err := tools.NewCall(name, args)
	if err != nil {
		logger.TelegramError("Chat[%d]: %v", chatID, err)
		b.reply(ctx, chatID, "Sorry, I encountered an internal error.")
		return
	}

	typingDone := make(chan struct{})
	go b.sendContinuousTypingAction(ctx, chatID, typingDone)
	result, err := b.toolRouter.ExecuteToolCall(ctx, userID, call)
	close(typingDone)

	if err != nil {
		logger.TelegramWarn("Chat[%d] User[%d]: Tool %s failed: %v", chatID, userID, name, err)
		b.reply(ctx, chatID, "Sorry, that request failed: "+err.Error())
		return
	}
	b.reply(ctx, chatID, result)
}

// sendContinuousTypingAction sends the typing action periodically until the done channel is closed
func (b *Bot) sendContinuousTypingAction(ctx context.Context, chatID int64, done chan struct{}) {
	ticker := time.NewTicker(typingInterval)
	defer ticker.Stop()

	b.sendTyping(ctx, chatID)
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.sendTyping(ctx, chatID)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) sendTyping(ctx context.Context, chatID int64) {
	if _, err := b.bot.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	}); err != nil {
		logger.TelegramDebug("Chat[%d]: typing action failed: %v", chatID, err)
	}
}

// reply sends text, split to fit Telegram's message size limit.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	for _, part := range splitMessage(text, maxMessageRunes) {
		if _, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   part,
		}); err != nil {
			logger.TelegramError("Chat[%d]: Failed to send message: %v", chatID, err)
			return
		}
	}
}

// download fetches a file into memory, refusing anything over maxPhotoBytes.
func (b *Bot) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if len(data) > maxPhotoBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxPhotoBytes)
	}
	return data, nil
}
