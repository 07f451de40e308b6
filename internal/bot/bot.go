// Package bot is the Telegram host: it lists definitions, drives argument
// collection through inline keyboards and runs the committed command.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rashpile/scriptmate/internal/attach"
	"github.com/rashpile/scriptmate/internal/auth"
	"github.com/rashpile/scriptmate/internal/collect"
	"github.com/rashpile/scriptmate/internal/executor"
	"github.com/rashpile/scriptmate/internal/runner"
	"github.com/rashpile/scriptmate/internal/status"
	"github.com/rashpile/scriptmate/internal/store"
	"github.com/rashpile/scriptmate/pkg/script"
)

const (
	// janitorInterval is how often idle sessions and confirmations are swept.
	janitorInterval = time.Minute

	// maxAlbumSize is Telegram's limit for files in one media group.
	maxAlbumSize = 10
)

// sender is the part of the Telegram API the handlers use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Config holds dependencies for Bot construction.
type Config struct {
	Token           string
	Authorizer      auth.Authorizer
	Registry        *store.Registry
	Runner          *runner.Runner
	Status          status.Collector
	ArgumentTimeout time.Duration
	AllowedChatIDs  []int64 // notified on startup
	Logger          *slog.Logger
}

// Bot handles Telegram updates.
type Bot struct {
	botAPI         *tgbotapi.BotAPI
	api            sender
	authorizer     auth.Authorizer
	registry       *store.Registry
	runner         *runner.Runner
	status         status.Collector
	sessions       *ArgumentCollector
	confirmMgr     *ConfirmationManager
	menuBuilder    *MenuBuilder
	allowedChatIDs []int64
	logger         *slog.Logger
}

// New connects to Telegram and creates a Bot.
func New(cfg Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	b := newBot(api, cfg)
	b.botAPI = api
	b.logger.Info("authorized on telegram", "username", api.Self.UserName)
	return b, nil
}

func newBot(api sender, cfg Config) *Bot {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Bot{
		api:            api,
		authorizer:     cfg.Authorizer,
		registry:       cfg.Registry,
		runner:         cfg.Runner,
		status:         cfg.Status,
		sessions:       NewArgumentCollector(cfg.ArgumentTimeout, cfg.Runner.Settings().Quoting),
		confirmMgr:     NewConfirmationManager(),
		menuBuilder:    NewMenuBuilder(cfg.Registry),
		allowedChatIDs: cfg.AllowedChatIDs,
		logger:         logger,
	}
}

// NotifyStartup sends a startup message with the menu to all allowed chats.
func (b *Bot) NotifyStartup() {
	for _, chatID := range b.allowedChatIDs {
		b.sendText(chatID, "scriptmate started")
		b.sendMenu(chatID)
	}
}

// Run starts the update loop. Blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	unsubscribe := b.registry.Subscribe(b.onRegistryChange)
	defer unsubscribe()

	go b.janitor(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.botAPI.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.botAPI.StopReceivingUpdates()
			b.logger.Info("bot stopped")
			return nil

		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil && update.Message.Text != "":
		b.handleText(ctx, update.Message)
	}
}

// janitor abandons idle collections and drops stale confirmations.
func (b *Bot) janitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, chatID := range b.sessions.CleanupExpired() {
				b.logger.Debug("argument collection expired", "chat_id", chatID)
				b.sendText(chatID, "Argument collection timed out. Script execution cancelled.")
			}
			b.confirmMgr.Cleanup()
		}
	}
}

// onRegistryChange cancels collections whose definition disappeared.
func (b *Bot) onRegistryChange() {
	ids := make(map[string]bool)
	for _, d := range b.registry.List() {
		ids[d.ID] = true
	}
	for _, chatID := range b.sessions.DropMissing(ids) {
		b.logger.Info("definition removed during collection", "chat_id", chatID)
		b.sendText(chatID, "The command you were preparing was removed. Script execution cancelled.")
	}
}

func (b *Bot) unauthorized(chatID int64) {
	b.logger.Warn("unauthorized access attempt", "chat_id", chatID)
	b.sendText(chatID, fmt.Sprintf("Unauthorized. Your chat ID (%d) is not in the allowlist.", chatID))
}

// handleText treats plain messages as the answer to a pending string edit.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !b.authorizer.CanRun(chatID) {
		b.unauthorized(chatID)
		return
	}

	edit, ok := b.sessions.Pending(chatID)
	if !ok || edit.Arg.Type != script.TypeString {
		b.sendText(chatID, "Use /menu to pick a command.")
		return
	}

	// The prompt's buttons no longer apply once a value is typed.
	if _, promptID := b.sessions.Messages(chatID); promptID != 0 {
		empty := tgbotapi.NewInlineKeyboardMarkup()
		empty.InlineKeyboard = [][]tgbotapi.InlineKeyboardButton{}
		if _, err := b.api.Send(tgbotapi.NewEditMessageReplyMarkup(chatID, promptID, empty)); err != nil {
			b.logger.Debug("failed to clear prompt keyboard", "chat_id", chatID, "error", err)
		}
	}

	b.submitString(chatID, msg.Text, 0)
}

// submitString feeds a string value to the session and shows the result.
// editMsgID, when set, is reused for the next screen.
func (b *Bot) submitString(chatID int64, input string, editMsgID int) {
	review, err := b.sessions.SubmitString(chatID, input)
	if errors.Is(err, collect.ErrRequiredArgumentMissing) {
		edit, _ := b.sessions.Pending(chatID)
		b.showPrompt(chatID, editMsgID, edit, err)
		return
	}
	if err != nil {
		b.sessionError(chatID, err)
		return
	}
	b.showReview(chatID, editMsgID, review)
}

// handleCallback processes inline keyboard presses.
func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		return
	}
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	logger := b.logger.With("chat_id", chatID, "callback", query.Data)

	if !b.authorizer.CanRun(chatID) {
		logger.Warn("unauthorized callback attempt")
		return
	}

	// Answer the callback to remove the loading state.
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		logger.Debug("failed to answer callback", "error", err)
	}

	kind, value := ParseCallback(query.Data)
	switch kind {
	case CallbackMenu:
		text, keyboard := b.menuBuilder.BuildMainMenu()
		b.editText(chatID, messageID, text, keyboard)

	case CallbackDefinition:
		def, ok := b.menuBuilder.Resolve(value)
		if !ok {
			b.editText(chatID, messageID, "That command no longer exists.", nil)
			return
		}
		b.startCollection(chatID, messageID, def)

	case CallbackArgument:
		idx, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		edit, err := b.sessions.Select(chatID, idx)
		if err != nil {
			b.sessionError(chatID, err)
			return
		}
		b.showPrompt(chatID, messageID, edit, nil)

	case CallbackYes, CallbackNo:
		review, err := b.sessions.SubmitBool(chatID, kind == CallbackYes)
		if err != nil {
			b.sessionError(chatID, err)
			return
		}
		b.showReview(chatID, messageID, review)

	case CallbackClear:
		b.submitString(chatID, "", messageID)

	case CallbackBack:
		review, err := b.sessions.CancelEdit(chatID)
		if err != nil {
			b.sessionError(chatID, err)
			return
		}
		b.showReview(chatID, messageID, review)

	case CallbackExecute:
		def, values, err := b.sessions.Commit(chatID)
		if errors.Is(err, collect.ErrRequiredArgumentMissing) {
			review, rerr := b.sessions.Review(chatID)
			if rerr != nil {
				b.sessionError(chatID, rerr)
				return
			}
			b.showReview(chatID, messageID, review)
			return
		}
		if err != nil {
			b.sessionError(chatID, err)
			return
		}
		b.editText(chatID, messageID, fmt.Sprintf("Running %s...", def.Label), nil)
		b.execute(ctx, chatID, query.From, def, values)
		b.sendMenu(chatID)

	case CallbackCancel:
		b.sessions.Abandon(chatID)
		b.editText(chatID, messageID, "Script execution cancelled.", nil)

	case CallbackConfirm, CallbackReject:
		b.handleConfirmation(chatID, messageID, value, kind == CallbackConfirm)

	default:
		logger.Debug("unknown callback")
	}
}

// startCollection begins argument collection for def and shows the review.
func (b *Bot) startCollection(chatID int64, messageID int, def script.Definition) {
	review := b.sessions.Start(chatID, def)
	b.logger.Info("argument collection started", "chat_id", chatID, "id", def.ID)
	b.showReview(chatID, messageID, review)
}

// showReview renders the review, editing messageID when non-zero.
func (b *Bot) showReview(chatID int64, messageID int, review collect.Review) {
	def, err := b.sessions.Definition(chatID)
	if err != nil {
		b.sessionError(chatID, err)
		return
	}

	notice := b.runner.Plan(def, nil).Notice()
	text, keyboard := BuildReview(review, notice)
	if id := b.show(chatID, messageID, text, &keyboard); id != 0 {
		b.sessions.SetMessages(chatID, id, 0)
	}
}

// showPrompt renders an edit prompt, editing messageID when non-zero.
func (b *Bot) showPrompt(chatID int64, messageID int, edit collect.Edit, problem error) {
	text, keyboard := BuildEditPrompt(edit, problem)
	if id := b.show(chatID, messageID, text, &keyboard); id != 0 {
		b.sessions.SetMessages(chatID, 0, id)
	}
}

// show edits messageID in place, or sends a new message when it is zero.
// It returns the ID of the message now holding the content.
func (b *Bot) show(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) int {
	if messageID != 0 {
		b.editText(chatID, messageID, text, keyboard)
		return messageID
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		b.logger.Error("failed to send message", "chat_id", chatID, "error", err)
		return 0
	}
	return sent.MessageID
}

// sessionError reports a failed collection step to the user.
func (b *Bot) sessionError(chatID int64, err error) {
	switch {
	case errors.Is(err, ErrNoSession):
		b.sendText(chatID, "This selection has expired. Use /menu to start again.")
	default:
		b.logger.Warn("argument collection step rejected", "chat_id", chatID, "error", err)
		b.sendText(chatID, fmt.Sprintf("Cannot do that now: %v", err))
	}
}

// execute runs a committed definition with streamed output.
func (b *Bot) execute(ctx context.Context, chatID int64, from *tgbotapi.User, def script.Definition, values script.Values) {
	plan := b.runner.Plan(def, values)

	streamer := NewMessageStreamer(b.api, chatID, plan.Command+"\n"+plan.Notice())
	if err := streamer.Start(); err != nil {
		b.logger.Error("failed to start streamer", "chat_id", chatID, "error", err)
		return
	}

	origin := runner.Origin{Source: "telegram", ChatID: chatID}
	if from != nil {
		origin.Username = from.UserName
	}

	res := b.runner.Run(ctx, plan, streamer, origin)

	var found attach.Result
	streamer.Rewrite(func(out string) string {
		found = attach.Extract(out, plan.Workdir)
		return found.Text
	})
	streamer.Finish(resultLine(res))

	b.sendFiles(chatID, found)
}

// sendFiles delivers files referenced in command output, as albums where
// Telegram allows grouping them.
func (b *Bot) sendFiles(chatID int64, found attach.Result) {
	if len(found.Missing) > 0 {
		b.sendText(chatID, "File not found:\n"+strings.Join(found.Missing, "\n"))
	}

	for _, batch := range attach.Batches(found.Files, maxAlbumSize) {
		var err error
		if len(batch) == 1 {
			_, err = b.api.Send(singleFile(chatID, batch[0]))
		} else {
			media := make([]any, len(batch))
			for i, f := range batch {
				media[i] = albumItem(f)
			}
			_, err = b.api.Request(tgbotapi.NewMediaGroup(chatID, media))
		}
		if err != nil {
			b.logger.Error("failed to send files", "chat_id", chatID, "count", len(batch), "error", err)
			b.sendText(chatID, fmt.Sprintf("Failed to send %d file(s): %v", len(batch), err))
		}
	}
}

func singleFile(chatID int64, f attach.File) tgbotapi.Chattable {
	data := tgbotapi.FilePath(f.Path)
	switch f.Kind {
	case attach.Photo:
		return tgbotapi.NewPhoto(chatID, data)
	case attach.Video:
		return tgbotapi.NewVideo(chatID, data)
	case attach.Audio:
		return tgbotapi.NewAudio(chatID, data)
	default:
		return tgbotapi.NewDocument(chatID, data)
	}
}

func albumItem(f attach.File) any {
	data := tgbotapi.FilePath(f.Path)
	switch f.Kind {
	case attach.Photo:
		return tgbotapi.NewInputMediaPhoto(data)
	case attach.Video:
		return tgbotapi.NewInputMediaVideo(data)
	case attach.Audio:
		return tgbotapi.NewInputMediaAudio(data)
	default:
		return tgbotapi.NewInputMediaDocument(data)
	}
}

// resultLine summarizes an execution for the output message.
func resultLine(res runner.Result) string {
	var line string
	switch {
	case res.Err == nil:
		line = fmt.Sprintf("Done in %s", res.Duration.Round(time.Millisecond))
	case errors.Is(res.Err, executor.ErrTimeout):
		line = "Timed out"
	case res.ExitCode > 0:
		line = fmt.Sprintf("Exit code %d", res.ExitCode)
	default:
		line = fmt.Sprintf("Error: %v", res.Err)
	}
	if res.Truncated {
		line += " (output truncated)"
	}
	return line
}

// sendMenu sends the definition menu to a chat.
func (b *Bot) sendMenu(chatID int64) {
	text, keyboard := b.menuBuilder.BuildMainMenu()
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send menu", "chat_id", chatID, "error", err)
	}
}

// editText replaces a message's text and keyboard.
func (b *Bot) editText(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ReplyMarkup = keyboard
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Debug("failed to edit message", "chat_id", chatID, "error", err)
	}
}

// sendText sends a simple text message.
func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send message", "error", err, "chat_id", chatID)
	}
}

// extractRawText extracts text after the command, preserving newlines.
// Example: "/add {\n...}" with cmdName "add" returns "{\n...}".
func extractRawText(fullText, cmdName string) string {
	prefix := "/" + cmdName
	idx := strings.Index(fullText, prefix)
	if idx == -1 {
		return ""
	}

	rest := fullText[idx+len(prefix):]

	// Skip @botname if present
	if len(rest) > 0 && rest[0] == '@' {
		spaceIdx := strings.IndexAny(rest, " \n")
		if spaceIdx == -1 {
			return ""
		}
		rest = rest[spaceIdx:]
	}

	return strings.TrimSpace(rest)
}
