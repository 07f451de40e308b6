package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rashpile/scriptmate/internal/store"
	"github.com/rashpile/scriptmate/internal/version"
	"github.com/rashpile/scriptmate/pkg/script"
)

const historyLimit = 10

const helpText = `Commands:
/menu - pick a command to run
/run <id> - start a command by id
/find <query> - search commands by id or label
/show <id> - print a definition as JSON
/cancel - abandon the command being prepared
/history - recent executions
/status - host metrics
/version - build information

Managing commands:
/new [label] - create a command with a fresh id
/add <json> - add a definition
/edit <json> - replace the definition with the same id
/rename <old-id> <json> - replace a definition under a new id
/delete <id> - remove a definition
/reload - re-read the commands file`

// manageCommands need CanManage on top of CanRun.
var manageCommands = map[string]bool{
	"new": true, "add": true, "edit": true, "rename": true, "delete": true, "reload": true,
}

// handleCommand processes a slash command message.
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	name := msg.Command()
	logger := b.logger.With("chat_id", chatID, "command", name)

	if !b.authorizer.CanRun(chatID) {
		b.unauthorized(chatID)
		return
	}
	if manageCommands[name] && !b.authorizer.CanManage(chatID) {
		logger.Warn("management command denied")
		b.sendText(chatID, "Only admin chats may change commands.")
		return
	}

	raw := extractRawText(msg.Text, name)
	logger.Debug("handling command")

	switch name {
	case "start", "menu":
		b.sendMenu(chatID)
	case "help":
		b.sendText(chatID, helpText)
	case "run":
		b.cmdRun(chatID, raw)
	case "find":
		text, keyboard := b.menuBuilder.BuildSearchMenu(raw)
		b.show(chatID, 0, text, keyboard)
	case "show":
		b.cmdShow(chatID, raw)
	case "cancel":
		if b.sessions.Abandon(chatID) {
			b.sendText(chatID, "Script execution cancelled.")
		} else {
			b.sendText(chatID, "Nothing to cancel.")
		}
	case "history":
		b.cmdHistory(ctx, chatID)
	case "status":
		b.cmdStatus(ctx, chatID)
	case "version":
		b.sendText(chatID, version.String())
	case "new":
		b.cmdNew(chatID, raw)
	case "add":
		b.cmdAdd(chatID, raw)
	case "edit":
		b.cmdEdit(chatID, raw)
	case "rename":
		b.cmdRename(chatID, raw)
	case "delete":
		b.cmdDelete(chatID, raw)
	case "reload":
		b.cmdReload(chatID)
	default:
		b.sendText(chatID, fmt.Sprintf("Unknown command: /%s\nUse /help to see available commands.", name))
	}
}

func (b *Bot) cmdRun(chatID int64, id string) {
	if id == "" {
		b.sendMenu(chatID)
		return
	}
	def, err := b.registry.Get(id)
	if err != nil {
		b.sendText(chatID, b.describeError(err))
		return
	}
	b.startCollection(chatID, 0, def)
}

func (b *Bot) cmdShow(chatID int64, id string) {
	if id == "" {
		b.sendText(chatID, "Usage: /show <id>")
		return
	}
	def, err := b.registry.Get(id)
	if err != nil {
		b.sendText(chatID, b.describeError(err))
		return
	}
	b.sendText(chatID, script.Format(def))
}

func (b *Bot) cmdHistory(ctx context.Context, chatID int64) {
	entries, err := b.runner.History().Recent(ctx, historyLimit)
	if err != nil {
		b.logger.Error("failed to read history", "error", err)
		b.sendText(chatID, "Failed to read execution history.")
		return
	}
	if len(entries) == 0 {
		b.sendText(chatID, "No executions recorded yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Recent executions:")
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n%s  %s  exit %d  %s",
			e.Timestamp.Local().Format("01-02 15:04"), e.CommandID, e.ExitCode,
			(time.Duration(e.DurationMs) * time.Millisecond).String())
	}
	b.sendText(chatID, sb.String())
}

func (b *Bot) cmdStatus(ctx context.Context, chatID int64) {
	if b.status == nil {
		b.sendText(chatID, "Status is not available.")
		return
	}
	m, err := b.status.Collect(ctx)
	if err != nil {
		b.logger.Error("failed to collect status", "error", err)
		b.sendText(chatID, fmt.Sprintf("Failed to collect status: %v", err))
		return
	}
	b.sendText(chatID, m.Format())
}

// cmdNew scaffolds a definition with a random id for the user to refine.
func (b *Bot) cmdNew(chatID int64, label string) {
	def := script.Scaffold(label)
	if err := b.registry.Add(def); err != nil {
		b.sendText(chatID, b.describeError(err))
		return
	}
	b.sendText(chatID, "Created. Adjust it with /edit:\n\n"+script.Format(def))
}

func (b *Bot) cmdAdd(chatID int64, raw string) {
	def, err := script.Parse(raw)
	if err != nil {
		b.sendText(chatID, "Cannot parse definition: "+err.Error())
		return
	}
	if err := b.registry.Add(def); err != nil {
		b.sendText(chatID, b.describeError(err))
		return
	}
	b.sendText(chatID, fmt.Sprintf("Added %q.", def.ID))
}

func (b *Bot) cmdEdit(chatID int64, raw string) {
	def, err := script.Parse(raw)
	if err != nil {
		b.sendText(chatID, "Cannot parse definition: "+err.Error())
		return
	}
	if err := b.registry.Update(def); err != nil {
		b.sendText(chatID, b.describeError(err))
		return
	}
	b.sendText(chatID, fmt.Sprintf("Updated %q.", def.ID))
}

func (b *Bot) cmdRename(chatID int64, raw string) {
	sep := strings.IndexAny(raw, " \t\n")
	if sep < 0 {
		b.sendText(chatID, "Usage: /rename <old-id> <json>")
		return
	}
	oldID := raw[:sep]
	def, err := script.Parse(raw[sep+1:])
	if err != nil {
		b.sendText(chatID, "Cannot parse definition: "+err.Error())
		return
	}
	if err := b.registry.Rename(oldID, def); err != nil {
		b.sendText(chatID, b.describeError(err))
		return
	}
	b.sendText(chatID, fmt.Sprintf("Renamed %q to %q.", oldID, def.ID))
}

func (b *Bot) cmdDelete(chatID int64, id string) {
	if id == "" {
		b.sendText(chatID, "Usage: /delete <id>")
		return
	}
	def, err := b.registry.Get(id)
	if err != nil {
		b.sendText(chatID, b.describeError(err))
		return
	}
	text := fmt.Sprintf("Delete %q (%s)?", def.Label, def.ID)
	if err := b.confirmMgr.RequestConfirmation(b.api, chatID, "delete", id, text); err != nil {
		b.logger.Error("failed to request confirmation", "error", err)
	}
}

func (b *Bot) cmdReload(chatID int64) {
	if err := b.registry.Load(); err != nil {
		b.sendText(chatID, b.describeError(err))
		return
	}
	b.sendText(chatID, fmt.Sprintf("Loaded %d commands.", b.registry.Len()))
}

// handleConfirmation completes or drops a pending destructive action.
func (b *Bot) handleConfirmation(chatID int64, messageID int, id string, confirmed bool) {
	pending := b.confirmMgr.Resolve(chatID, id)

	var result string
	switch {
	case pending == nil:
		result = "Confirmation expired or invalid."
	case !confirmed:
		result = "Cancelled."
	case !b.authorizer.CanManage(chatID):
		result = "Only admin chats may change commands."
	default:
		result = b.applyConfirmed(pending)
	}

	b.editText(chatID, messageID, result, nil)
}

func (b *Bot) applyConfirmed(p *PendingConfirmation) string {
	switch p.Action {
	case "delete":
		if err := b.registry.Delete(p.Target); err != nil {
			return b.describeError(err)
		}
		return fmt.Sprintf("Deleted %q.", p.Target)
	}
	return "Unknown action."
}

// describeError turns registry and validation failures into user text.
func (b *Bot) describeError(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "No such command: " + err.Error()
	case errors.Is(err, store.ErrDuplicateID):
		return "That id is already in use: " + err.Error()
	case errors.Is(err, script.ErrInvalidDefinition):
		return "Invalid definition: " + err.Error()
	case errors.Is(err, store.ErrStorageUnavailable):
		b.logger.Error("commands storage failed", "error", err)
		return "Could not access the commands file: " + err.Error()
	}
	return err.Error()
}
