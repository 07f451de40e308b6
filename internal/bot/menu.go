package bot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rashpile/scriptmate/internal/collect"
	"github.com/rashpile/scriptmate/internal/store"
	"github.com/rashpile/scriptmate/pkg/script"
)

const (
	// Callback data prefixes. Telegram caps callback data at 64 bytes, so
	// definitions are addressed by a short hash of their id.
	definitionPrefix = "def:"
	backToMenu       = "menu:main"

	reviewExecute = "rv:exec"
	reviewCancel  = "rv:cancel"
	reviewBack    = "rv:back"
	reviewYes     = "rv:yes"
	reviewNo      = "rv:no"
	reviewClear   = "rv:clear"
	reviewArg     = "rv:arg:"

	emptyRegistryHint = "No commands yet. Use /new or /add to create one."
)

// Callback kinds returned by ParseCallback.
const (
	CallbackMenu       = "menu"
	CallbackDefinition = "definition"
	CallbackExecute    = "execute"
	CallbackCancel     = "cancel"
	CallbackBack       = "back"
	CallbackYes        = "yes"
	CallbackNo         = "no"
	CallbackClear      = "clear"
	CallbackArgument   = "argument"
	CallbackConfirm    = "confirm"
	CallbackReject     = "reject"
)

// definitionToken is the callback-safe handle of a definition id.
func definitionToken(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:6])
}

// MenuBuilder creates inline keyboards for the definition menu and the
// review screen.
type MenuBuilder struct {
	registry *store.Registry
}

// NewMenuBuilder creates a menu builder.
func NewMenuBuilder(registry *store.Registry) *MenuBuilder {
	return &MenuBuilder{registry: registry}
}

// BuildMainMenu lists every definition, one button per row.
func (m *MenuBuilder) BuildMainMenu() (string, *tgbotapi.InlineKeyboardMarkup) {
	return buildDefinitionMenu("Select a command:", m.registry.List())
}

// BuildSearchMenu lists the definitions matching query.
func (m *MenuBuilder) BuildSearchMenu(query string) (string, *tgbotapi.InlineKeyboardMarkup) {
	defs := m.registry.Search(query)
	if len(defs) == 0 {
		return fmt.Sprintf("No commands match %q.", query), nil
	}
	return buildDefinitionMenu(fmt.Sprintf("Commands matching %q:", query), defs)
}

func buildDefinitionMenu(title string, defs []script.Definition) (string, *tgbotapi.InlineKeyboardMarkup) {
	if len(defs) == 0 {
		return emptyRegistryHint, nil
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(defs))
	for _, d := range defs {
		btn := tgbotapi.NewInlineKeyboardButtonData(d.Label, definitionPrefix+definitionToken(d.ID))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return title, &keyboard
}

// Resolve finds the definition a menu token refers to.
func (m *MenuBuilder) Resolve(token string) (script.Definition, bool) {
	for _, d := range m.registry.List() {
		if definitionToken(d.ID) == token {
			return d, true
		}
	}
	return script.Definition{}, false
}

// BuildReview renders the review screen: the command preview with its
// location notice, then one button per argument, then execute and cancel.
func BuildReview(r collect.Review, notice string) (string, tgbotapi.InlineKeyboardMarkup) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n%s\n%s", r.Label, r.Command, notice)
	if len(r.Missing) > 0 {
		fmt.Fprintf(&sb, "\n\nA value is required for: %s", strings.Join(r.Missing, ", "))
	}
	for _, it := range r.Items {
		fmt.Fprintf(&sb, "\n\n%s: %s", it.Name, it.Value)
		if it.Detail != "" {
			fmt.Fprintf(&sb, "\n  %s", it.Detail)
		}
	}
	if len(r.Items) > 0 {
		sb.WriteString("\n\nTap an argument to change it.")
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(r.Items)+1)
	for i, it := range r.Items {
		label := it.Name + ": " + it.Value
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, reviewArg+strconv.Itoa(i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Execute", reviewExecute),
		tgbotapi.NewInlineKeyboardButtonData("Cancel", reviewCancel),
	))

	return sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// BuildEditPrompt renders the prompt for a pending edit. Boolean edits get
// Yes/No buttons; string edits expect the next text message.
func BuildEditPrompt(e collect.Edit, problem error) (string, tgbotapi.InlineKeyboardMarkup) {
	var sb strings.Builder
	if problem != nil {
		sb.WriteString("A value is required.\n\n")
	}
	sb.WriteString(e.Prompt)
	if e.Placeholder != "" {
		fmt.Fprintf(&sb, "\n(%s)", e.Placeholder)
	}

	if e.Arg.Type == script.TypeBoolean {
		current := "No"
		if e.InitialBool {
			current = "Yes"
		}
		fmt.Fprintf(&sb, "\n\nCurrent: %s", current)
		return sb.String(), tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Yes", reviewYes),
				tgbotapi.NewInlineKeyboardButtonData("No", reviewNo),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("<< Back", reviewBack),
			),
		)
	}

	if e.Initial != "" {
		fmt.Fprintf(&sb, "\n\nCurrent: %q", e.Initial)
	}
	sb.WriteString("\n\nSend the new value as a message.")

	row := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("Use empty value", reviewClear),
		tgbotapi.NewInlineKeyboardButtonData("<< Back", reviewBack),
	}
	return sb.String(), tgbotapi.NewInlineKeyboardMarkup(row)
}

// ParseCallback extracts the kind and value from callback data.
func ParseCallback(data string) (kind, value string) {
	switch data {
	case backToMenu:
		return CallbackMenu, "main"
	case reviewExecute:
		return CallbackExecute, ""
	case reviewCancel:
		return CallbackCancel, ""
	case reviewBack:
		return CallbackBack, ""
	case reviewYes:
		return CallbackYes, ""
	case reviewNo:
		return CallbackNo, ""
	case reviewClear:
		return CallbackClear, ""
	}

	switch {
	case strings.HasPrefix(data, definitionPrefix):
		return CallbackDefinition, strings.TrimPrefix(data, definitionPrefix)
	case strings.HasPrefix(data, reviewArg):
		return CallbackArgument, strings.TrimPrefix(data, reviewArg)
	case strings.HasPrefix(data, callbackConfirm):
		return CallbackConfirm, strings.TrimPrefix(data, callbackConfirm)
	case strings.HasPrefix(data, callbackCancel):
		return CallbackReject, strings.TrimPrefix(data, callbackCancel)
	}
	return "", data
}
