package bot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rashpile/scriptmate/internal/auth"
	"github.com/rashpile/scriptmate/internal/executor"
	"github.com/rashpile/scriptmate/internal/runner"
	"github.com/rashpile/scriptmate/internal/store"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []tgbotapi.Chattable
	nextID int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// texts returns the text of every sent or edited message.
func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeSender) last() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (f *fakeSender) contains(sub string) bool {
	for _, t := range f.texts() {
		if strings.Contains(t, sub) {
			return true
		}
	}
	return false
}

// lastKeyboard returns the inline keyboard of the most recent new message.
func (f *fakeSender) lastKeyboard() *tgbotapi.InlineKeyboardMarkup {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.sent) - 1; i >= 0; i-- {
		if m, ok := f.sent[i].(tgbotapi.MessageConfig); ok {
			if kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
				return &kb
			}
		}
	}
	return nil
}

type recordingExecutor struct {
	mu     sync.Mutex
	calls  []executor.ExecuteConfig
	output string // written on every call, "ok\n" when empty
}

func (r *recordingExecutor) Execute(ctx context.Context, cfg executor.ExecuteConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cfg)
	out := r.output
	if out == "" {
		out = "ok\n"
	}
	cfg.Output.Write([]byte(out))
	return nil
}

type harness struct {
	bot  *Bot
	api  *fakeSender
	exec *recordingExecutor
	reg  *store.Registry
}

func newHarness(t *testing.T, allowed, admins []int64) *harness {
	t.Helper()

	reg, err := store.Open(filepath.Join(t.TempDir(), "commands.json"))
	if err != nil {
		t.Fatal(err)
	}
	exec := &recordingExecutor{}
	run := runner.New(exec, nil, runner.Settings{BaseDirectory: "/srv"},
		runner.WithEnviron(func() []string { return nil }))

	api := &fakeSender{}
	b := newBot(api, Config{
		Authorizer:      auth.NewAllowlist(allowed, admins),
		Registry:        reg,
		Runner:          run,
		ArgumentTimeout: time.Minute,
	})
	reg.Subscribe(b.onRegistryChange)

	return &harness{bot: b, api: api, exec: exec, reg: reg}
}

func (h *harness) command(chatID int64, text string) {
	name, _, _ := strings.Cut(text, " ")
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}})
}

func (h *harness) text(chatID int64, text string) {
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}})
}

func (h *harness) press(chatID int64, data string) {
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "q",
		From:    &tgbotapi.User{UserName: "ops"},
		Message: &tgbotapi.Message{MessageID: 500, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}})
}

const greetJSON = `{"id":"greet","label":"Greet","command":"echo","args":[` +
	`{"name":"name","description":"Who","type":"string","required":true,"isPositional":true},` +
	`{"name":"loud","description":"Shout","type":"boolean","defaultValue":false}]}`

func TestBotCollectAndExecute(t *testing.T) {
	h := newHarness(t, []int64{1}, nil)

	h.command(1, "/add "+greetJSON)
	if h.reg.Len() != 1 {
		t.Fatalf("registry has %d definitions after /add: %q", h.reg.Len(), h.api.last())
	}

	h.command(1, "/run greet")
	if last := h.api.last(); !strings.Contains(last, "(Will run in: /srv)") {
		t.Fatalf("review = %q", last)
	}

	h.press(1, "rv:arg:0")
	if last := h.api.last(); !strings.Contains(last, "Who") {
		t.Fatalf("prompt = %q", last)
	}

	h.text(1, "Ada")
	if last := h.api.last(); !strings.Contains(last, `echo "Ada"`) {
		t.Fatalf("review after edit = %q", last)
	}

	h.press(1, "rv:arg:1")
	h.press(1, "rv:yes")
	h.press(1, "rv:exec")

	if len(h.exec.calls) != 1 {
		t.Fatalf("executor called %d times", len(h.exec.calls))
	}
	call := h.exec.calls[0]
	if call.Command != `echo "Ada" --loud` || call.Workdir != "/srv" {
		t.Errorf("executed %+v", call)
	}
	if !h.api.contains("Done in") {
		t.Error("missing completion line")
	}
	if h.bot.sessions.Has(1) {
		t.Error("session should end after execute")
	}
}

func TestBotRequiredArgumentReprompts(t *testing.T) {
	h := newHarness(t, []int64{1}, nil)
	h.command(1, "/add "+greetJSON)
	h.command(1, "/run greet")

	h.press(1, "rv:arg:0")
	h.press(1, "rv:clear")

	if last := h.api.last(); !strings.HasPrefix(last, "A value is required.") {
		t.Errorf("last = %q", last)
	}
	if edit, ok := h.bot.sessions.Pending(1); !ok || edit.Arg.Name != "name" {
		t.Error("edit should stay pending")
	}

	h.press(1, "rv:back")
	h.press(1, "rv:cancel")
	if h.api.last() != "Script execution cancelled." {
		t.Errorf("last = %q", h.api.last())
	}
	if len(h.exec.calls) != 0 {
		t.Error("cancelled collection must not execute")
	}
}

func TestBotExecuteWaitsForRequiredArgument(t *testing.T) {
	h := newHarness(t, []int64{1}, nil)
	h.command(1, "/add "+greetJSON)
	h.command(1, "/run greet")

	h.press(1, "rv:exec")
	if len(h.exec.calls) != 0 {
		t.Fatalf("executed with name unset: %+v", h.exec.calls)
	}
	if last := h.api.last(); !strings.Contains(last, "A value is required for: name") {
		t.Errorf("review after refused execute = %q", last)
	}
	if !h.bot.sessions.Has(1) {
		t.Fatal("session should survive a refused execute")
	}

	h.press(1, "rv:arg:0")
	h.text(1, "Ada")
	if last := h.api.last(); strings.Contains(last, "A value is required") {
		t.Errorf("warning kept after the value was set: %q", last)
	}
	h.press(1, "rv:exec")
	if len(h.exec.calls) != 1 || h.exec.calls[0].Command != `echo "Ada"` {
		t.Errorf("executed %+v", h.exec.calls)
	}
}

func TestBotAuthorization(t *testing.T) {
	h := newHarness(t, []int64{1, 2}, []int64{2})

	h.command(99, "/menu")
	if !strings.HasPrefix(h.api.last(), "Unauthorized") {
		t.Errorf("stranger got %q", h.api.last())
	}

	h.command(1, "/add "+greetJSON)
	if h.api.last() != "Only admin chats may change commands." || h.reg.Len() != 0 {
		t.Errorf("non-admin add: %q, len %d", h.api.last(), h.reg.Len())
	}

	h.command(2, "/add "+greetJSON)
	if h.reg.Len() != 1 {
		t.Errorf("admin add failed: %q", h.api.last())
	}
}

func TestBotManagementErrors(t *testing.T) {
	h := newHarness(t, []int64{1}, nil)
	h.command(1, "/add "+greetJSON)

	tests := []struct {
		command string
		want    string
	}{
		{"/add " + greetJSON, "That id is already in use"},
		{"/add {not json", "Cannot parse definition"},
		{"/add", "Cannot parse definition"},
		{`/add {"id":"x","label":"","command":"ls","args":[]}`, "Invalid definition"},
		{`/edit {"id":"missing","label":"M","command":"ls","args":[]}`, "No such command"},
		{"/show missing", "No such command"},
		{"/rename greet", "Usage: /rename"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			h.command(1, tt.command)
			if !strings.Contains(h.api.last(), tt.want) {
				t.Errorf("%s -> %q, want %q", tt.command, h.api.last(), tt.want)
			}
		})
	}
	if h.reg.Len() != 1 {
		t.Errorf("rejected commands changed the registry: len %d", h.reg.Len())
	}
}

func TestBotRenameAndNew(t *testing.T) {
	h := newHarness(t, []int64{1}, nil)
	h.command(1, "/add "+greetJSON)

	h.command(1, "/rename greet\n"+strings.Replace(greetJSON, `"id":"greet"`, `"id":"hello"`, 1))
	if _, err := h.reg.Get("hello"); err != nil {
		t.Fatalf("rename failed: %q", h.api.last())
	}

	h.command(1, "/new Backup")
	if h.reg.Len() != 2 || !strings.Contains(h.api.last(), `"label": "Backup"`) {
		t.Errorf("/new -> %q", h.api.last())
	}
}

func TestBotDeleteNeedsConfirmation(t *testing.T) {
	h := newHarness(t, []int64{1}, nil)
	h.command(1, "/add "+greetJSON)

	h.command(1, "/delete greet")
	if h.reg.Len() != 1 {
		t.Fatal("delete must wait for confirmation")
	}

	kb := h.api.lastKeyboard()
	if kb == nil {
		t.Fatal("no confirmation keyboard")
	}
	h.press(1, *kb.InlineKeyboard[0][0].CallbackData)

	if h.reg.Len() != 0 {
		t.Errorf("definition not deleted: %q", h.api.last())
	}

	// A second press on the same button is stale.
	h.press(1, *kb.InlineKeyboard[0][0].CallbackData)
	if h.api.last() != "Confirmation expired or invalid." {
		t.Errorf("stale confirm -> %q", h.api.last())
	}
}

func TestBotDropsSessionWhenDefinitionRemoved(t *testing.T) {
	h := newHarness(t, []int64{1}, nil)
	h.command(1, "/add "+greetJSON)
	h.command(1, "/run greet")

	if err := h.reg.Delete("greet"); err != nil {
		t.Fatal(err)
	}
	if h.bot.sessions.Has(1) {
		t.Error("session should be dropped")
	}
	if !h.api.contains("was removed") {
		t.Error("user was not told about the removal")
	}
}

func TestBotEmptyMenuHint(t *testing.T) {
	h := newHarness(t, []int64{1}, nil)
	h.command(1, "/menu")
	if h.api.last() != emptyRegistryHint {
		t.Errorf("menu = %q", h.api.last())
	}
}

func TestExtractRawText(t *testing.T) {
	tests := []struct {
		text, cmd, want string
	}{
		{"/add {\n\"a\":1\n}", "add", "{\n\"a\":1\n}"},
		{"/run@scriptmate_bot greet", "run", "greet"},
		{"/menu", "menu", ""},
	}
	for _, tt := range tests {
		if got := extractRawText(tt.text, tt.cmd); got != tt.want {
			t.Errorf("extractRawText(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestBotSendsReferencedFiles(t *testing.T) {
	h := newHarness(t, []int64{1}, nil)
	report := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(report, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.exec.output = "built\n[file:" + report + "]\n[file:/missing.txt]\n"

	h.command(1, `/add {"id":"build","label":"Build","command":"make","args":[]}`)
	h.command(1, "/run build")
	h.press(1, "rv:exec")

	if h.api.contains("[file:") {
		t.Error("markers should be stripped from the output message")
	}
	if !h.api.contains("File not found:\n/missing.txt") {
		t.Error("missing file not reported")
	}

	h.api.mu.Lock()
	defer h.api.mu.Unlock()
	var sent int
	for _, c := range h.api.sent {
		if doc, ok := c.(tgbotapi.DocumentConfig); ok {
			sent++
			if doc.File != tgbotapi.FilePath(report) {
				t.Errorf("sent %v, want %s", doc.File, report)
			}
		}
	}
	if sent != 1 {
		t.Errorf("sent %d documents, want 1", sent)
	}
}
