package bot

import (
	"bytes"
	"html"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// throttleInterval limits message edits to respect Telegram rate limits.
	throttleInterval = time.Second

	// maxMessageLength is Telegram's limit for message text.
	maxMessageLength = 4096
)

// MessageStreamer progressively edits one message with command output.
type MessageStreamer struct {
	api       sender
	chatID    int64
	messageID int
	header    string

	mu       sync.Mutex
	buffer   bytes.Buffer
	lastEdit time.Time
	dirty    bool
	now      func() time.Time
}

// NewMessageStreamer creates a streamer. header is shown above the output.
func NewMessageStreamer(api sender, chatID int64, header string) *MessageStreamer {
	return &MessageStreamer{
		api:    api,
		chatID: chatID,
		header: header,
		now:    time.Now,
	}
}

// Start sends the initial message and stores its ID.
func (ms *MessageStreamer) Start() error {
	msg := tgbotapi.NewMessage(ms.chatID, ms.render("Running..."))
	msg.ParseMode = tgbotapi.ModeHTML

	sent, err := ms.api.Send(msg)
	if err != nil {
		return err
	}

	ms.messageID = sent.MessageID
	return nil
}

// Write implements io.Writer, buffering output for throttled edits.
func (ms *MessageStreamer) Write(p []byte) (n int, err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	n, err = ms.buffer.Write(p)
	ms.dirty = true

	if ms.now().Sub(ms.lastEdit) >= throttleInterval {
		ms.editMessage()
	}

	return n, err
}

// Rewrite replaces the buffered output with fn(output) without sending.
func (ms *MessageStreamer) Rewrite(fn func(string) string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := fn(ms.buffer.String())
	ms.buffer.Reset()
	ms.buffer.WriteString(out)
}

// Finish appends a status line and sends the final content.
func (ms *MessageStreamer) Finish(status string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if status != "" {
		if ms.buffer.Len() > 0 && !bytes.HasSuffix(ms.buffer.Bytes(), []byte("\n")) {
			ms.buffer.WriteByte('\n')
		}
		ms.buffer.WriteString(status)
	}
	ms.editMessage()
}

// editMessage updates the message with the buffer. Must be called with mu held.
func (ms *MessageStreamer) editMessage() {
	edit := tgbotapi.NewEditMessageText(ms.chatID, ms.messageID, ms.render(ms.buffer.String()))
	edit.ParseMode = tgbotapi.ModeHTML

	_, _ = ms.api.Send(edit) // rate limit errors are retried by the next edit

	ms.lastEdit = ms.now()
	ms.dirty = false
}

// render builds the HTML message body, keeping the tail of long output.
func (ms *MessageStreamer) render(content string) string {
	if content == "" {
		content = "(no output)"
	}

	head := "<b>" + html.EscapeString(ms.header) + "</b>\n"
	budget := maxMessageLength - len(head) - len("<pre></pre>") - 64

	body := html.EscapeString(content)
	if len(body) > budget {
		body = "[truncated]\n" + html.EscapeString(escapedTail(content, budget))
	}
	return head + "<pre>" + body + "</pre>"
}

// escapedTail returns the longest suffix of s whose HTML-escaped form fits
// in budget bytes, cut on a rune boundary.
func escapedTail(s string, budget int) string {
	size := 0
	i := len(s)
	for i > 0 {
		_, w := utf8.DecodeLastRuneInString(s[:i])
		n := w
		switch s[i-1] {
		case '&', '\'', '"':
			n = 5
		case '<', '>':
			n = 4
		}
		if size+n > budget {
			break
		}
		size += n
		i -= w
	}
	return s[i:]
}
