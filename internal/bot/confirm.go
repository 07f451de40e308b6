package bot

import (
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

const (
	// confirmationTTL is how long a confirmation request remains valid.
	confirmationTTL = 5 * time.Minute

	callbackConfirm = "confirm:"
	callbackCancel  = "cancel:"
)

// PendingConfirmation is a destructive action awaiting a button press.
type PendingConfirmation struct {
	ChatID    int64
	MessageID int
	Action    string // e.g. "delete"
	Target    string // definition id
	ExpiresAt time.Time
}

// ConfirmationManager handles confirmation dialogs.
type ConfirmationManager struct {
	mu      sync.Mutex
	pending map[string]*PendingConfirmation
	now     func() time.Time
}

// NewConfirmationManager creates a confirmation manager.
func NewConfirmationManager() *ConfirmationManager {
	return &ConfirmationManager{
		pending: make(map[string]*PendingConfirmation),
		now:     time.Now,
	}
}

// RequestConfirmation sends a Confirm/Cancel keyboard and stores the
// pending action.
func (cm *ConfirmationManager) RequestConfirmation(api sender, chatID int64, action, target, text string) error {
	id := newCallbackID()

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Confirm", callbackConfirm+id),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", callbackCancel+id),
		),
	)

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard

	sent, err := api.Send(msg)
	if err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}

	cm.add(id, &PendingConfirmation{
		ChatID:    chatID,
		MessageID: sent.MessageID,
		Action:    action,
		Target:    target,
		ExpiresAt: cm.now().Add(confirmationTTL),
	})
	return nil
}

func (cm *ConfirmationManager) add(id string, p *PendingConfirmation) {
	cm.mu.Lock()
	cm.pending[id] = p
	cm.mu.Unlock()
}

// Resolve consumes the pending confirmation for a button press. It returns
// nil when the id is unknown, expired, or belongs to another chat.
func (cm *ConfirmationManager) Resolve(chatID int64, id string) *PendingConfirmation {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	p, ok := cm.pending[id]
	if !ok || p.ChatID != chatID {
		return nil
	}
	delete(cm.pending, id)

	if cm.now().After(p.ExpiresAt) {
		return nil
	}
	return p
}

// Cleanup removes expired confirmations.
func (cm *ConfirmationManager) Cleanup() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := cm.now()
	for id, p := range cm.pending {
		if now.After(p.ExpiresAt) {
			delete(cm.pending, id)
		}
	}
}

// newCallbackID returns a short random id for callback data.
func newCallbackID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:8])
}
