package bot

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rashpile/scriptmate/internal/collect"
	"github.com/rashpile/scriptmate/pkg/script"
)

const defaultArgumentTimeout = 10 * time.Minute

// ErrNoSession is returned when a chat has no active collection.
var ErrNoSession = errors.New("no active argument collection")

// chatSession is one chat's collection in progress.
type chatSession struct {
	session     *collect.Session
	lastActive  time.Time
	reviewMsgID int // message holding the review keyboard
	promptMsgID int // message holding the current edit prompt
}

// ArgumentCollector owns one collect.Session per chat and serializes access
// to it. Sessions idle longer than the timeout are abandoned.
type ArgumentCollector struct {
	mu       sync.Mutex
	sessions map[int64]*chatSession
	timeout  time.Duration
	quoting  script.Quoting
	now      func() time.Time
}

// NewArgumentCollector creates a collector. A zero timeout uses the default.
func NewArgumentCollector(timeout time.Duration, quoting script.Quoting) *ArgumentCollector {
	if timeout <= 0 {
		timeout = defaultArgumentTimeout
	}
	return &ArgumentCollector{
		sessions: make(map[int64]*chatSession),
		timeout:  timeout,
		quoting:  quoting,
		now:      time.Now,
	}
}

// Start begins collection for def in chatID, replacing any previous one.
func (c *ArgumentCollector) Start(chatID int64, def script.Definition) collect.Review {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old := c.sessions[chatID]; old != nil {
		_ = old.session.Abandon()
	}

	s := collect.Start(def, collect.WithQuoting(c.quoting))
	c.sessions[chatID] = &chatSession{session: s, lastActive: c.now()}
	return s.Review()
}

// get returns a live session and refreshes its activity time.
// Must be called with mu held.
func (c *ArgumentCollector) get(chatID int64) (*chatSession, error) {
	cs := c.sessions[chatID]
	if cs == nil {
		return nil, ErrNoSession
	}
	if c.now().Sub(cs.lastActive) > c.timeout {
		_ = cs.session.Abandon()
		delete(c.sessions, chatID)
		return nil, ErrNoSession
	}
	cs.lastActive = c.now()
	return cs, nil
}

// Review returns the current review snapshot.
func (c *ArgumentCollector) Review(chatID int64) (collect.Review, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.get(chatID)
	if err != nil {
		return collect.Review{}, err
	}
	return cs.session.Review(), nil
}

// Definition returns the definition being collected for.
func (c *ArgumentCollector) Definition(chatID int64) (script.Definition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.get(chatID)
	if err != nil {
		return script.Definition{}, err
	}
	return cs.session.Definition(), nil
}

// Select enters Edit for the argument at index idx of the definition.
func (c *ArgumentCollector) Select(chatID int64, idx int) (collect.Edit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.get(chatID)
	if err != nil {
		return collect.Edit{}, err
	}

	def := cs.session.Definition()
	if idx < 0 || idx >= len(def.Args) {
		return collect.Edit{}, fmt.Errorf("argument #%d: %w", idx, collect.ErrUnknownArgument)
	}
	return cs.session.Select(def.Args[idx].Name)
}

// Pending returns the edit in progress, if any.
func (c *ArgumentCollector) Pending(chatID int64) (collect.Edit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.get(chatID)
	if err != nil {
		return collect.Edit{}, false
	}
	return cs.session.Pending()
}

// SubmitString completes a string edit and returns the refreshed review.
// On collect.ErrRequiredArgumentMissing the edit stays pending.
func (c *ArgumentCollector) SubmitString(chatID int64, input string) (collect.Review, error) {
	return c.apply(chatID, func(s *collect.Session) error { return s.SubmitString(input) })
}

// SubmitBool completes a boolean edit and returns the refreshed review.
func (c *ArgumentCollector) SubmitBool(chatID int64, v bool) (collect.Review, error) {
	return c.apply(chatID, func(s *collect.Session) error { return s.SubmitBool(v) })
}

// CancelEdit leaves the pending edit without changing values.
func (c *ArgumentCollector) CancelEdit(chatID int64) (collect.Review, error) {
	return c.apply(chatID, func(s *collect.Session) error { return s.CancelEdit() })
}

func (c *ArgumentCollector) apply(chatID int64, fn func(*collect.Session) error) (collect.Review, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.get(chatID)
	if err != nil {
		return collect.Review{}, err
	}
	if err := fn(cs.session); err != nil {
		return collect.Review{}, err
	}
	return cs.session.Review(), nil
}

// Commit finishes the session and returns the definition and final values.
func (c *ArgumentCollector) Commit(chatID int64) (script.Definition, script.Values, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.get(chatID)
	if err != nil {
		return script.Definition{}, nil, err
	}
	values, err := cs.session.Commit()
	if err != nil {
		return script.Definition{}, nil, err
	}
	delete(c.sessions, chatID)
	return cs.session.Definition(), values, nil
}

// Abandon ends the chat's session without executing. It reports whether a
// session existed.
func (c *ArgumentCollector) Abandon(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs := c.sessions[chatID]
	if cs == nil {
		return false
	}
	_ = cs.session.Abandon()
	delete(c.sessions, chatID)
	return true
}

// SetMessages records the review and prompt message IDs for later edits.
// Zero leaves the stored value unchanged.
func (c *ArgumentCollector) SetMessages(chatID int64, reviewMsgID, promptMsgID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cs := c.sessions[chatID]; cs != nil {
		if reviewMsgID != 0 {
			cs.reviewMsgID = reviewMsgID
		}
		if promptMsgID != 0 {
			cs.promptMsgID = promptMsgID
		}
	}
}

// Messages returns the stored review and prompt message IDs.
func (c *ArgumentCollector) Messages(chatID int64) (reviewMsgID, promptMsgID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cs := c.sessions[chatID]; cs != nil {
		return cs.reviewMsgID, cs.promptMsgID
	}
	return 0, 0
}

// Has reports whether the chat has a live session.
func (c *ArgumentCollector) Has(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.get(chatID)
	return err == nil
}

// DropMissing abandons sessions whose definition id is not in ids and
// returns the affected chats.
func (c *ArgumentCollector) DropMissing(ids map[string]bool) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dropped []int64
	for chatID, cs := range c.sessions {
		if !ids[cs.session.Definition().ID] {
			_ = cs.session.Abandon()
			delete(c.sessions, chatID)
			dropped = append(dropped, chatID)
		}
	}
	return dropped
}

// CleanupExpired abandons idle sessions and returns the affected chats.
func (c *ArgumentCollector) CleanupExpired() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []int64
	now := c.now()
	for chatID, cs := range c.sessions {
		if now.Sub(cs.lastActive) > c.timeout {
			_ = cs.session.Abandon()
			delete(c.sessions, chatID)
			expired = append(expired, chatID)
		}
	}
	return expired
}
