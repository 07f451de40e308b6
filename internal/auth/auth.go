// Package auth decides which Telegram chats may run and manage commands.
package auth

import "sync"

// Authorizer validates chat IDs against the configured lists.
type Authorizer interface {
	// CanRun reports whether the chat may browse and execute definitions.
	CanRun(chatID int64) bool

	// CanManage reports whether the chat may add, edit, rename and delete
	// definitions.
	CanManage(chatID int64) bool

	// Reload replaces both lists.
	Reload(allowedIDs, adminIDs []int64)
}

// Allowlist implements Authorizer using sets of permitted chat IDs.
// Admins are always allowed to run. With no admins configured every
// allowed chat may manage definitions.
type Allowlist struct {
	mu      sync.RWMutex
	allowed map[int64]struct{}
	admins  map[int64]struct{}
}

// NewAllowlist creates an Authorizer for the given lists.
func NewAllowlist(allowedIDs, adminIDs []int64) *Allowlist {
	a := &Allowlist{}
	a.Reload(allowedIDs, adminIDs)
	return a
}

// CanRun returns true if the chat ID is allowed or an admin.
func (a *Allowlist) CanRun(chatID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.allowed[chatID]; ok {
		return true
	}
	_, ok := a.admins[chatID]
	return ok
}

// CanManage returns true if the chat ID may change definitions.
func (a *Allowlist) CanManage(chatID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.admins) == 0 {
		_, ok := a.allowed[chatID]
		return ok
	}
	_, ok := a.admins[chatID]
	return ok
}

// Reload replaces the lists atomically.
func (a *Allowlist) Reload(allowedIDs, adminIDs []int64) {
	allowed := toSet(allowedIDs)
	admins := toSet(adminIDs)

	a.mu.Lock()
	a.allowed = allowed
	a.admins = admins
	a.mu.Unlock()
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
