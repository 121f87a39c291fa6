package core

import "time"

// State is the outcome of evaluating a link for one access.
type State int

const (
	StateNotFound State = iota
	StateExpired
	StateExhausted
	StatePasswordGated
	StatePreviewGated
	StateUnlocked
)

var stateNames = [...]string{"not_found", "expired", "exhausted", "password_gated", "preview_gated", "unlocked"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Live reports whether the link can still be followed at all. Expired and
// exhausted links are indistinguishable from missing ones to callers.
func (s State) Live() bool { return s >= StatePasswordGated }

// Access records which gates the visitor has already passed.
type Access struct {
	PasswordVerified bool
	PreviewConfirmed bool
}

// Evaluate decides what a visitor may do with l right now. Rules apply in
// order: missing, expired, exhausted, password gate, preview gate.
func Evaluate(l *Link, now time.Time, a Access) State {
	switch {
	case l == nil:
		return StateNotFound
	case l.ExpiresAt != nil && !now.Before(*l.ExpiresAt):
		return StateExpired
	case l.MaxClicks != nil && l.Clicks >= *l.MaxClicks:
		return StateExhausted
	case l.HasPassword() && !a.PasswordVerified:
		return StatePasswordGated
	case l.ShowPreview && !a.PreviewConfirmed:
		return StatePreviewGated
	default:
		return StateUnlocked
	}
}
