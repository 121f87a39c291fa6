package core

import (
	"context"
	"time"
)

// Link is a short code and the destination it resolves to, plus the
// rules that decide whether it may still be followed.
type Link struct {
	ID           int64
	ShortCode    string
	OriginalURL  string
	CreatedAt    time.Time
	Clicks       int64
	ExpiresAt    *time.Time // nil: never expires
	MaxClicks    *int64     // nil: unlimited; 1: one-time link
	PasswordHash string     // empty: no password
	ShowPreview  bool
}

// HasPassword reports whether the link is password protected.
func (l *Link) HasPassword() bool { return l.PasswordHash != "" }

// Click is one recorded visit. It is never updated after insert.
type Click struct {
	ID        int64
	LinkID    int64
	Timestamp time.Time
	Referrer  string
	UserAgent string
	Country   string
}

// CreateRequest is the input to Shorten.
type CreateRequest struct {
	URL         string
	Custom      string     // optional custom alias
	ExpiresAt   *time.Time // optional absolute expiry
	TTLDays     *int       // optional expiry relative to now; exclusive with ExpiresAt
	Password    string
	OneTime     bool
	MaxClicks   *int64
	ShowPreview bool
}

// Visitor describes the request that is following a link.
type Visitor struct {
	Referrer  string
	UserAgent string
	Country   string
}

// Store abstracts persistence for links and their clicks.
type Store interface {
	// CreateLink inserts l and sets l.ID. It fails with ErrConflict if the code is taken.
	CreateLink(ctx context.Context, l *Link) error
	// CodeExists reports whether any link uses code.
	CodeExists(ctx context.Context, code string) (bool, error)
	// FindLinkByCode returns the link for code, expired or not.
	FindLinkByCode(ctx context.Context, code string) (*Link, error)
	// FindLinksByCodes returns the links that exist among codes.
	FindLinksByCodes(ctx context.Context, codes []string) ([]Link, error)
	// RecordClick increments the link's counter and inserts c in one
	// transaction. The increment only applies while the link is neither
	// expired at now nor at its click cap; otherwise nothing is written and
	// ErrNotFound is returned.
	RecordClick(ctx context.Context, c Click, now time.Time) error
	// FindClicksByLinkIDs returns clicks for ids at or after since.
	FindClicksByLinkIDs(ctx context.Context, ids []int64, since time.Time) ([]Click, error)
	// DeleteExpiredLinks removes links (and their clicks) expired at now.
	DeleteExpiredLinks(ctx context.Context, now time.Time) (int64, error)
}

// CodeGenerator creates random short codes.
type CodeGenerator interface {
	NewCode(ctx context.Context) (string, error)
}

// PasswordHasher hashes link passwords and checks candidates against them.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}
