package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"urlitrim/internal/analytics"
)

const (
	maxURLLength      = 2048
	minAliasLength    = 3
	maxAliasLength    = 64
	maxPasswordLength = 1024
	maxTTLDays        = 3650
	generateAttempts  = 5
	// MaxStatsCodes bounds a single batch stats request.
	MaxStatsCodes = 100
)

var aliasRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Aliases that would shadow fixed routes.
var reservedAliases = map[string]struct{}{
	"api":     {},
	"health":  {},
	"static":  {},
	"favicon": {},
}

// ClickPolicy decides what happens to a redirect when recording its click fails.
type ClickPolicy string

const (
	// ClickBestEffort lets the redirect proceed; the failed click is rolled
	// back and reported through Visit.ClickErr.
	ClickBestEffort ClickPolicy = "best-effort"
	// ClickStrict fails the redirect.
	ClickStrict ClickPolicy = "strict"
)

// Options tune a Service. Zero values pick defaults.
type Options struct {
	Hasher      PasswordHasher
	Location    *time.Location // calendar used for daily and hourly buckets
	ClickPolicy ClickPolicy
}

// Service implements link creation, resolution and reporting.
type Service struct {
	store   Store
	gen     CodeGenerator
	hasher  PasswordHasher
	loc     *time.Location
	policy  ClickPolicy
	nowFunc func() time.Time
}

func NewService(store Store, gen CodeGenerator, opts Options) *Service {
	s := &Service{
		store:   store,
		gen:     gen,
		hasher:  opts.Hasher,
		loc:     opts.Location,
		policy:  opts.ClickPolicy,
		nowFunc: time.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.policy != ClickStrict {
		s.policy = ClickBestEffort
	}
	return s
}

// Location is the calendar used for reports.
func (s *Service) Location() *time.Location { return s.loc }

// Visit is the result of following a short link.
type Visit struct {
	Link  *Link
	State State
	// ClickErr is set when the redirect may proceed but its click was not
	// recorded. Only possible under ClickBestEffort for uncapped links.
	ClickErr error
}

// Shorten validates in and stores a new link under a custom alias or a
// generated code.
func (s *Service) Shorten(ctx context.Context, in CreateRequest) (*Link, error) {
	now := s.nowFunc()
	rec, err := s.newLink(in, now)
	if err != nil {
		return nil, err
	}

	if custom := strings.TrimSpace(in.Custom); custom != "" {
		if !validAlias(custom) {
			return nil, ErrInvalidCode
		}
		if _, reserved := reservedAliases[strings.ToLower(custom)]; reserved {
			return nil, ErrInvalidCode
		}
		// Single attempt for custom alias; surface conflict back to caller.
		rec.ShortCode = custom
		if err := s.store.CreateLink(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	for i := 0; i < generateAttempts; i++ {
		code, err := s.gen.NewCode(ctx)
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		if !validAlias(code) {
			continue
		}
		taken, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}
		rec.ShortCode = code
		err = s.store.CreateLink(ctx, rec)
		if err == nil {
			return rec, nil
		}
		// Lost a race with a concurrent insert of the same code.
		if !IsConflict(err) {
			return nil, err
		}
	}
	return nil, ErrCodeGenerationExhausted
}

func (s *Service) newLink(in CreateRequest, now time.Time) (*Link, error) {
	longURL, err := normalizeAndValidateURL(in.URL)
	if err != nil {
		return nil, err
	}
	rec := &Link{
		OriginalURL: longURL,
		CreatedAt:   now,
		ShowPreview: in.ShowPreview,
	}

	switch {
	case in.ExpiresAt != nil && in.TTLDays != nil:
		return nil, fmt.Errorf("%w: set either ttl or expiresAt, not both", ErrInvalidInput)
	case in.TTLDays != nil:
		if *in.TTLDays <= 0 || *in.TTLDays > maxTTLDays {
			return nil, fmt.Errorf("%w: ttl must be between 1 and %d days", ErrInvalidInput, maxTTLDays)
		}
		exp := now.Add(time.Duration(*in.TTLDays) * 24 * time.Hour)
		rec.ExpiresAt = &exp
	case in.ExpiresAt != nil:
		if !in.ExpiresAt.After(now) {
			return nil, ErrInvalidExpiry
		}
		exp := *in.ExpiresAt
		rec.ExpiresAt = &exp
	}

	switch {
	case in.OneTime:
		one := int64(1)
		rec.MaxClicks = &one
	case in.MaxClicks != nil:
		if *in.MaxClicks < 1 {
			return nil, fmt.Errorf("%w: maxClicks must be at least 1", ErrInvalidInput)
		}
		n := *in.MaxClicks
		rec.MaxClicks = &n
	}

	if in.Password != "" {
		if len(in.Password) > maxPasswordLength {
			return nil, fmt.Errorf("%w: password too long", ErrInvalidInput)
		}
		if s.hasher == nil {
			return nil, errors.New("password hashing is not configured")
		}
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		rec.PasswordHash = hash
	}
	return rec, nil
}

// Open evaluates code for a visitor who has passed no gates yet. An
// unlocked link has its click recorded before Open returns.
func (s *Service) Open(ctx context.Context, code string, v Visitor) (*Visit, error) {
	rec, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc()
	state := Evaluate(rec, now, Access{})
	if !state.Live() {
		return nil, ErrNotFound
	}
	visit := &Visit{Link: rec, State: state}
	if state != StateUnlocked {
		return visit, nil
	}

	err = s.recordClick(ctx, rec, v, now)
	switch {
	case err == nil:
		rec.Clicks++
	case IsNotFound(err):
		return nil, ErrNotFound
	case s.policy == ClickStrict || rec.MaxClicks != nil:
		return nil, err
	default:
		visit.ClickErr = err
	}
	return visit, nil
}

// Verify checks password against a protected link and returns the link.
func (s *Service) Verify(ctx context.Context, code, password string) (*Link, error) {
	rec, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if !Evaluate(rec, s.nowFunc(), Access{PreviewConfirmed: true}).Live() {
		return nil, ErrNotFound
	}
	if !rec.HasPassword() {
		return nil, ErrNoPassword
	}
	if err := s.checkPassword(rec, password); err != nil {
		return nil, err
	}
	return rec, nil
}

// ReportClick records a click for a visitor who has passed the gates
// through the interstitial page. Protected links require the password
// again. Recording is always strict here since the click is the request.
func (s *Service) ReportClick(ctx context.Context, code, password string, v Visitor) (*Link, error) {
	rec, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc()
	if !Evaluate(rec, now, Access{PasswordVerified: true, PreviewConfirmed: true}).Live() {
		return nil, ErrNotFound
	}
	if rec.HasPassword() {
		if err := s.checkPassword(rec, password); err != nil {
			return nil, err
		}
	}
	if err := s.recordClick(ctx, rec, v, now); err != nil {
		return nil, err
	}
	rec.Clicks++
	return rec, nil
}

// Metadata returns a live link.
func (s *Service) Metadata(ctx context.Context, code string) (*Link, error) {
	rec, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if !Evaluate(rec, s.nowFunc(), Access{}).Live() {
		return nil, ErrNotFound
	}
	return rec, nil
}

// LinkStats reports on a live link's clicks over the trailing window.
func (s *Service) LinkStats(ctx context.Context, code string) (*Link, analytics.LinkReport, error) {
	rec, err := s.Metadata(ctx, code)
	if err != nil {
		return nil, analytics.LinkReport{}, err
	}
	now := s.nowFunc()
	clicks, err := s.store.FindClicksByLinkIDs(ctx, []int64{rec.ID}, analytics.WindowStart(now, s.loc))
	if err != nil {
		return nil, analytics.LinkReport{}, err
	}
	return rec, analytics.PerLink(toEvents(clicks), now, s.loc), nil
}

// PersonalStats reports across the links named by codes. Unknown codes
// are skipped; if none are known the report is empty but fully shaped.
func (s *Service) PersonalStats(ctx context.Context, codes []string) (analytics.PersonalReport, error) {
	codes = dedupeCodes(codes)
	if len(codes) == 0 {
		return analytics.PersonalReport{}, fmt.Errorf("%w: shortCodes array is required", ErrInvalidInput)
	}
	if len(codes) > MaxStatsCodes {
		return analytics.PersonalReport{}, fmt.Errorf("%w: at most %d shortCodes per request", ErrInvalidInput, MaxStatsCodes)
	}

	now := s.nowFunc()
	links, err := s.store.FindLinksByCodes(ctx, codes)
	if err != nil {
		return analytics.PersonalReport{}, err
	}
	if len(links) == 0 {
		return analytics.Personal(nil, nil, now, s.loc), nil
	}

	ids := make([]int64, 0, len(links))
	totals := make([]analytics.LinkTotal, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.ID)
		totals = append(totals, analytics.LinkTotal{ShortCode: l.ShortCode, Clicks: l.Clicks, CreatedAt: l.CreatedAt})
	}
	clicks, err := s.store.FindClicksByLinkIDs(ctx, ids, analytics.WindowStart(now, s.loc))
	if err != nil {
		return analytics.PersonalReport{}, err
	}
	return analytics.Personal(totals, toEvents(clicks), now, s.loc), nil
}

// CleanupExpired purges expired links and returns how many were removed.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredLinks(ctx, s.nowFunc())
}

// ---- helpers ----

// lookup maps malformed codes to ErrNotFound so probes learn nothing.
func (s *Service) lookup(ctx context.Context, code string) (*Link, error) {
	if !validAlias(code) {
		return nil, ErrNotFound
	}
	return s.store.FindLinkByCode(ctx, code)
}

func (s *Service) checkPassword(rec *Link, password string) error {
	if s.hasher == nil {
		return errors.New("password hashing is not configured")
	}
	ok, err := s.hasher.Verify(password, rec.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password for %s: %w", rec.ShortCode, err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func (s *Service) recordClick(ctx context.Context, rec *Link, v Visitor, now time.Time) error {
	return s.store.RecordClick(ctx, Click{
		LinkID:    rec.ID,
		Timestamp: now,
		Referrer:  truncate(v.Referrer, maxURLLength),
		UserAgent: truncate(v.UserAgent, 512),
		Country:   truncate(strings.ToUpper(strings.TrimSpace(v.Country)), 8),
	}, now)
}

func toEvents(clicks []Click) []analytics.Event {
	out := make([]analytics.Event, 0, len(clicks))
	for _, c := range clicks {
		out = append(out, analytics.Event{
			Timestamp: c.Timestamp,
			Referrer:  c.Referrer,
			UserAgent: c.UserAgent,
			Country:   c.Country,
		})
	}
	return out
}

func dedupeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if !validAlias(c) {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func validAlias(a string) bool {
	if len(a) < minAliasLength || len(a) > maxAliasLength {
		return false
	}
	return aliasRe.MatchString(a)
}

func normalizeAndValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxURLLength {
		return "", ErrInvalidURL
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if parsed.Host == "" {
		return "", ErrInvalidURL
	}
	return parsed.String(), nil
}
