package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urlitrim/internal/secret"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestService(st Store, gen CodeGenerator, policy ClickPolicy) *Service {
	s := NewService(st, gen, Options{
		Hasher:      secret.NewHasher(secret.Params{Memory: 64, Iterations: 1, Parallelism: 1}),
		ClickPolicy: policy,
	})
	s.nowFunc = func() time.Time { return fixedNow }
	return s
}

func TestShorten_Defaults(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st, &seqGen{codes: []string{"abc1234"}}, "")

	rec, err := svc.Shorten(context.Background(), CreateRequest{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "abc1234", rec.ShortCode)
	assert.Len(t, rec.ShortCode, 7)
	assert.Equal(t, "https://example.com", rec.OriginalURL)
	assert.Equal(t, int64(0), rec.Clicks)
	assert.Nil(t, rec.ExpiresAt)
	assert.Nil(t, rec.MaxClicks)
	assert.False(t, rec.HasPassword())

	stored, err := st.FindLinkByCode(context.Background(), "abc1234")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)
}

func TestShorten_CollisionRetriesOnceWithFreshCode(t *testing.T) {
	st := newMemStore()
	st.put(Link{ShortCode: "taken00", OriginalURL: "https://a.example"})
	gen := &seqGen{codes: []string{"taken00", "fresh00"}}
	svc := newTestService(st, gen, "")

	rec, err := svc.Shorten(context.Background(), CreateRequest{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "fresh00", rec.ShortCode)
	assert.Equal(t, 2, gen.calls)
	assert.Equal(t, []string{"taken00", "fresh00"}, st.existsCalls)
}

func TestShorten_InsertConflictCountsAsCollision(t *testing.T) {
	st := newMemStore()
	st.conflictOnCreate["racy000"] = true
	gen := &seqGen{codes: []string{"racy000", "fresh00"}}
	svc := newTestService(st, gen, "")

	rec, err := svc.Shorten(context.Background(), CreateRequest{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "fresh00", rec.ShortCode)
}

func TestShorten_Exhausted(t *testing.T) {
	st := newMemStore()
	st.put(Link{ShortCode: "samesam", OriginalURL: "https://a.example"})
	svc := newTestService(st, constGen("samesam"), "")

	_, err := svc.Shorten(context.Background(), CreateRequest{URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrCodeGenerationExhausted)
	assert.Len(t, st.existsCalls, generateAttempts)
}

func TestShorten_Options(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st, &seqGen{codes: []string{"opt0001", "opt0002", "opt0003"}}, "")
	ctx := context.Background()

	rec, err := svc.Shorten(ctx, CreateRequest{URL: "https://example.com", TTLDays: ptr(7), OneTime: true, ShowPreview: true})
	require.NoError(t, err)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, fixedNow.Add(7*24*time.Hour), *rec.ExpiresAt)
	require.NotNil(t, rec.MaxClicks)
	assert.Equal(t, int64(1), *rec.MaxClicks)
	assert.True(t, rec.ShowPreview)

	exp := fixedNow.Add(time.Hour)
	rec, err = svc.Shorten(ctx, CreateRequest{URL: "https://example.com", ExpiresAt: &exp, MaxClicks: ptr(int64(3))})
	require.NoError(t, err)
	assert.Equal(t, exp, *rec.ExpiresAt)
	assert.Equal(t, int64(3), *rec.MaxClicks)

	rec, err = svc.Shorten(ctx, CreateRequest{URL: "https://example.com", Password: "secret"})
	require.NoError(t, err)
	assert.True(t, rec.HasPassword())
	assert.NotEqual(t, "secret", rec.PasswordHash)
}

func TestShorten_InvalidInput(t *testing.T) {
	svc := newTestService(newMemStore(), constGen("abc1234"), "")
	past := fixedNow.Add(-time.Second)

	cases := []CreateRequest{
		{URL: ""},
		{URL: "notaurl"},
		{URL: "ftp://example.com/file"},
		{URL: "https://"},
		{URL: "https://example.com", ExpiresAt: &past},
		{URL: "https://example.com", TTLDays: ptr(0)},
		{URL: "https://example.com", TTLDays: ptr(1), ExpiresAt: &past},
		{URL: "https://example.com", MaxClicks: ptr(int64(0))},
		{URL: "https://example.com", Custom: "ab"},
		{URL: "https://example.com", Custom: "has space"},
		{URL: "https://example.com", Custom: "api"},
	}
	for i, in := range cases {
		_, err := svc.Shorten(context.Background(), in)
		assert.True(t, IsInvalidInput(err), "case %d: %v", i, err)
	}
}

func TestShorten_CustomAlias(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st, constGen("unused0"), "")
	ctx := context.Background()

	rec, err := svc.Shorten(ctx, CreateRequest{URL: "https://example.com", Custom: "my-link"})
	require.NoError(t, err)
	assert.Equal(t, "my-link", rec.ShortCode)

	_, err = svc.Shorten(ctx, CreateRequest{URL: "https://example.com/2", Custom: "my-link"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestOpen_Redirects(t *testing.T) {
	st := newMemStore()
	l := st.put(Link{ShortCode: "plain00", OriginalURL: "https://example.com"})
	svc := newTestService(st, nil, "")

	visit, err := svc.Open(context.Background(), "plain00", Visitor{Referrer: "https://t.co/x", UserAgent: "UA", Country: "tw"})
	require.NoError(t, err)
	assert.Equal(t, StateUnlocked, visit.State)
	assert.NoError(t, visit.ClickErr)
	assert.Equal(t, int64(1), visit.Link.Clicks)

	clicks := st.clicksFor(l.ID)
	require.Len(t, clicks, 1)
	assert.Equal(t, "https://t.co/x", clicks[0].Referrer)
	assert.Equal(t, "TW", clicks[0].Country)
	assert.Equal(t, fixedNow, clicks[0].Timestamp)
}

func TestOpen_NotFoundStates(t *testing.T) {
	st := newMemStore()
	past := fixedNow.Add(-time.Minute)
	st.put(Link{ShortCode: "expired", OriginalURL: "https://example.com", ExpiresAt: &past})
	st.put(Link{ShortCode: "usedup0", OriginalURL: "https://example.com", MaxClicks: ptr(int64(1)), Clicks: 1})
	svc := newTestService(st, nil, "")

	for _, code := range []string{"expired", "usedup0", "missing", "x", "bad code!"} {
		_, err := svc.Open(context.Background(), code, Visitor{})
		assert.ErrorIs(t, err, ErrNotFound, code)
	}
}

func TestOpen_GatesDoNotRecord(t *testing.T) {
	st := newMemStore()
	pw := st.put(Link{ShortCode: "locked0", OriginalURL: "https://example.com", PasswordHash: secret.LegacyDigest("secret")})
	pv := st.put(Link{ShortCode: "preview", OriginalURL: "https://example.com", ShowPreview: true})
	svc := newTestService(st, nil, "")

	v, err := svc.Open(context.Background(), "locked0", Visitor{})
	require.NoError(t, err)
	assert.Equal(t, StatePasswordGated, v.State)

	v, err = svc.Open(context.Background(), "preview", Visitor{})
	require.NoError(t, err)
	assert.Equal(t, StatePreviewGated, v.State)

	assert.Empty(t, st.clicksFor(pw.ID))
	assert.Empty(t, st.clicksFor(pv.ID))
}

func TestOpen_ClickPolicy(t *testing.T) {
	boom := &StorageError{Op: "record click", Err: errors.New("disk full")}

	t.Run("best effort proceeds", func(t *testing.T) {
		st := newMemStore()
		st.put(Link{ShortCode: "plain00", OriginalURL: "https://example.com"})
		st.clickErr = boom
		svc := newTestService(st, nil, ClickBestEffort)

		v, err := svc.Open(context.Background(), "plain00", Visitor{})
		require.NoError(t, err)
		assert.Equal(t, StateUnlocked, v.State)
		assert.ErrorIs(t, v.ClickErr, ErrStorage)
		assert.Equal(t, int64(0), v.Link.Clicks)
	})

	t.Run("capped links are always strict", func(t *testing.T) {
		st := newMemStore()
		st.put(Link{ShortCode: "once000", OriginalURL: "https://example.com", MaxClicks: ptr(int64(1))})
		st.clickErr = boom
		svc := newTestService(st, nil, ClickBestEffort)

		_, err := svc.Open(context.Background(), "once000", Visitor{})
		assert.ErrorIs(t, err, ErrStorage)
	})

	t.Run("strict fails", func(t *testing.T) {
		st := newMemStore()
		st.put(Link{ShortCode: "plain00", OriginalURL: "https://example.com"})
		st.clickErr = boom
		svc := newTestService(st, nil, ClickStrict)

		_, err := svc.Open(context.Background(), "plain00", Visitor{})
		assert.ErrorIs(t, err, ErrStorage)
	})
}

func TestOpen_OneTimeLinkConcurrent(t *testing.T) {
	st := newMemStore()
	l := st.put(Link{ShortCode: "once000", OriginalURL: "https://example.com", MaxClicks: ptr(int64(1))})
	svc := newTestService(st, nil, "")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Open(context.Background(), "once000", Visitor{}); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Len(t, st.clicksFor(l.ID), 1)
}

func TestVerify(t *testing.T) {
	st := newMemStore()
	st.put(Link{ShortCode: "legacy0", OriginalURL: "https://example.com/legacy", PasswordHash: secret.LegacyDigest("secret")})
	st.put(Link{ShortCode: "open000", OriginalURL: "https://example.com"})
	svc := newTestService(st, constGen("argon00"), "")
	ctx := context.Background()

	rec, err := svc.Verify(ctx, "legacy0", "secret")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/legacy", rec.OriginalURL)

	_, err = svc.Verify(ctx, "legacy0", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Verify(ctx, "open000", "anything")
	assert.ErrorIs(t, err, ErrNoPassword)

	_, err = svc.Verify(ctx, "missing", "secret")
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := svc.Shorten(ctx, CreateRequest{URL: "https://example.com/new", Password: "s3cret"})
	require.NoError(t, err)
	_, err = svc.Verify(ctx, created.ShortCode, "s3cret")
	assert.NoError(t, err)

	// Verification alone never counts as a click.
	assert.Empty(t, st.clicksFor(created.ID))
}

func TestReportClick(t *testing.T) {
	st := newMemStore()
	pw := st.put(Link{ShortCode: "locked0", OriginalURL: "https://example.com", PasswordHash: secret.LegacyDigest("secret"), MaxClicks: ptr(int64(1))})
	pv := st.put(Link{ShortCode: "preview", OriginalURL: "https://example.com/p", ShowPreview: true})
	svc := newTestService(st, nil, "")
	ctx := context.Background()

	_, err := svc.ReportClick(ctx, "locked0", "", Visitor{})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.ReportClick(ctx, "locked0", "wrong", Visitor{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	rec, err := svc.ReportClick(ctx, "locked0", "secret", Visitor{UserAgent: "UA"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Clicks)

	// One-time link is now consumed.
	_, err = svc.ReportClick(ctx, "locked0", "secret", Visitor{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, st.clicksFor(pw.ID), 1)

	rec, err = svc.ReportClick(ctx, "preview", "", Visitor{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/p", rec.OriginalURL)
	assert.Len(t, st.clicksFor(pv.ID), 1)
}

func TestMetadataHidesDeadLinks(t *testing.T) {
	st := newMemStore()
	past := fixedNow.Add(-time.Minute)
	st.put(Link{ShortCode: "expired", OriginalURL: "https://example.com", ExpiresAt: &past})
	st.put(Link{ShortCode: "alive00", OriginalURL: "https://example.com"})
	svc := newTestService(st, nil, "")

	_, err := svc.Metadata(context.Background(), "expired")
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err := svc.Metadata(context.Background(), "alive00")
	require.NoError(t, err)
	assert.Equal(t, "alive00", rec.ShortCode)
}

func TestLinkStats(t *testing.T) {
	st := newMemStore()
	l := st.put(Link{ShortCode: "stats00", OriginalURL: "https://example.com"})
	svc := newTestService(st, nil, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Open(ctx, "stats00", Visitor{Referrer: "https://www.reddit.com/r/go", UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120"})
		require.NoError(t, err)
	}
	// An old click outside the window is not reported.
	require.NoError(t, st.RecordClick(ctx, Click{LinkID: l.ID, Timestamp: fixedNow.AddDate(0, 0, -30)}, fixedNow))

	rec, rep, err := svc.LinkStats(ctx, "stats00")
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.Clicks)
	assert.Equal(t, 3, rep.Devices.Desktop)
	require.Len(t, rep.ClickTrend, 7)
	assert.Equal(t, 3, rep.ClickTrend[6].Clicks)
	require.Len(t, rep.TopReferrers, 1)
	assert.Equal(t, "reddit.com", rep.TopReferrers[0].Source)
}

func TestPersonalStats(t *testing.T) {
	st := newMemStore()
	for i := 0; i < 3; i++ {
		st.put(Link{ShortCode: fmt.Sprintf("link%03d", i), OriginalURL: "https://example.com", CreatedAt: fixedNow})
	}
	svc := newTestService(st, nil, "")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Open(ctx, "link001", Visitor{Country: "JP", UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile Safari"})
		require.NoError(t, err)
	}
	_, err := svc.Open(ctx, "link002", Visitor{})
	require.NoError(t, err)

	rep, err := svc.PersonalStats(ctx, []string{"link001", "link002", "link001", "nope000", " link000 "})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.TotalLinks)
	assert.Equal(t, int64(5), rep.TotalClicks)
	require.NotEmpty(t, rep.TopLinks)
	assert.Equal(t, "link001", rep.TopLinks[0].ShortCode)
	assert.Equal(t, "Japan", rep.Countries[0].Country)
	assert.Equal(t, 4, rep.Devices.Mobile)
	assert.Equal(t, 5, rep.ClickTrend[6].Clicks)
}

func TestPersonalStats_Input(t *testing.T) {
	svc := newTestService(newMemStore(), nil, "")
	ctx := context.Background()

	_, err := svc.PersonalStats(ctx, nil)
	assert.True(t, IsInvalidInput(err))

	many := make([]string, MaxStatsCodes+1)
	for i := range many {
		many[i] = fmt.Sprintf("code%04d", i)
	}
	_, err = svc.PersonalStats(ctx, many)
	assert.True(t, IsInvalidInput(err))

	rep, err := svc.PersonalStats(ctx, []string{"unknown"})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.TotalLinks)
	assert.Len(t, rep.ClickTrend, 7)
	assert.Len(t, rep.ClicksByHour, 24)
	assert.NotNil(t, rep.TopLinks)
}

func TestCleanupExpired(t *testing.T) {
	st := newMemStore()
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)
	st.put(Link{ShortCode: "old0000", ExpiresAt: &past})
	st.put(Link{ShortCode: "new0000", ExpiresAt: &future})
	st.put(Link{ShortCode: "forever"})
	svc := newTestService(st, nil, "")

	n, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = st.FindLinkByCode(context.Background(), "old0000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorageErrorMatchesKind(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := fmt.Errorf("wrapped: %w", &StorageError{Op: "find link", Err: cause})
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "find link")
}
