package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "access.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedAccount(t *testing.T, s *Store, email string) *Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), &Account{
		Email:       email,
		Role:        RoleViewer,
		TrustPolicy: TrustStandard,
		IsApproved:  true,
	})
	require.NoError(t, err)
	return a
}

func TestAccountEmailCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAccount(t, s, "Alice@Example.COM")

	got, err := s.AccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	_, err = s.CreateAccount(ctx, &Account{Email: "ALICE@example.com"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestBumpTokenVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "bob@example.com")

	v, err := s.BumpTokenVersion(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.BumpTokenVersion(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, err = s.BumpTokenVersion(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChallengeUsedIsOneWay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "carol@example.com")

	c := &Challenge{
		ID:        "chal-1",
		AccountID: a.ID,
		CodeHash:  "deadbeef",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	require.NoError(t, s.CreateChallenge(ctx, c))

	first := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.MarkChallengeUsed(ctx, c.ID, first))

	err := s.MarkChallengeUsed(ctx, c.ID, first.Add(time.Hour))
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.ChallengeByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UsedAt)
	assert.Equal(t, first.Unix(), got.UsedAt.Unix())
}

func TestChallengeAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "dave@example.com")

	c := &Challenge{ID: "chal-2", AccountID: a.ID, CodeHash: "h", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, s.CreateChallenge(ctx, c))

	for want := 1; want <= 3; want++ {
		n, err := s.IncrementChallengeAttempts(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestRevokeDevicesExcept(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "erin@example.com")

	for _, id := range []string{"dev-1", "dev-2", "dev-3"} {
		require.NoError(t, s.CreateDevice(ctx, &TrustedDevice{
			ID: id, AccountID: a.ID, TokenHash: "hash-" + id, Policy: TrustStandard,
		}))
	}

	now := time.Now().UTC()
	n, err := s.RevokeDevicesExcept(ctx, a.ID, "dev-2", now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	kept, err := s.DeviceByID(ctx, "dev-2")
	require.NoError(t, err)
	assert.True(t, kept.Active(now))

	// Repeating is a no-op.
	n, err = s.RevokeDevicesExcept(ctx, a.ID, "dev-2", now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRevokeDeviceIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "frank@example.com")

	d := &TrustedDevice{ID: "dev-x", AccountID: a.ID, TokenHash: "hx", Policy: TrustExtended}
	require.NoError(t, s.CreateDevice(ctx, d))

	first := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.RevokeDevice(ctx, d.ID, first))
	require.NoError(t, s.RevokeDevice(ctx, d.ID, first.Add(time.Hour)))

	got, err := s.DeviceByID(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	assert.Equal(t, first.Unix(), got.RevokedAt.Unix())

	assert.ErrorIs(t, s.RevokeDevice(ctx, "missing", first), ErrNotFound)
}

func TestMostRecentActiveDeviceSkipsExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "gina@example.com")

	past := time.Now().Add(-time.Hour).UTC()
	require.NoError(t, s.CreateDevice(ctx, &TrustedDevice{
		ID: "old", AccountID: a.ID, TokenHash: "h1", Policy: TrustStandard, ExpiresAt: &past,
	}))

	_, err := s.MostRecentActiveDevice(ctx, a.ID, time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CreateDevice(ctx, &TrustedDevice{
		ID: "perm", AccountID: a.ID, TokenHash: "h2", Policy: TrustPermanent,
	}))
	got, err := s.MostRecentActiveDevice(ctx, a.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "perm", got.ID)
}

func TestEventStateImplicitRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "hank@example.com")

	e := &Event{Type: "auth.request_access", Channel: ChannelAction, Severity: SeverityInfo, Title: "Access requested"}
	_, err := s.InsertEvent(ctx, e)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, s.SetEventHandled(ctx, e.ID, a.ID, true, now))

	st, err := s.EventStateFor(ctx, e.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, st.IsHandled)
	assert.True(t, st.IsRead, "handling implies read")

	require.NoError(t, s.MarkEventUnread(ctx, e.ID, a.ID, now))
	st, err = s.EventStateFor(ctx, e.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, st.IsRead)
	assert.True(t, st.IsHandled, "unread undo keeps handled")
}

func TestUnreadEventCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "iris@example.com")

	e1 := &Event{Type: "t", Channel: ChannelNotification, Severity: SeverityInfo, Title: "one"}
	e2 := &Event{Type: "t", Channel: ChannelNotification, Severity: SeverityInfo, Title: "two"}
	_, err := s.InsertEvent(ctx, e1)
	require.NoError(t, err)
	_, err = s.InsertEvent(ctx, e2)
	require.NoError(t, err)

	n, err := s.UnreadEventCount(ctx, a.ID, ChannelNotification)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "events without state rows count as unread")

	require.NoError(t, s.MarkEventRead(ctx, e1.ID, a.ID, time.Now().UTC()))
	n, err = s.UnreadEventCount(ctx, a.ID, ChannelNotification)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestHardDeleteAccountNullsHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	actor := seedAccount(t, s, "admin@example.com")
	victim := seedAccount(t, s, "victim@example.com")

	_, err := s.AppendAudit(ctx, &AuditRecord{
		ActorAccountID:  &actor.ID,
		TargetAccountID: &victim.ID,
		Action:          "users.block",
	})
	require.NoError(t, err)

	require.NoError(t, s.CreateChallenge(ctx, &Challenge{
		ID: "c1", AccountID: victim.ID, CodeHash: "h", ExpiresAt: time.Now().Add(time.Minute),
	}))
	require.NoError(t, s.CreateDevice(ctx, &TrustedDevice{
		ID: "d1", AccountID: victim.ID, TokenHash: "h", Policy: TrustStandard,
	}))
	require.NoError(t, s.AppendLoginAttempt(ctx, &LoginAttempt{
		AccountID: &victim.ID, Email: victim.Email, Result: LoginResultSuccess, Source: LoginSourceCode,
	}))

	err = s.WithTx(ctx, func(tx *Tx) error {
		return tx.HardDeleteAccount(ctx, victim.ID)
	})
	require.NoError(t, err)

	_, err = s.AccountByID(ctx, victim.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ChallengeByID(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.DeviceByID(ctx, "d1")
	assert.ErrorIs(t, err, ErrNotFound)

	records, err := s.ListAudit(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].TargetAccountID, "audit survives with nulled target")
	require.NotNil(t, records[0].ActorAccountID)
	assert.Equal(t, actor.ID, *records[0].ActorAccountID)

	attempts, err := s.ListLoginHistory(ctx, LoginHistoryFilter{Email: victim.Email})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Nil(t, attempts[0].AccountID)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.CreateAccount(ctx, &Account{Email: "tx@example.com"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.AccountByEmail(ctx, "tx@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAccountsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	approved := seedAccount(t, s, "a@example.com")
	pending, err := s.CreateAccount(ctx, &Account{Email: "p@example.com"})
	require.NoError(t, err)
	deleted, err := s.CreateAccount(ctx, &Account{Email: "d@example.com", IsDeleted: true})
	require.NoError(t, err)

	all, err := s.ListAccounts(ctx, AccountFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	withDeleted, err := s.ListAccounts(ctx, AccountFilter{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, withDeleted, 3)
	assert.Equal(t, deleted.ID, withDeleted[2].ID)

	pendingOnly, err := s.ListAccounts(ctx, AccountFilter{OnlyPending: true})
	require.NoError(t, err)
	require.Len(t, pendingOnly, 1)
	assert.Equal(t, pending.ID, pendingOnly[0].ID)

	_ = approved
}

func TestAuditMetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "meta@example.com")

	id, err := s.AppendAudit(ctx, &AuditRecord{
		ActorAccountID: &a.ID,
		Action:         "users.set_role",
		Metadata:       map[string]any{"role": "editor", "count": float64(3)},
		IP:             "10.0.0.1",
	})
	require.NoError(t, err)

	rec, err := s.AuditByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "editor", rec.Metadata["role"])
	assert.Equal(t, float64(3), rec.Metadata["count"])
	assert.Equal(t, "10.0.0.1", rec.IP)
}
