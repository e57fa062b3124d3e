package goAccess

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vealkov/goAccess/store"
)

const (
	testPassword  = "correct-horse-battery"
	rootTestEmail = "root@corp.test"
)

type codeBox struct {
	mu    sync.Mutex
	codes map[string]string
	fail  bool
}

func newCodeBox() *codeBox {
	return &codeBox{codes: map[string]string{}}
}

func (b *codeBox) SendCode(_ context.Context, email, code string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codes[email] = code
	return !b.fail
}

func (b *codeBox) code(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[store.NormalizeEmail(email)]
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Secret.HashKey = "test-hash-key"
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Leeway = 0
	// Argon2 tuned down so the suite stays fast.
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *store.Store, *codeBox) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st, err := store.Open(filepath.Join(t.TempDir(), "engine_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	box := newCodeBox()
	engine, err := New().
		WithConfig(cfg).
		WithStore(st).
		WithRedis(rdb).
		WithCodeSender(box).
		WithRootAdmins([]string{rootTestEmail}).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, st, box
}

// seedApproved creates an approved account ready to log in.
func seedApproved(t *testing.T, engine *Engine, st *store.Store, email string) *Account {
	t.Helper()
	ctx := context.Background()

	result, err := engine.RequestAccess(ctx, email, testPassword)
	if err != nil {
		t.Fatalf("request access: %v", err)
	}
	account, err := st.AccountByID(ctx, result.AccountID)
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	account.IsApproved = true
	if err := st.UpdateAccount(ctx, account); err != nil {
		t.Fatalf("approve account: %v", err)
	}
	account.IsApproved = true
	return account
}

// loginWithCode runs the full start+verify flow and returns the result.
func loginWithCode(t *testing.T, engine *Engine, box *codeBox, email string) *VerifyResult {
	t.Helper()
	ctx := context.Background()

	start, err := engine.StartLogin(ctx, email, testPassword, "")
	if err != nil {
		t.Fatalf("start login: %v", err)
	}
	if start.Status != LoginCodeSent {
		t.Fatalf("expected code_sent, got %s", start.Status)
	}

	result, err := engine.VerifyCode(ctx, start.ChallengeID, box.code(email))
	if err != nil {
		t.Fatalf("verify code: %v", err)
	}
	return result
}

func TestRequestAccessLifecycle(t *testing.T) {
	engine, st, _ := newTestEngine(t, nil)
	ctx := context.Background()

	first, err := engine.RequestAccess(ctx, "Alice@Example.com", testPassword)
	if err != nil {
		t.Fatalf("request access: %v", err)
	}
	if first.Status != AccessRequested {
		t.Fatalf("expected requested, got %s", first.Status)
	}

	again, err := engine.RequestAccess(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("repeat request: %v", err)
	}
	if again.Status != AccessAlreadyRequested || again.AccountID != first.AccountID {
		t.Fatalf("expected already_requested for same account, got %s (%d)", again.Status, again.AccountID)
	}

	account, err := st.AccountByID(ctx, first.AccountID)
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	if account.IsApproved || account.Role != RoleViewer {
		t.Fatalf("new account should be an unapproved viewer, got approved=%v role=%s",
			account.IsApproved, account.Role)
	}
	account.IsApproved = true
	if err := st.UpdateAccount(ctx, account); err != nil {
		t.Fatalf("approve: %v", err)
	}

	approved, err := engine.RequestAccess(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("request after approval: %v", err)
	}
	if approved.Status != AccessApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}

	if _, err := engine.RequestAccess(ctx, "not-an-email", testPassword); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for malformed email, got %v", err)
	}
}

func TestRequestAccessEmitsActionEvent(t *testing.T) {
	engine, st, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.RequestAccess(ctx, "bob@example.com", testPassword); err != nil {
		t.Fatalf("request access: %v", err)
	}

	events, err := st.ListEvents(ctx, store.EventFilter{Channel: store.ChannelAction})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Type != "auth.request_access" {
		t.Fatalf("expected one auth.request_access action event, got %+v", events)
	}
}

func TestStartLoginRejectsBadFirstFactor(t *testing.T) {
	engine, st, _ := newTestEngine(t, nil)
	ctx := context.Background()
	seedApproved(t, engine, st, "carol@example.com")

	if _, err := engine.StartLogin(ctx, "nobody@example.com", testPassword, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected invalid credentials, got %v", err)
	}
	if _, err := engine.StartLogin(ctx, "carol@example.com", "wrong-password", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected invalid credentials, got %v", err)
	}
}

func TestVerifyCodeSingleUse(t *testing.T) {
	engine, st, box := newTestEngine(t, nil)
	ctx := context.Background()
	seedApproved(t, engine, st, "dave@example.com")

	start, err := engine.StartLogin(ctx, "dave@example.com", testPassword, "")
	if err != nil {
		t.Fatalf("start login: %v", err)
	}
	code := box.code("dave@example.com")

	if _, err := engine.VerifyCode(ctx, start.ChallengeID, code); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, err := engine.VerifyCode(ctx, start.ChallengeID, code); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("second verify of same challenge: expected expired, got %v", err)
	}
}

func TestVerifyCodeAttemptCap(t *testing.T) {
	engine, st, box := newTestEngine(t, nil)
	ctx := context.Background()
	seedApproved(t, engine, st, "erin@example.com")

	start, err := engine.StartLogin(ctx, "erin@example.com", testPassword, "")
	if err != nil {
		t.Fatalf("start login: %v", err)
	}

	wrong := "000000"
	if box.code("erin@example.com") == wrong {
		wrong = "000001"
	}

	// Every mismatch reads as an invalid code, including the one that
	// exhausts the cap.
	for i := 0; i < 5; i++ {
		if _, err := engine.VerifyCode(ctx, start.ChallengeID, wrong); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected invalid code, got %v", i+1, err)
		}
	}
	// The next attempt hits the exhausted challenge.
	if _, err := engine.VerifyCode(ctx, start.ChallengeID, wrong); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("sixth attempt: expected too many attempts, got %v", err)
	}
	// Even the correct code is dead now.
	if _, err := engine.VerifyCode(ctx, start.ChallengeID, box.code("erin@example.com")); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("correct code after cap: expected too many attempts, got %v", err)
	}
}

func TestVerifyCodeUnknownChallenge(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	if _, err := engine.VerifyCode(context.Background(), "no-such-id", "123456"); !errors.Is(err, ErrInvalidChallenge) {
		t.Fatalf("expected invalid challenge, got %v", err)
	}
}

func TestVerifyIneligibleAccountConsumesCode(t *testing.T) {
	engine, _, box := newTestEngine(t, nil)
	ctx := context.Background()

	// Request access only; never approve.
	if _, err := engine.RequestAccess(ctx, "frank@example.com", testPassword); err != nil {
		t.Fatalf("request access: %v", err)
	}

	start, err := engine.StartLogin(ctx, "frank@example.com", testPassword, "")
	if err != nil {
		t.Fatalf("start login: %v", err)
	}

	code := box.code("frank@example.com")
	if _, err := engine.VerifyCode(ctx, start.ChallengeID, code); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected not allowed, got %v", err)
	}
	// The code was burned by the attempt.
	if _, err := engine.VerifyCode(ctx, start.ChallengeID, code); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected expired after consumption, got %v", err)
	}
}

func TestTrustedDeviceShortCircuit(t *testing.T) {
	engine, st, box := newTestEngine(t, nil)
	ctx := context.Background()
	seedApproved(t, engine, st, "grace@example.com")

	result := loginWithCode(t, engine, box, "grace@example.com")
	if result.DeviceToken == "" || result.TrustPolicy != TrustStandard {
		t.Fatalf("expected a standard-policy device token, got %+v", result)
	}
	if result.DeviceExpiresAt == nil {
		t.Fatal("standard policy device should expire")
	}
	days := time.Until(*result.DeviceExpiresAt).Hours() / 24
	if days < 29 || days > 31 {
		t.Fatalf("standard device should expire in ~30 days, got %.1f", days)
	}

	start, err := engine.StartLogin(ctx, "grace@example.com", testPassword, result.DeviceToken)
	if err != nil {
		t.Fatalf("trusted login: %v", err)
	}
	if start.Status != LoginTrusted || start.SessionToken == "" {
		t.Fatalf("expected trusted short-circuit, got %+v", start)
	}

	identity, err := engine.ValidateToken(ctx, start.SessionToken)
	if err != nil {
		t.Fatalf("validate trusted session: %v", err)
	}
	if identity.Email != "grace@example.com" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestTrustedDeviceIgnoredAfterRevocation(t *testing.T) {
	engine, st, box := newTestEngine(t, nil)
	ctx := context.Background()
	account := seedApproved(t, engine, st, "heidi@example.com")

	result := loginWithCode(t, engine, box, "heidi@example.com")
	actor := &Identity{AccountID: account.ID, Email: account.Email, Role: RoleViewer}
	if err := engine.RevokeOwnDevice(ctx, actor, result.DeviceID); err != nil {
		t.Fatalf("revoke device: %v", err)
	}

	start, err := engine.StartLogin(ctx, "heidi@example.com", testPassword, result.DeviceToken)
	if err != nil {
		t.Fatalf("login with revoked device: %v", err)
	}
	if start.Status == LoginTrusted {
		t.Fatal("revoked device must fall back to the code path")
	}
}

func TestStrictPolicySkipsDeviceIssuance(t *testing.T) {
	engine, st, box := newTestEngine(t, nil)
	ctx := context.Background()
	account := seedApproved(t, engine, st, "ivan@example.com")

	account.TrustPolicy = TrustStrict
	if err := st.UpdateAccount(ctx, account); err != nil {
		t.Fatalf("set strict: %v", err)
	}

	result := loginWithCode(t, engine, box, "ivan@example.com")
	if result.DeviceToken != "" || result.DeviceID != "" {
		t.Fatalf("strict policy must not issue a device, got %+v", result)
	}
}

func TestPermanentPolicyDowngrade(t *testing.T) {
	engine, st, box := newTestEngine(t, func(cfg *Config) {
		cfg.Trust.DisablePermanent = true
	})
	ctx := context.Background()
	account := seedApproved(t, engine, st, "judy@example.com")

	account.TrustPolicy = TrustPermanent
	if err := st.UpdateAccount(ctx, account); err != nil {
		t.Fatalf("set permanent: %v", err)
	}

	result := loginWithCode(t, engine, box, "judy@example.com")
	if result.TrustPolicy != TrustExtended {
		t.Fatalf("expected downgrade to extended, got %s", result.TrustPolicy)
	}
	if result.DeviceExpiresAt == nil {
		t.Fatal("downgraded device must expire")
	}
}

func TestTokenVersionInvalidation(t *testing.T) {
	engine, st, box := newTestEngine(t, nil)
	ctx := context.Background()
	account := seedApproved(t, engine, st, "kim@example.com")

	result := loginWithCode(t, engine, box, "kim@example.com")
	if _, err := engine.ValidateToken(ctx, result.SessionToken); err != nil {
		t.Fatalf("validate: %v", err)
	}

	actor := &Identity{AccountID: account.ID, Email: account.Email, Role: RoleViewer}
	if err := engine.RevokeOwnSessions(ctx, actor); err != nil {
		t.Fatalf("revoke sessions: %v", err)
	}

	if _, err := engine.ValidateToken(ctx, result.SessionToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated after bump, got %v", err)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	if _, err := engine.ValidateToken(context.Background(), "not.a.jwt"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestRootAdminOverride(t *testing.T) {
	engine, st, box := newTestEngine(t, nil)
	ctx := context.Background()
	seedApproved(t, engine, st, rootTestEmail)

	result := loginWithCode(t, engine, box, rootTestEmail)
	if result.Role != RoleRootAdmin {
		t.Fatalf("allowlisted account should log in as root-admin, got %s", result.Role)
	}

	identity, err := engine.ValidateToken(ctx, result.SessionToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if identity.Role != RoleRootAdmin {
		t.Fatalf("expected root-admin identity, got %s", identity.Role)
	}
}

func TestStartLoginRateLimited(t *testing.T) {
	engine, st, _ := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.StartMaxAttempts = 2
		cfg.RateLimit.StartWindow = time.Minute
		cfg.RateLimit.PerIPMaxAttempts = 0
	})
	ctx := context.Background()
	seedApproved(t, engine, st, "leo@example.com")

	for i := 0; i < 2; i++ {
		if _, err := engine.StartLogin(ctx, "leo@example.com", testPassword, ""); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if _, err := engine.StartLogin(ctx, "leo@example.com", testPassword, ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third attempt: expected rate limited, got %v", err)
	}
}

func TestKeepOnlyDevice(t *testing.T) {
	engine, st, box := newTestEngine(t, nil)
	ctx := context.Background()
	account := seedApproved(t, engine, st, "mallory@example.com")
	actor := &Identity{AccountID: account.ID, Email: account.Email, Role: RoleViewer}

	first := loginWithCode(t, engine, box, "mallory@example.com")
	second := loginWithCode(t, engine, box, "mallory@example.com")

	revoked, err := engine.KeepOnlyDevice(ctx, actor, second.DeviceID)
	if err != nil {
		t.Fatalf("keep only: %v", err)
	}
	if revoked != 1 {
		t.Fatalf("expected 1 revocation, got %d", revoked)
	}

	// Idempotent.
	revoked, err = engine.KeepOnlyDevice(ctx, actor, second.DeviceID)
	if err != nil {
		t.Fatalf("repeat keep only: %v", err)
	}
	if revoked != 0 {
		t.Fatalf("expected 0 further revocations, got %d", revoked)
	}

	kept, err := st.DeviceByID(ctx, second.DeviceID)
	if err != nil || !kept.Active(time.Now()) {
		t.Fatalf("kept device should stay active: %v", err)
	}
	gone, err := st.DeviceByID(ctx, first.DeviceID)
	if err != nil {
		t.Fatalf("load revoked device: %v", err)
	}
	if gone.Active(time.Now()) {
		t.Fatal("other device should be revoked")
	}
}

func TestCodeDeliveryFailureEchoesInDevMode(t *testing.T) {
	engine, st, box := newTestEngine(t, func(cfg *Config) {
		cfg.Dev.EchoCodes = true
	})
	ctx := context.Background()
	seedApproved(t, engine, st, "nancy@example.com")
	box.fail = true

	start, err := engine.StartLogin(ctx, "nancy@example.com", testPassword, "")
	if err != nil {
		t.Fatalf("start login: %v", err)
	}
	if start.Status != LoginCodeIssued {
		t.Fatalf("expected code_issued on delivery failure, got %s", start.Status)
	}
	if start.DevCode == "" || start.DevCode != box.code("nancy@example.com") {
		t.Fatalf("dev mode should echo the generated code")
	}

	if _, err := engine.VerifyCode(ctx, start.ChallengeID, start.DevCode); err != nil {
		t.Fatalf("verify echoed code: %v", err)
	}
}
