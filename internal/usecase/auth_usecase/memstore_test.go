package auth

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KCSSB/DontAsk/internal/domain/model"
	"github.com/KCSSB/DontAsk/internal/repository"

	"github.com/labstack/gommon/log"
)

// =====================
// in-memory TransactionManager
// WithinTxは全体ロックで直列化し、fnがエラーならロールバックする
// =====================

type memState struct {
	users  map[string]model.User
	tokens map[string]model.RefreshToken
	audits []model.AuditLog
}

func (s *memState) clone() *memState {
	c := &memState{
		users:  make(map[string]model.User, len(s.users)),
		tokens: make(map[string]model.RefreshToken, len(s.tokens)),
		audits: append([]model.AuditLog(nil), s.audits...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

type memDB struct {
	mu     sync.Mutex
	state  *memState
	failOn map[string]error

	sweeps atomic.Int64
}

func newMemDB() *memDB {
	return &memDB{
		state: &memState{
			users:  map[string]model.User{},
			tokens: map[string]model.RefreshToken{},
		},
		failOn: map[string]error{},
	}
}

func (db *memDB) WithinTx(ctx context.Context, fn func(r repository.TxRepos) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := db.state.clone()
	if err := fn(&memTxRepos{db: db, state: work}); err != nil {
		return err
	}
	db.state = work
	return nil
}

// 次の1回だけ op を失敗させる
func (db *memDB) failNext(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failOn[op] = err
}

// WithinTxの中から呼ばれる（ロック済み）
func (db *memDB) injected(op string) error {
	if err, ok := db.failOn[op]; ok {
		delete(db.failOn, op)
		return err
	}
	return nil
}

func (db *memDB) addUser(u model.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.users[u.ID] = u
}

func (db *memDB) putToken(t model.RefreshToken) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t.User = nil
	db.state.tokens[t.ID] = t
}

func (db *memDB) token(id string) (model.RefreshToken, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.state.tokens[id]
	return t, ok
}

func (db *memDB) tokens() []model.RefreshToken {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]model.RefreshToken, 0, len(db.state.tokens))
	for _, t := range db.state.tokens {
		out = append(out, t)
	}
	return out
}

func (db *memDB) audits() []model.AuditLog {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]model.AuditLog(nil), db.state.audits...)
}

func (db *memDB) activeTokens(userID string, now time.Time) []model.RefreshToken {
	var out []model.RefreshToken
	for _, t := range db.tokens() {
		if t.UserID == userID && t.IsActive(now) {
			out = append(out, t)
		}
	}
	return out
}

type memTxRepos struct {
	db    *memDB
	state *memState
}

func (r *memTxRepos) RefreshTokens() repository.RefreshTokenRepository {
	return &memTokenRepo{db: r.db, state: r.state}
}
func (r *memTxRepos) Users() repository.UserRepository { return &memUserRepo{state: r.state} }
func (r *memTxRepos) AuditLogs() repository.AuditLogRepository {
	return &memAuditRepo{db: r.db, state: r.state}
}

type memTokenRepo struct {
	db    *memDB
	state *memState
}

var errDuplicateHash = errors.New("duplicate key value violates unique constraint")

func (r *memTokenRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	if err := r.db.injected("tokens.create"); err != nil {
		return err
	}
	for _, t := range r.state.tokens {
		if t.TokenHash == token.TokenHash {
			return errDuplicateHash
		}
	}
	row := *token
	row.User = nil
	r.state.tokens[row.ID] = row
	return nil
}

func (r *memTokenRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	if err := r.db.injected("tokens.find"); err != nil {
		return nil, err
	}
	for _, t := range r.state.tokens {
		if t.TokenHash == tokenHash {
			found := t
			if u, ok := r.state.users[t.UserID]; ok {
				found.User = &u
			}
			return &found, nil
		}
	}
	return nil, repository.ErrRefreshTokenNotFound
}

func (r *memTokenRepo) Revoke(ctx context.Context, tokenID string) (bool, error) {
	if err := r.db.injected("tokens.revoke"); err != nil {
		return false, err
	}
	t, ok := r.state.tokens[tokenID]
	if !ok || t.IsRevoked {
		return false, nil
	}
	t.IsRevoked = true
	r.state.tokens[tokenID] = t
	return true, nil
}

func (r *memTokenRepo) RevokeAllByUserID(ctx context.Context, userID string) (int64, error) {
	var n int64
	for id, t := range r.state.tokens {
		if t.UserID == userID && !t.IsRevoked {
			t.IsRevoked = true
			r.state.tokens[id] = t
			n++
		}
	}
	return n, nil
}

func (r *memTokenRepo) DeleteByID(ctx context.Context, tokenID string) error {
	if err := r.db.injected("tokens.delete"); err != nil {
		return err
	}
	if _, ok := r.state.tokens[tokenID]; !ok {
		return repository.ErrRefreshTokenNotFound
	}
	delete(r.state.tokens, tokenID)
	return nil
}

func (r *memTokenRepo) DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error) {
	r.db.sweeps.Add(1)
	if err := r.db.injected("tokens.sweep"); err != nil {
		return 0, err
	}
	var n int64
	for id, t := range r.state.tokens {
		if t.IsRevoked || !t.ExpiresAt.After(now) {
			delete(r.state.tokens, id)
			n++
		}
	}
	return n, nil
}

type memUserRepo struct {
	state *memState
}

func (r *memUserRepo) Create(ctx context.Context, user *model.User) error {
	r.state.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) FindByID(ctx context.Context, userID string) (*model.User, error) {
	u, ok := r.state.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

// WithinTxが全体ロックなので行ロックは不要
func (r *memUserRepo) FindByIDForUpdate(ctx context.Context, userID string) (*model.User, error) {
	return r.FindByID(ctx, userID)
}

func (r *memUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range r.state.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type memAuditRepo struct {
	db    *memDB
	state *memState
}

func (r *memAuditRepo) Create(ctx context.Context, entry model.AuditLog) error {
	if err := r.db.injected("audit.create"); err != nil {
		return err
	}
	entry.ID = int64(len(r.state.audits) + 1)
	r.state.audits = append(r.state.audits, entry)
	return nil
}

var _ repository.TransactionManager = (*memDB)(nil)

// =====================
// clock / logger
// =====================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	// JWTのexpは実時間で検証されるので実時間から始める
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// 並行書き込みに耐えるバッファ
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(out *syncBuffer) *log.Logger {
	l := log.New("test")
	l.SetOutput(out)
	l.SetLevel(log.DEBUG)
	return l
}

// =====================
// env
// =====================

const (
	testSigningSecret = "test-signing-secret-0123456789abcdef"
	testAccessTTL     = 15 * time.Minute
	testRefreshTTL    = 7 * 24 * time.Hour
)

type testEnv struct {
	db      *memDB
	clock   *fakeClock
	hasher  *SHA256TokenHasher
	issuer  *JWTIssuer
	store   *RefreshTokenStore
	service *RefreshTokenService
	reaper  *ExpiredTokenReaper
	logs    *syncBuffer
	user    model.User
}

func newTestEnv(t *testing.T, refreshTTL time.Duration) *testEnv {
	t.Helper()

	db := newMemDB()
	clock := newFakeClock()
	logs := &syncBuffer{}
	logger := newTestLogger(logs)

	hasher := NewSHA256TokenHasher([]byte("app-wide-hash-key"))
	issuer := NewJWTIssuer([]byte(testSigningSecret), testAccessTTL, clock)
	store := NewRefreshTokenStore(db, hasher, UUIDGenerator{}, clock, refreshTTL)
	service := NewRefreshTokenService(store, hasher, issuer, clock, logger)
	reaper := NewExpiredTokenReaper(store, 10*time.Millisecond, logger)

	user := model.User{
		ID:       "6f1c2a8e-1d7b-4c55-9b1e-3f2d9a7c0a11",
		UserName: "alice",
		Email:    "alice@example.com",
	}
	db.addUser(user)

	return &testEnv{
		db:      db,
		clock:   clock,
		hasher:  hasher,
		issuer:  issuer,
		store:   store,
		service: service,
		reaper:  reaper,
		logs:    logs,
		user:    user,
	}
}
