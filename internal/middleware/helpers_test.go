package middleware

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/mindme/internal/session"
)

// fakeProvider はトークンとユーザーの対応表で動く AuthProvider。
type fakeProvider struct {
	mu     sync.Mutex
	token  string
	users  map[string]session.Identity
	sink   func(session.Event)
	logins int
}

func (p *fakeProvider) GetSession(context.Context) (*session.AuthSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	identity, ok := p.users[p.token]
	if !ok {
		return nil, nil
	}
	return &session.AuthSession{Token: p.token, Identity: identity, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (p *fakeProvider) SignInWithPassword(_ context.Context, email, _ string) (*session.AuthSession, error) {
	p.mu.Lock()
	p.logins++
	sess := &session.AuthSession{Token: "tok-new", Identity: session.Identity{ID: "u-new", Email: email}}
	p.token = sess.Token
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		sink(session.Event{Kind: session.EventSignedIn, Session: sess})
	}
	return sess, nil
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string) (*session.AuthSession, error) {
	return p.SignInWithPassword(ctx, email, password)
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) SignInWithOAuth(context.Context, string, string) (string, error) {
	return "", nil
}

func (p *fakeProvider) Subscribe(sink func(session.Event)) func() {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.sink = nil
		p.mu.Unlock()
	}
}

type noRoles struct{}

func (noRoles) LookupIsAdmin(context.Context, string) (bool, bool, error) {
	return false, true, nil
}

// fakeRegistry は生成したStoreとシードトークンを記録する StoreRegistry。
type fakeRegistry struct {
	t      *testing.T
	users  map[string]session.Identity
	mu     sync.Mutex
	stores map[string]*session.Store
	seeds  map[string]string
}

func newFakeRegistry(t *testing.T, users map[string]session.Identity) *fakeRegistry {
	t.Helper()
	r := &fakeRegistry{
		t:      t,
		users:  users,
		stores: make(map[string]*session.Store),
		seeds:  make(map[string]string),
	}
	t.Cleanup(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, s := range r.stores {
			s.Close()
		}
	})
	return r
}

func (r *fakeRegistry) Get(clientID, seedToken string) *session.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[clientID]; ok {
		return s
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := session.New(&fakeProvider{token: seedToken, users: r.users}, noRoles{}, logger)
	r.stores[clientID] = s
	r.seeds[clientID] = seedToken
	return s
}

func (r *fakeRegistry) seed(clientID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seed, ok := r.seeds[clientID]
	return seed, ok
}
