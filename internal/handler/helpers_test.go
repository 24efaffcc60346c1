package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"golang.org/x/net/html"

	"github.com/hitoshi/mindme/internal/auth"
	"github.com/hitoshi/mindme/internal/dashboard"
	"github.com/hitoshi/mindme/internal/middleware"
	"github.com/hitoshi/mindme/internal/model"
	"github.com/hitoshi/mindme/internal/session"
	"github.com/hitoshi/mindme/internal/survey"
)

// --- 認証バックエンドのフェイク ---

type testAccount struct {
	password string
	identity session.Identity
	admin    bool
}

// fakeBackend は全クライアントで共有するアカウントとトークンの表。
type fakeBackend struct {
	mu       sync.Mutex
	accounts map[string]*testAccount // email -> account
	tokens   map[string]string       // token -> email
	issued   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		accounts: make(map[string]*testAccount),
		tokens:   make(map[string]string),
	}
}

func (b *fakeBackend) addAccount(email, password string, admin bool) session.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	identity := session.Identity{ID: "u-" + strings.Split(email, "@")[0], Email: email}
	b.accounts[email] = &testAccount{password: password, identity: identity, admin: admin}
	return identity
}

func (b *fakeBackend) issueLocked(email string) *session.AuthSession {
	b.issued++
	token := fmt.Sprintf("tok-%d", b.issued)
	b.tokens[token] = email
	return &session.AuthSession{Token: token, Identity: b.accounts[email].identity}
}

func (b *fakeBackend) LookupIsAdmin(_ context.Context, userID string) (bool, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.accounts {
		if a.identity.ID == userID {
			return a.admin, true, nil
		}
	}
	return false, false, nil
}

// fakeProvider はクライアント1つ分のAuthProvider。イベントは auth.Broker 経由で届く。
type fakeProvider struct {
	backend  *fakeBackend
	broker   *auth.Broker
	clientID string

	mu    sync.Mutex
	token string
}

func (p *fakeProvider) GetSession(context.Context) (*session.AuthSession, error) {
	p.mu.Lock()
	token := p.token
	p.mu.Unlock()

	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()
	email, ok := p.backend.tokens[token]
	if !ok {
		return nil, nil
	}
	return &session.AuthSession{Token: token, Identity: p.backend.accounts[email].identity}, nil
}

func (p *fakeProvider) SignInWithPassword(_ context.Context, email, password string) (*session.AuthSession, error) {
	p.backend.mu.Lock()
	a, ok := p.backend.accounts[email]
	if !ok || a.password != password {
		p.backend.mu.Unlock()
		return nil, auth.ErrInvalidCredentials
	}
	sess := p.backend.issueLocked(email)
	p.backend.mu.Unlock()

	p.broker.Publish(p.clientID, session.Event{Kind: session.EventSignedIn, Session: sess})
	return sess, nil
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string) (*session.AuthSession, error) {
	p.backend.mu.Lock()
	if _, exists := p.backend.accounts[email]; exists {
		p.backend.mu.Unlock()
		return nil, auth.ErrEmailTaken
	}
	p.backend.mu.Unlock()

	p.backend.addAccount(email, password, false)
	return p.SignInWithPassword(ctx, email, password)
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	token := p.token
	p.token = ""
	p.mu.Unlock()

	p.backend.mu.Lock()
	delete(p.backend.tokens, token)
	p.backend.mu.Unlock()
	return nil
}

func (p *fakeProvider) SignInWithOAuth(_ context.Context, _, redirectURL string) (string, error) {
	return "https://accounts.example.com/o/oauth2/auth?state=st-" + p.clientID +
		"&redirect_uri=" + url.QueryEscape(redirectURL), nil
}

func (p *fakeProvider) Subscribe(sink func(session.Event)) func() {
	return p.broker.Subscribe(p.clientID, func(ev session.Event) {
		p.mu.Lock()
		switch {
		case ev.Kind == session.EventSignedOut:
			p.token = ""
		case ev.Session != nil:
			p.token = ev.Session.Token
		}
		p.mu.Unlock()
		sink(ev)
	})
}

// fakeRegistry はクライアントIDごとにStoreを生成して保持する。
type fakeRegistry struct {
	backend *fakeBackend
	broker  *auth.Broker

	mu     sync.Mutex
	stores map[string]*session.Store
}

func (r *fakeRegistry) Get(clientID, seedToken string) *session.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[clientID]; ok {
		return s
	}
	provider := &fakeProvider{backend: r.backend, broker: r.broker, clientID: clientID, token: seedToken}
	s := session.New(provider, r.backend, discardLogger())
	r.stores[clientID] = s
	return s
}

func (r *fakeRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stores {
		s.Close()
	}
}

// --- サービスのフェイク ---

type fakeOAuth struct {
	enabled bool
	session *model.Session
	user    *model.User
	err     error
}

func (f *fakeOAuth) OAuthEnabled() bool { return f.enabled }

func (f *fakeOAuth) HandleOAuthCallback(context.Context, string) (*model.Session, *model.User, error) {
	return f.session, f.user, f.err
}

type recordingSaver struct {
	mu   sync.Mutex
	subs []survey.Submission
	err  error
}

func (s *recordingSaver) Save(_ context.Context, sub survey.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (s *recordingSaver) saved() []survey.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]survey.Submission(nil), s.subs...)
}

type fakeDashboard struct {
	overview *dashboard.Overview
	err      error
}

func (f *fakeDashboard) Overview(context.Context) (*dashboard.Overview, error) {
	return f.overview, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- テスト用アプリケーション ---

type testApp struct {
	t         *testing.T
	handler   http.Handler
	backend   *fakeBackend
	oauth     *fakeOAuth
	saver     *recordingSaver
	dashboard *fakeDashboard
	cookies   map[string]*http.Cookie
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	backend := newFakeBackend()
	registry := &fakeRegistry{backend: backend, broker: auth.NewBroker(), stores: make(map[string]*session.Store)}
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(10000, 10000))
	t.Cleanup(func() {
		rl.Stop()
		registry.closeAll()
	})

	app := &testApp{
		t:         t,
		backend:   backend,
		oauth:     &fakeOAuth{},
		saver:     &recordingSaver{},
		dashboard: &fakeDashboard{overview: &dashboard.Overview{}},
		cookies:   make(map[string]*http.Cookie),
	}
	app.handler = NewRouter(&RouterDeps{
		Logger:              discardLogger(),
		Registry:            registry,
		ClientSessionConfig: middleware.ClientSessionConfig{SessionMaxAge: 3600},
		RateLimiter:         rl,
		OAuthService:        app.oauth,
		SignInPublisher:     registry.broker,
		AuthConfig:          AuthHandlerConfig{GoogleRedirectURL: "http://localhost:8080/auth/callback"},
		Drafts:              survey.NewDrafts(survey.DefaultDraftCapacity, survey.DefaultDraftTTL),
		SurveySaver:         app.saver,
		DashboardService:    app.dashboard,
		Renderer:            MustNewRenderer(),
	})
	return app
}

// do はCookieを引き継いでリクエストを送る。POSTにはCSRFトークンを付与する。
func (a *testApp) do(method, target string, form url.Values) *http.Response {
	a.t.Helper()

	if method == http.MethodPost {
		if _, ok := a.cookies["csrf_token"]; !ok {
			a.do(http.MethodGet, "/", nil)
		}
		if form == nil {
			form = url.Values{}
		}
		if form.Get(middleware.CSRFFieldName) == "" {
			form.Set(middleware.CSRFFieldName, a.cookies["csrf_token"].Value)
		}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range a.cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	res := w.Result()

	for _, c := range res.Cookies() {
		if c.MaxAge < 0 {
			delete(a.cookies, c.Name)
			continue
		}
		a.cookies[c.Name] = c
	}
	return res
}

// signIn はアカウントを作成してログインする。
func (a *testApp) signIn(email string, admin bool) {
	a.t.Helper()
	a.backend.addAccount(email, "secreto1", admin)
	res := a.do(http.MethodPost, "/auth/signin", url.Values{"email": {email}, "password": {"secreto1"}})
	if res.StatusCode != http.StatusSeeOther {
		a.t.Fatalf("ログインに失敗した: status = %d", res.StatusCode)
	}
}

// --- HTMLの検査 ---

func parseHTML(t *testing.T, res *http.Response) *html.Node {
	t.Helper()
	defer res.Body.Close()
	doc, err := html.Parse(res.Body)
	if err != nil {
		t.Fatalf("HTMLの解析に失敗した: %v", err)
	}
	return doc
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// findAll は条件に一致する要素を文書順に返す。
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func byID(doc *html.Node, id string) *html.Node {
	nodes := findAll(doc, func(n *html.Node) bool { return attr(n, "id") == id })
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// questionIDs は描画された質問の id を文書順に返す。
func questionIDs(doc *html.Node) []string {
	var ids []string
	for _, n := range findAll(doc, func(n *html.Node) bool {
		return strings.HasPrefix(attr(n, "id"), "q-")
	}) {
		ids = append(ids, strings.TrimPrefix(attr(n, "id"), "q-"))
	}
	return ids
}

func containsText(s, sub string) bool {
	return strings.Contains(s, sub)
}
