package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/mindme/internal/auth"
	"github.com/hitoshi/mindme/internal/guard"
	"github.com/hitoshi/mindme/internal/middleware"
	"github.com/hitoshi/mindme/internal/model"
	"github.com/hitoshi/mindme/internal/session"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600

	// settleTimeout は認証操作の結果がストアに反映されるまで待つ上限。
	settleTimeout = 5 * time.Second
)

// OAuthCallbackService はOAuthコールバックの処理に必要なサービスインターフェース。
type OAuthCallbackService interface {
	OAuthEnabled() bool
	HandleOAuthCallback(ctx context.Context, code string) (*model.Session, *model.User, error)
}

// SignInPublisher は外部で成立したログインをクライアントのストアに通知する。
type SignInPublisher interface {
	PublishSignedIn(clientID string, sess *model.Session, user *model.User)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieSecure      bool
	GoogleRedirectURL string
}

// AuthHandler はログイン・アカウント作成・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	oauth     OAuthCallbackService
	publisher SignInPublisher
	renderer  *Renderer
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(oauth OAuthCallbackService, publisher SignInPublisher, renderer *Renderer, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		oauth:     oauth,
		publisher: publisher,
		renderer:  renderer,
		config:    config,
	}
}

// authView は認証ページの表示内容。
type authView struct {
	SignUp        bool
	Email         string
	EmailError    string
	PasswordError string
	GoogleEnabled bool
}

// Page はログイン/アカウント作成ページを描画する。ログイン済みならアンケートへ移動する。
// GET /auth?mode=signup
func (h *AuthHandler) Page(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r)
	if !ok {
		return
	}
	settle(r.Context(), store)
	if store.Snapshot().LoggedIn() {
		http.Redirect(w, r, guard.RouteSurvey.Path, http.StatusSeeOther)
		return
	}

	h.render(w, r, http.StatusOK, authView{SignUp: r.URL.Query().Get("mode") == "signup"}, nil)
}

// SignIn はメールアドレスとパスワードでログインする。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r)
	if !ok {
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	view := authView{Email: email}

	if err := store.SignIn(r.Context(), email, password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.render(w, r, http.StatusUnauthorized, view, model.NewInvalidCredentialsError())
			return
		}
		slog.Error("sign in failed", slog.String("error", err.Error()))
		h.render(w, r, http.StatusInternalServerError, view, model.NewInternalError())
		return
	}

	settle(r.Context(), store)
	http.Redirect(w, r, guard.RouteSurvey.Path, http.StatusSeeOther)
}

// SignUp は入力を検証してアカウントを作成し、ログインする。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r)
	if !ok {
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	view := authView{SignUp: true, Email: email}

	err := auth.ValidateSignUp(auth.SignUpInput{Email: email, Password: password})
	if err == nil {
		err = store.SignUp(r.Context(), email, password)
	}
	if err != nil {
		var verrs auth.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			view.EmailError = verrs.ForField("email")
			view.PasswordError = verrs.ForField("password")
			h.render(w, r, http.StatusUnprocessableEntity, view, nil)
		case errors.Is(err, auth.ErrEmailTaken):
			apiErr := model.NewEmailTakenError()
			view.EmailError = apiErr.Message
			h.render(w, r, http.StatusConflict, view, nil)
		default:
			slog.Error("sign up failed", slog.String("error", err.Error()))
			h.render(w, r, http.StatusInternalServerError, view, model.NewInternalError())
		}
		return
	}

	settle(r.Context(), store)
	http.Redirect(w, r, guard.RouteSurvey.Path, http.StatusSeeOther)
}

// SignOut はログアウトして認証ページに移動する。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r)
	if !ok {
		return
	}

	store.SignOut(r.Context())
	settle(r.Context(), store)
	http.Redirect(w, r, guard.RouteAuth.Path, http.StatusSeeOther)
}

// Google はGoogleの認可画面へリダイレクトする。
// 失敗はログに記録するのみで、認証ページに戻す。
// GET /auth/google
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r)
	if !ok {
		return
	}
	if !h.oauth.OAuthEnabled() {
		slog.Warn("google sign in requested but not configured")
		http.Redirect(w, r, guard.RouteAuth.Path, http.StatusSeeOther)
		return
	}

	authURL := store.SignInWithGoogle(r.Context(), h.config.GoogleRedirectURL)
	state := stateFromAuthURL(authURL)
	if state == "" {
		http.Redirect(w, r, guard.RouteAuth.Path, http.StatusSeeOther)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, authURL, http.StatusSeeOther)
}

// Callback はGoogleからのコールバックを処理し、クライアントのストアにログインを通知する。
// GET /auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r)
	if !ok {
		return
	}

	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		http.Redirect(w, r, guard.RouteAuth.Path, http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Warn("oauth callback without code",
			slog.String("error", r.URL.Query().Get("error")),
		)
		http.Redirect(w, r, guard.RouteAuth.Path, http.StatusSeeOther)
		return
	}

	sess, user, err := h.oauth.HandleOAuthCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		http.Redirect(w, r, guard.RouteAuth.Path, http.StatusSeeOther)
		return
	}

	h.publisher.PublishSignedIn(middleware.ClientIDFromContext(r.Context()), sess, user)
	settle(r.Context(), store)
	http.Redirect(w, r, guard.RouteSurvey.Path, http.StatusSeeOther)
}

func (h *AuthHandler) render(w http.ResponseWriter, r *http.Request, status int, view authView, apiErr *model.APIError) {
	view.GoogleEnabled = h.oauth.OAuthEnabled()
	title := "Iniciar Sesión"
	if view.SignUp {
		title = "Crear Cuenta"
	}
	h.renderer.Render(w, r, status, pageAuth, pageData{
		Title:   title,
		Error:   apiErr,
		Content: view,
	})
}

// requireStore はリクエストのセッションストアを返す。見つからなければ500を書き込む。
func requireStore(w http.ResponseWriter, r *http.Request) (*session.Store, bool) {
	store := middleware.StoreFromContext(r.Context())
	if store == nil {
		slog.Error("no session store for request", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return store, true
}

// settle は直前の認証操作がストアに反映されるまで待つ。
// 待機が打ち切られた場合は次のリクエストのガードが読み込み画面を表示する。
func settle(ctx context.Context, store *session.Store) {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	if err := store.Settle(ctx); err != nil {
		slog.Warn("session store did not settle", slog.String("error", err.Error()))
	}
}

// stateFromAuthURL は認可画面URLのstateパラメーターを取り出す。
func stateFromAuthURL(authURL string) string {
	if authURL == "" {
		return ""
	}
	u, err := url.Parse(authURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("state")
}
