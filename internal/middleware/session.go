// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/mindme/internal/session"
)

const (
	// SessionCookieName はセッショントークンを保持するCookieの名前。
	SessionCookieName = "session_id"

	// ClientCookieName はブラウザクライアントを識別するCookieの名前。
	ClientCookieName = "client_id"

	clientCookieMaxAge = 365 * 24 * 60 * 60
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	storeContextKey     = contextKey("session_store")
	clientIDContextKey  = contextKey("client_id")
	newClientContextKey = contextKey("new_client")
)

// StoreRegistry はクライアントIDに対応するStoreを返す。
// session.Registryの部分集合として定義する。
type StoreRegistry interface {
	Get(clientID, seedToken string) *session.Store
}

// ClientSessionConfig はクライアントセッションミドルウェアの設定。
type ClientSessionConfig struct {
	CookieSecure  bool
	CookieDomain  string
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// NewClientSessionMiddleware はブラウザクライアントごとのStoreを解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// client_id Cookieがなければ発行し、新しいStoreはsession_id Cookieのトークンで初期化する。
// レスポンスヘッダーの書き込み時に、Storeのトークンとsession_id Cookieを同期する。
func NewClientSessionMiddleware(registry StoreRegistry, config ClientSessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := readClientID(r)
			isNew := clientID == ""
			if isNew {
				clientID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookieName,
					Value:    clientID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   clientCookieMaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			var seed string
			if c, err := r.Cookie(SessionCookieName); err == nil {
				seed = c.Value
			}

			store := registry.Get(clientID, seed)
			store.Initialize(r.Context())

			sw := &sessionCookieWriter{
				ResponseWriter: w,
				store:          store,
				current:        seed,
				config:         config,
			}
			ctx := ContextWithStore(r.Context(), clientID, store)
			if isNew {
				ctx = context.WithValue(ctx, newClientContextKey, true)
			}
			next.ServeHTTP(sw, r.WithContext(ctx))
		})
	}
}

// readClientID はclient_id Cookieを読み取る。UUIDとして不正な値は無視する。
func readClientID(r *http.Request) string {
	c, err := r.Cookie(ClientCookieName)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

// sessionCookieWriter はヘッダーの書き込み直前にsession_id Cookieを更新する。
type sessionCookieWriter struct {
	http.ResponseWriter
	store   *session.Store
	current string
	config  ClientSessionConfig
	synced  bool
}

func (sw *sessionCookieWriter) WriteHeader(code int) {
	sw.sync()
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *sessionCookieWriter) Write(b []byte) (int, error) {
	sw.sync()
	return sw.ResponseWriter.Write(b)
}

// Unwrap はhttp.ResponseControllerから元のResponseWriterを参照するために使う。
func (sw *sessionCookieWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// sync は初期化済みのStoreのトークンがCookieと異なる場合にCookieを書き換える。
func (sw *sessionCookieWriter) sync() {
	if sw.synced {
		return
	}
	sw.synced = true

	snap := sw.store.Snapshot()
	if snap.State != session.StateReady || snap.Token == sw.current {
		return
	}

	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    snap.Token,
		Path:     "/",
		Domain:   sw.config.CookieDomain,
		MaxAge:   sw.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   sw.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if snap.Token == "" {
		cookie.MaxAge = -1
	} else {
		cookie.Expires = time.Now().Add(time.Duration(sw.config.SessionMaxAge) * time.Second)
	}
	http.SetCookie(sw.ResponseWriter, cookie)
}

// ContextWithStore はコンテキストにクライアントIDとStoreを注入する。
func ContextWithStore(ctx context.Context, clientID string, store *session.Store) context.Context {
	ctx = context.WithValue(ctx, clientIDContextKey, clientID)
	return context.WithValue(ctx, storeContextKey, store)
}

// StoreFromContext はリクエストのStoreを返す。ミドルウェアを通過していなければnil。
func StoreFromContext(ctx context.Context) *session.Store {
	store, _ := ctx.Value(storeContextKey).(*session.Store)
	return store
}

// ClientIDFromContext はリクエストのクライアントIDを返す。
func ClientIDFromContext(ctx context.Context) string {
	clientID, _ := ctx.Value(clientIDContextKey).(string)
	return clientID
}

// IsNewClient はこのリクエストでclient_id Cookieを発行したかどうかを返す。
func IsNewClient(ctx context.Context) bool {
	isNew, _ := ctx.Value(newClientContextKey).(bool)
	return isNew
}

// UserIDFromContext はリクエストのStoreからログイン中のユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	store := StoreFromContext(ctx)
	if store == nil {
		return "", fmt.Errorf("session store not found in context")
	}
	snap := store.Snapshot()
	if !snap.LoggedIn() {
		return "", fmt.Errorf("user ID not found in context")
	}
	return snap.Identity.ID, nil
}
