package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/mindme/internal/model"
	"github.com/hitoshi/mindme/internal/repository"
	"github.com/hitoshi/mindme/internal/session"
)

// Client はブラウザクライアント1つ分の認証プロバイダー。
// 現在のセッショントークンを保持し、操作の結果を Broker 経由で通知する。
type Client struct {
	svc      *Service
	broker   *Broker
	clientID string

	mu    sync.RWMutex
	token string
}

// NewClient はClientを生成する。seedToken はCookieに保存されていたセッショントークン。
func NewClient(svc *Service, broker *Broker, clientID, seedToken string) *Client {
	return &Client{
		svc:      svc,
		broker:   broker,
		clientID: clientID,
		token:    seedToken,
	}
}

// Token は現在のセッショントークンを返す。ログアウト状態では空文字列。
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// GetSession はトークンに対応する有効なセッションを返す。
// 期限切れや削除済みの場合はトークンを破棄してnilを返す。
// 有効期間の半分を過ぎたセッションは新しいトークンに置き換える。
// 置き換えに失敗した場合は、まだ有効な古いトークンを使い続ける。
func (c *Client) GetSession(ctx context.Context) (*session.AuthSession, error) {
	token := c.Token()
	if token == "" {
		return nil, nil
	}

	sess, user, err := c.svc.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		c.setToken("")
		return nil, nil
	}

	fresh, err := c.svc.RefreshSession(ctx, sess)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// 別のリクエストがログアウトした
		c.setToken("")
		return nil, nil
	case err != nil:
		slog.Warn("session rotation failed, keeping current token",
			slog.String("client_id", c.clientID),
			slog.String("error", err.Error()),
		)
	default:
		sess = fresh
		c.setToken(sess.ID)
	}
	return toAuthSession(sess, user), nil
}

// SignInWithPassword はパスワードでログインし、SignedIn イベントを通知する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*session.AuthSession, error) {
	sess, user, err := c.svc.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return c.signedIn(sess, user), nil
}

// SignUp はアカウントを作成してログインし、SignedIn イベントを通知する。
func (c *Client) SignUp(ctx context.Context, email, password string) (*session.AuthSession, error) {
	sess, user, err := c.svc.SignUpWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return c.signedIn(sess, user), nil
}

func (c *Client) signedIn(sess *model.Session, user *model.User) *session.AuthSession {
	authSess := toAuthSession(sess, user)
	c.setToken(authSess.Token)
	c.broker.Publish(c.clientID, session.Event{Kind: session.EventSignedIn, Session: authSess})
	return authSess
}

// SignOut はセッションを破棄し、SignedOut イベントを通知する。
// 失敗した場合もローカルのトークンは破棄する。
func (c *Client) SignOut(ctx context.Context) error {
	token := c.Token()
	c.setToken("")
	if token == "" {
		return nil
	}

	if err := c.svc.SignOut(ctx, token); err != nil {
		return err
	}
	c.broker.Publish(c.clientID, session.Event{Kind: session.EventSignedOut})
	return nil
}

// SignInWithOAuth は外部IdPの認可画面URLを返す。対応しているのは "google" のみ。
func (c *Client) SignInWithOAuth(_ context.Context, provider, redirectURL string) (string, error) {
	if provider != providerGoogle {
		return "", fmt.Errorf("unsupported oauth provider %q", provider)
	}
	state, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return c.svc.OAuthLoginURL(state, redirectURL)
}

// Subscribe はこのクライアントのイベントを sink に配信する。
// 配信前にイベントのセッションでトークンを更新する。
func (c *Client) Subscribe(sink func(session.Event)) func() {
	return c.broker.Subscribe(c.clientID, func(ev session.Event) {
		switch {
		case ev.Kind == session.EventSignedOut:
			c.setToken("")
		case ev.Session != nil:
			c.setToken(ev.Session.Token)
		}
		sink(ev)
	})
}

// toAuthSession は永続化されたセッションとユーザーをストア向けの形式に変換する。
func toAuthSession(sess *model.Session, user *model.User) *session.AuthSession {
	return &session.AuthSession{
		Token: sess.ID,
		Identity: session.Identity{
			ID:    user.ID,
			Email: user.Email,
		},
		ExpiresAt: sess.ExpiresAt,
	}
}

// PublishSignedIn は外部で成立したログインをクライアントに通知する。
func (b *Broker) PublishSignedIn(clientID string, sess *model.Session, user *model.User) {
	b.Publish(clientID, session.Event{Kind: session.EventSignedIn, Session: toAuthSession(sess, user)})
}

var _ session.AuthProvider = (*Client)(nil)
