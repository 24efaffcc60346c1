// Package session はブラウザクライアントごとのログイン状態（セッションストア）を管理する。
//
// Store は認証プロバイダーからのイベントとロール検索の結果を
// 単一の順序付きチャネルで受け取り、1つのゴルーチンで適用する。
// ロール検索はID変更ごとに採番される世代で識別され、
// 古い世代の結果は破棄される。
package session

import (
	"context"
	"time"
)

// State はストアの初期化状態。
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

// String はログ出力用の状態名を返す。
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Identity はログイン中のユーザーを表す。
type Identity struct {
	ID    string
	Email string
}

// AuthSession は認証プロバイダーが発行したセッション。
type AuthSession struct {
	Token     string
	Identity  Identity
	ExpiresAt time.Time
}

// EventKind はセッション変更イベントの種別。
type EventKind int

const (
	EventInitialSession EventKind = iota
	EventSignedIn
	EventSignedOut
	EventTokenRefreshed
)

// String はメトリクスとログ用のイベント名を返す。
func (k EventKind) String() string {
	switch k {
	case EventInitialSession:
		return "INITIAL_SESSION"
	case EventSignedIn:
		return "SIGNED_IN"
	case EventSignedOut:
		return "SIGNED_OUT"
	case EventTokenRefreshed:
		return "TOKEN_REFRESHED"
	default:
		return "UNKNOWN"
	}
}

// Event は認証プロバイダーが通知するセッション変更イベント。
// SignedOut の場合 Session は nil。
type Event struct {
	Kind    EventKind
	Session *AuthSession
}

// AuthProvider はストアが利用する認証プロバイダーのインターフェース。
type AuthProvider interface {
	// GetSession は永続化されている現在のセッションを返す。セッションがなければnil。
	GetSession(ctx context.Context) (*AuthSession, error)
	SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error)
	SignUp(ctx context.Context, email, password string) (*AuthSession, error)
	SignOut(ctx context.Context) error
	// SignInWithOAuth は外部IdPの認可画面URLを返す。
	SignInWithOAuth(ctx context.Context, provider, redirectURL string) (string, error)
	// Subscribe はイベントを受け取るsinkを登録し、登録解除関数を返す。
	// sink はプロバイダーの操作が戻る前に同期的に呼び出される。
	Subscribe(sink func(Event)) (cancel func())
}

// RoleLookup はユーザーの管理者フラグを検索するインターフェース。
// プロフィールが存在しない場合は found=false を返す。
type RoleLookup interface {
	LookupIsAdmin(ctx context.Context, userID string) (isAdmin, found bool, err error)
}

// Snapshot はストアのある時点の状態のコピー。
// Token は現在のセッショントークンで、Cookieの同期に使う。
type Snapshot struct {
	Identity             *Identity
	Token                string
	IsAdmin              bool
	IsLoading            bool
	State                State
	AuthActionInProgress bool
}

// LoggedIn はログイン中かどうかを返す。
func (s Snapshot) LoggedIn() bool {
	return s.Identity != nil
}
