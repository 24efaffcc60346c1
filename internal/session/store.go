package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/mindme/internal/metrics"
)

// inboxSize はストアの受信チャネルのバッファサイズ。
const inboxSize = 32

// message はストアの受信チャネルを流れるメッセージ。
type message interface {
	isMessage()
}

// eventMessage はセッション変更イベント。local はストア自身が積んだもの。
type eventMessage struct {
	event Event
	local bool
}

// roleResult は世代付きのロール検索結果。
type roleResult struct {
	generation uint64
	isAdmin    bool
}

// revalidation はプロバイダーに問い合わせ直した現在のセッション。
// 問い合わせ開始時の世代と異なる場合は、その間にIDが変わったため破棄する。
type revalidation struct {
	generation uint64
	session    *AuthSession
}

// settleRequest はそれ以前のメッセージが全て適用され、
// 現在のIDに対するロール検索が完了した時点で done を閉じる。
type settleRequest struct {
	done chan struct{}
}

func (eventMessage) isMessage()  {}
func (roleResult) isMessage()    {}
func (revalidation) isMessage()  {}
func (settleRequest) isMessage() {}

// Store はブラウザクライアント1つ分のログイン状態を保持する。
// 生成後に Initialize を呼び、不要になったら Close で解放する。
type Store struct {
	provider AuthProvider
	roles    RoleLookup
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	// revalidateEvery が0の場合は Revalidate のたびに問い合わせる
	revalidateEvery time.Duration

	mu            sync.RWMutex
	state         State
	identity      *Identity
	token         string
	expiresAt     time.Time
	checkedAt     time.Time
	isAdmin       bool
	actions       int
	generation    uint64
	lookupPending bool
	waiters       []chan struct{}

	inbox       chan message
	done        chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
	closeOnce   sync.Once
	closed      bool
}

// Option はStoreの任意設定。
type Option func(*Store)

// WithMetrics は認証イベントを記録するメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithRevalidateInterval はログイン中のセッションをプロバイダーに問い合わせ直す間隔を設定する。
// 有効期限を過ぎたセッションは間隔に関係なく問い合わせる。
func WithRevalidateInterval(d time.Duration) Option {
	return func(s *Store) {
		s.revalidateEvery = d
	}
}

// New は未初期化のStoreを生成する。
func New(provider AuthProvider, roles RoleLookup, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		provider: provider,
		roles:    roles,
		logger:   logger,
		metrics:  metrics.Nop{},
		state:    StateUninitialized,
		inbox:    make(chan message, inboxSize),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize はプロバイダーのイベント購読を開始し、永続化されたセッションを読み込む。
// 未初期化の状態でのみ処理を行い、初期化中や初期化済みの場合は即座に戻る。
// プロバイダーのエラーはログに記録され、ログアウト状態で初期化を完了する。
//
// 読み込み中に届いたイベントは受信チャネルに溜まり、初期IDの適用後に順番に適用される。
func (s *Store) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return
	}
	s.state = StateInitializing
	s.mu.Unlock()

	unsubscribe := s.provider.Subscribe(s.deliver)

	sess, err := s.provider.GetSession(ctx)
	if err != nil {
		s.logger.Warn("failed to get session, continuing logged out",
			slog.String("error", err.Error()),
		)
		sess = nil
	}

	s.mu.Lock()
	if s.closed {
		// 初期化中にCloseされた
		s.mu.Unlock()
		unsubscribe()
		return
	}
	s.unsubscribe = unsubscribe
	s.setIdentityLocked(sess)
	s.state = StateReady
	s.wg.Add(1)
	go s.consume()
	s.mu.Unlock()
	s.metrics.RecordAuthEvent(EventInitialSession.String())

	s.logger.Debug("session store initialized",
		slog.Bool("logged_in", sess != nil),
	)
}

// deliver はプロバイダーから同期的に呼び出され、イベントを受信チャネルに積む。
func (s *Store) deliver(ev Event) {
	s.enqueue(eventMessage{event: ev})
}

func (s *Store) enqueue(m message) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.done:
		return false
	}
}

// consume は受信チャネルのメッセージを順番に適用する唯一のゴルーチン。
func (s *Store) consume() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			s.mu.Lock()
			s.releaseWaitersLocked()
			s.mu.Unlock()
			return
		case m := <-s.inbox:
			s.apply(m)
		}
	}
}

func (s *Store) apply(m message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := m.(type) {
	case eventMessage:
		if !m.local {
			s.metrics.RecordAuthEvent(m.event.Kind.String())
		}
		switch m.event.Kind {
		case EventSignedOut:
			s.setIdentityLocked(nil)
		default:
			s.setIdentityLocked(m.event.Session)
		}
	case roleResult:
		if m.generation != s.generation {
			s.logger.Debug("discarding stale role lookup",
				slog.Uint64("generation", m.generation),
				slog.Uint64("current", s.generation),
			)
			return
		}
		s.isAdmin = m.isAdmin
		s.lookupPending = false
	case revalidation:
		if m.generation != s.generation {
			s.logger.Debug("discarding stale revalidation",
				slog.Uint64("generation", m.generation),
				slog.Uint64("current", s.generation),
			)
			break
		}
		s.applyRevalidationLocked(m.session)
	case settleRequest:
		s.waiters = append(s.waiters, m.done)
	}

	if !s.lookupPending {
		s.releaseWaitersLocked()
	}
}

// setIdentityLocked はIDを置き換え、世代を進めてロール検索を開始する。
// 同じユーザーのトークン更新では現在の管理者フラグを維持したまま再検索する。
func (s *Store) setIdentityLocked(sess *AuthSession) {
	s.generation++

	if sess == nil {
		s.identity = nil
		s.token = ""
		s.expiresAt = time.Time{}
		s.isAdmin = false
		s.lookupPending = false
		return
	}

	sameUser := s.identity != nil && s.identity.ID == sess.Identity.ID
	identity := sess.Identity
	s.identity = &identity
	s.token = sess.Token
	s.expiresAt = sess.ExpiresAt
	s.checkedAt = time.Now()
	if !sameUser {
		s.isAdmin = false
	}
	s.lookupPending = true

	if s.closed {
		return
	}
	s.wg.Add(1)
	go s.lookupRole(s.generation, identity.ID)
}

// applyRevalidationLocked は問い合わせ直した結果を反映する。
// プロバイダー側で失効していればログアウト、トークンが置き換わっていれば更新として扱う。
func (s *Store) applyRevalidationLocked(sess *AuthSession) {
	s.checkedAt = time.Now()

	switch {
	case sess == nil:
		s.logger.Info("session no longer valid at provider, signing out",
			slog.String("user_id", s.identity.ID),
		)
		s.metrics.RecordAuthEvent(EventSignedOut.String())
		s.setIdentityLocked(nil)
	case sess.Token != s.token || sess.Identity.ID != s.identity.ID:
		s.metrics.RecordAuthEvent(EventTokenRefreshed.String())
		s.setIdentityLocked(sess)
	default:
		s.expiresAt = sess.ExpiresAt
	}
}

// lookupRole は管理者フラグを検索し、結果を世代付きで受信チャネルに返す。
// 検索エラーやプロフィール不在は管理者ではないとして扱う。
func (s *Store) lookupRole(generation uint64, userID string) {
	defer s.wg.Done()

	isAdmin, found, err := s.roles.LookupIsAdmin(s.ctx, userID)
	if err != nil {
		s.logger.Warn("role lookup failed, treating as non-admin",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		isAdmin = false
	} else if !found {
		isAdmin = false
	}

	s.enqueue(roleResult{generation: generation, isAdmin: isAdmin})
}

func (s *Store) releaseWaitersLocked() {
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
}

// Settle はこの呼び出し以前に積まれたイベントと、
// 現在のIDに対するロール検索が適用されるまで待つ。
// 初期化が完了していない場合は即座に戻る。
func (s *Store) Settle(ctx context.Context) error {
	s.mu.RLock()
	ready := s.state == StateReady
	s.mu.RUnlock()
	if !ready {
		return nil
	}

	done := make(chan struct{})
	if !s.enqueue(settleRequest{done: done}) {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Revalidate はログイン中のセッションがプロバイダー側でまだ有効かを問い合わせ、
// 結果を受信チャネルに積む。反映を待つには続けて Settle を呼ぶ。
// 未初期化や未ログインの場合、問い合わせ間隔内で有効期限前の場合は何もしない。
// プロバイダーのエラーはログに記録して返し、現在の状態を維持する。
func (s *Store) Revalidate(ctx context.Context) error {
	now := time.Now()

	s.mu.RLock()
	due := s.state == StateReady && s.identity != nil && !s.closed &&
		(now.Sub(s.checkedAt) >= s.revalidateEvery || (!s.expiresAt.IsZero() && now.After(s.expiresAt)))
	generation := s.generation
	s.mu.RUnlock()
	if !due {
		return nil
	}

	sess, err := s.provider.GetSession(ctx)
	if err != nil {
		s.logger.Warn("session revalidation failed, keeping current state",
			slog.String("error", err.Error()),
		)
		return err
	}
	s.enqueue(revalidation{generation: generation, session: sess})
	return nil
}

// beginAction は認証操作中フラグを立て、解除関数を返す。
func (s *Store) beginAction() func() {
	s.mu.Lock()
	s.actions++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.actions--
		s.mu.Unlock()
	}
}

// SignIn はメールアドレスとパスワードでログインする。
// ログイン後の状態はプロバイダーが通知する SignedIn イベントで反映される。
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	defer s.beginAction()()

	_, err := s.provider.SignInWithPassword(ctx, email, password)
	return err
}

// SignUp はアカウントを作成してログインする。
func (s *Store) SignUp(ctx context.Context, email, password string) error {
	defer s.beginAction()()

	_, err := s.provider.SignUp(ctx, email, password)
	return err
}

// SignOut はログアウトする。
// プロバイダーのエラーはログに記録するのみで、ローカルの状態は常にログアウトにする。
func (s *Store) SignOut(ctx context.Context) {
	defer s.beginAction()()

	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.Error("sign out failed at provider, clearing local session",
			slog.String("error", err.Error()),
		)
	}

	s.mu.RLock()
	ready := s.state == StateReady
	s.mu.RUnlock()

	if ready && s.enqueue(eventMessage{event: Event{Kind: EventSignedOut}, local: true}) {
		return
	}
	s.mu.Lock()
	s.setIdentityLocked(nil)
	s.mu.Unlock()
}

// SignInWithGoogle はGoogleの認可画面URLを返す。
// 失敗した場合はログに記録し、空文字列を返す。
func (s *Store) SignInWithGoogle(ctx context.Context, redirectURL string) string {
	defer s.beginAction()()

	authURL, err := s.provider.SignInWithOAuth(ctx, "google", redirectURL)
	if err != nil {
		s.logger.Error("failed to start google sign in",
			slog.String("error", err.Error()),
		)
		return ""
	}
	return authURL
}

// Snapshot は現在の状態のコピーを返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		IsAdmin:              s.identity != nil && s.isAdmin,
		IsLoading:            s.state != StateReady,
		State:                s.state,
		AuthActionInProgress: s.actions > 0,
	}
	if s.identity != nil {
		identity := *s.identity
		snap.Identity = &identity
		snap.Token = s.token
	}
	return snap
}

// Close は購読を解除し、ストアのゴルーチンを停止する。複数回呼び出しても安全。
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		unsubscribe := s.unsubscribe
		s.mu.Unlock()

		close(s.done)
		s.cancel()
		if unsubscribe != nil {
			unsubscribe()
		}
		s.wg.Wait()
	})
}
