// Package auth はメールアドレス/パスワードとGoogle OAuthによる認証、
// ログインセッションの発行と破棄を提供する。
//
// Service はPostgreSQLに永続化されたアカウントとセッションを扱うバックエンド、
// Client はブラウザクライアントごとに session.AuthProvider を実装するフロントエンド。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/mindme/internal/model"
	"github.com/hitoshi/mindme/internal/repository"
)

var (
	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しない場合に返される。
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken は登録済みのメールアドレスでアカウントを作成しようとした場合に返される。
	ErrEmailTaken = errors.New("email already registered")
	// ErrOAuthDisabled はGoogleログインが設定されていない場合に返される。
	ErrOAuthDisabled = errors.New("oauth sign in is not configured")
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。redirectURLが空の場合は設定値を使う。
	GetLoginURL(state, redirectURL string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。Googleログインを使わない場合 oauth はnilでよい。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// OAuthEnabled はGoogleログインが利用可能かを返す。
func (s *Service) OAuthEnabled() bool {
	return s.oauth != nil
}

// SignUpWithPassword はアカウントを作成し、ログインセッションを発行する。
// 入力が不正な場合は ValidationErrors、登録済みの場合は ErrEmailTaken を返す。
func (s *Service) SignUpWithPassword(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	email = strings.TrimSpace(email)
	if err := ValidateSignUp(SignUpInput{Email: email, Password: password}); err != nil {
		return nil, nil, err
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, nil, ErrEmailTaken
	}

	hash, err := hashPassword(password, s.config.BcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, nil, ValidationErrors{
			model.NewValidationError("password", fmt.Sprintf("La contraseña no puede superar %d bytes", MaxPasswordLength)),
		}
	}
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user signed up",
		slog.String("user_id", user.ID),
		slog.String("provider", "email"),
	)

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, user, nil
}

// SignInWithPassword はメールアドレスとパスワードを検証し、ログインセッションを発行する。
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	// Googleのみで登録したユーザーはパスワードログインできない
	if user == nil || !user.HasPassword() || !checkPassword(user.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("provider", "email"),
	)
	return session, user, nil
}

// GetSession はトークンに対応する有効なセッションとユーザーを返す。
// トークンが空、期限切れ、またはユーザーが削除済みの場合はnilを返す。
func (s *Service) GetSession(ctx context.Context, token string) (*model.Session, *model.User, error) {
	if token == "" {
		return nil, nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil, nil
	}
	return session, user, nil
}

// RefreshSession は有効期間の半分を過ぎたセッションを新しいトークンに置き換える。
// まだ新しいセッションはそのまま返す。ローテーション対象のセッションがすでに
// 削除されていた場合は repository.ErrNotFound を返す。
func (s *Service) RefreshSession(ctx context.Context, session *model.Session) (*model.Session, error) {
	maxAge := time.Duration(s.config.SessionMaxAge) * time.Second
	now := s.now()
	if session.ExpiresAt.Sub(now) > maxAge/2 {
		return session, nil
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}
	next := &model.Session{
		ID:        token,
		UserID:    session.UserID,
		ExpiresAt: now.Add(maxAge),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Rotate(ctx, session.ID, next); err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	slog.Info("session rotated", slog.String("user_id", session.UserID))
	return next, nil
}

// SignOut はセッションを破棄する。
func (s *Service) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out")
	return nil
}

// OAuthLoginURL はGoogleの認可画面URLを返す。
func (s *Service) OAuthLoginURL(state, redirectURL string) (string, error) {
	if s.oauth == nil {
		return "", ErrOAuthDisabled
	}
	return s.oauth.GetLoginURL(state, redirectURL), nil
}

// HandleOAuthCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusers、identities、profilesを同時に作成する。
// 同じメールアドレスのパスワードアカウントがある場合はidentityを紐付ける。
func (s *Service) HandleOAuthCallback(ctx context.Context, code string) (*model.Session, *model.User, error) {
	if s.oauth == nil {
		return nil, nil, ErrOAuthDisabled
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. identitiesテーブルで既存ユーザーを検索
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var user *model.User
	if identity != nil {
		user, err = s.userRepo.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, nil, fmt.Errorf("user for identity %s not found", identity.ID)
		}
	} else {
		user, err = s.linkOrCreateOAuthUser(ctx, userInfo)
		if err != nil {
			return nil, nil, err
		}
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("provider", userInfo.Provider),
	)
	return session, user, nil
}

func (s *Service) linkOrCreateOAuthUser(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	now := s.now()

	existing, err := s.userRepo.FindByEmail(ctx, info.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		identity := &model.Identity{
			ID:             uuid.New().String(),
			UserID:         existing.ID,
			Provider:       info.Provider,
			ProviderUserID: info.ProviderUserID,
			CreatedAt:      now,
		}
		err := s.identRepo.Create(ctx, identity)
		if errors.Is(err, repository.ErrDuplicateIdentity) {
			// 同時に届いた別のコールバックが先に紐付けた
			return existing, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to link identity: %w", err)
		}
		slog.Info("identity linked to existing user",
			slog.String("user_id", existing.ID),
			slog.String("provider", info.Provider),
		)
		return existing, nil
	}

	user := &model.User{
		ID:        uuid.New().String(),
		Email:     info.Email,
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}
	if err := s.userRepo.CreateWithIdentity(ctx, user, identity); err != nil {
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateToken は暗号的に安全なランダムトークンを生成する。
// セッションIDとOAuthのstateパラメータに使用する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
