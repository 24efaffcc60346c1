// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/mindme/internal/model"
)

// ErrDuplicateEmail は同じメールアドレス（大文字小文字を区別しない）のユーザーが既に存在する場合に返される。
var ErrDuplicateEmail = errors.New("email already registered")

// ErrDuplicateIdentity は同じプロバイダーのアカウントがすでにユーザーに紐付いている場合に返される。
var ErrDuplicateIdentity = errors.New("identity already linked")

// ErrNotFound は更新対象のレコードが存在しない場合に返される。
var ErrNotFound = errors.New("record not found")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。大文字小文字は区別しない。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーと空のプロフィールを同一トランザクションで作成する。
	// メールアドレスが重複する場合は ErrDuplicateEmail を返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザー、identity、プロフィールを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、profiles、surveysはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。
	// 同じproviderとprovider_user_idが登録済みの場合は ErrDuplicateIdentity を返す。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// Rotate は oldID のセッションを削除し、同じトランザクションで next を作成する。
	// oldID のセッションが存在しない場合は ErrNotFound を返し、next は作成しない。
	Rotate(ctx context.Context, oldID string, next *model.Session) error
	// DeleteExpiredBefore は before より前に期限切れになったセッションを削除し、削除件数を返す。
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

// ProfileRepository はユーザー権限（プロフィール）の永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID string) (*model.Profile, error)

	// SetAdminByEmail はメールアドレスで特定したユーザーの管理者フラグを更新する。
	// ユーザーが存在しない場合は ErrNotFound を返す。
	SetAdminByEmail(ctx context.Context, email string, isAdmin bool) error
}

// SurveyRepository はアンケート回答の永続化と集計のインターフェース。
type SurveyRepository interface {
	// Create は回答を保存し、採番されたIDと作成日時を survey に設定する。
	Create(ctx context.Context, survey *model.SurveyResponse) error

	// Stats は全回答の集計値を返す。回答が0件の場合は平均値も0になる。
	Stats(ctx context.Context) (*model.DashboardStats, error)

	// ListRecent は作成日時の新しい順に最大 limit 件の回答を返す。
	ListRecent(ctx context.Context, limit int) ([]model.RecentSurvey, error)

	// SummaryByUser はユーザーごとの回答件数と最終回答日を、最終回答日の新しい順に返す。
	SummaryByUser(ctx context.Context) ([]model.UserSurveySummary, error)
}
