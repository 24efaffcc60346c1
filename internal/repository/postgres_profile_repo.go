package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/mindme/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, userID string) (*model.Profile, error) {
	profile := &model.Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, is_admin, created_at, updated_at FROM profiles WHERE id = $1`,
		userID,
	).Scan(&profile.ID, &profile.IsAdmin, &profile.CreatedAt, &profile.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return profile, nil
}

// SetAdminByEmail はメールアドレスで特定したユーザーの管理者フラグを更新する。
// プロフィール行が欠けている古いユーザーにも対応するためUPSERTする。
func (r *PostgresProfileRepo) SetAdminByEmail(ctx context.Context, email string, isAdmin bool) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, is_admin)
		 SELECT id, $2 FROM users WHERE lower(email) = lower($1)
		 ON CONFLICT (id) DO UPDATE SET is_admin = EXCLUDED.is_admin, updated_at = now()`,
		email, isAdmin,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
