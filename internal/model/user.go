// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// Googleログインのみのユーザーは PasswordHash が空になる。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword はパスワードログインが可能なユーザーかどうかを返す。
func (u *User) HasPassword() bool {
	return len(u.PasswordHash) > 0
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session は認証プロバイダーが発行するログインセッションを表す。
// ID はCookieに保存される不透明なトークン。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Profile はユーザーの権限情報（Perfil）を表す。
type Profile struct {
	ID        string
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
