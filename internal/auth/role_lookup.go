package auth

import (
	"context"
	"fmt"

	"github.com/hitoshi/mindme/internal/repository"
	"github.com/hitoshi/mindme/internal/session"
)

// ProfileRoleLookup はプロフィールテーブルの管理者フラグを検索する。
type ProfileRoleLookup struct {
	profiles repository.ProfileRepository
}

// NewProfileRoleLookup はProfileRoleLookupを生成する。
func NewProfileRoleLookup(profiles repository.ProfileRepository) *ProfileRoleLookup {
	return &ProfileRoleLookup{profiles: profiles}
}

// LookupIsAdmin はユーザーの管理者フラグを返す。プロフィールがなければ found=false。
func (l *ProfileRoleLookup) LookupIsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	profile, err := l.profiles.FindByID(ctx, userID)
	if err != nil {
		return false, false, fmt.Errorf("failed to find profile: %w", err)
	}
	if profile == nil {
		return false, false, nil
	}
	return profile.IsAdmin, true, nil
}

var _ session.RoleLookup = (*ProfileRoleLookup)(nil)
