// Package dashboard は管理者向けの集計画面のデータを提供する。
package dashboard

import (
	"context"
	"fmt"
	"math"

	"github.com/hitoshi/mindme/internal/model"
	"github.com/hitoshi/mindme/internal/repository"
)

// RecentLimit は最近の回答として表示する件数。
const RecentLimit = 10

// Overview はダッシュボードに表示する全データ。
type Overview struct {
	Stats  model.DashboardStats      `json:"stats"`
	Recent []model.RecentSurvey      `json:"recent"`
	ByUser []model.UserSurveySummary `json:"by_user"`
}

// Service は集計データを取得する。
type Service struct {
	repo repository.SurveyRepository
}

// NewService はServiceを生成する。
func NewService(repo repository.SurveyRepository) *Service {
	return &Service{repo: repo}
}

// Overview は集計値、最近の回答、ユーザーごとの回答状況を返す。
// 回答が0件でも空のスライスと0の集計値を返す。
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	recent, err := s.repo.ListRecent(ctx, RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent surveys: %w", err)
	}

	byUser, err := s.repo.SummaryByUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize surveys by user: %w", err)
	}

	out := &Overview{
		Stats:  *stats,
		Recent: recent,
		ByUser: byUser,
	}
	out.Stats.AverageDepression = roundOneDecimal(stats.AverageDepression)
	out.Stats.AverageAnxiety = roundOneDecimal(stats.AverageAnxiety)
	if out.Recent == nil {
		out.Recent = []model.RecentSurvey{}
	}
	if out.ByUser == nil {
		out.ByUser = []model.UserSurveySummary{}
	}
	return out, nil
}

func roundOneDecimal(v float64) float64 {
	return math.Round(v*10) / 10
}
