package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/mindme/internal/model"
)

type mockSurveyRepo struct {
	statsFn  func(ctx context.Context) (*model.DashboardStats, error)
	recentFn func(ctx context.Context, limit int) ([]model.RecentSurvey, error)
	byUserFn func(ctx context.Context) ([]model.UserSurveySummary, error)
}

func (m *mockSurveyRepo) Create(context.Context, *model.SurveyResponse) error {
	return nil
}

func (m *mockSurveyRepo) Stats(ctx context.Context) (*model.DashboardStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &model.DashboardStats{}, nil
}

func (m *mockSurveyRepo) ListRecent(ctx context.Context, limit int) ([]model.RecentSurvey, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockSurveyRepo) SummaryByUser(ctx context.Context) ([]model.UserSurveySummary, error) {
	if m.byUserFn != nil {
		return m.byUserFn(ctx)
	}
	return nil, nil
}

func TestOverview_Empty(t *testing.T) {
	svc := NewService(&mockSurveyRepo{})

	got, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}

	if got.Stats != (model.DashboardStats{}) {
		t.Errorf("stats = %+v, want zero", got.Stats)
	}
	if got.Recent == nil || got.ByUser == nil {
		t.Error("回答がなくても空のスライスを返すべき")
	}
}

func TestOverview_RoundsAveragesAndLimitsRecent(t *testing.T) {
	var gotLimit int
	day := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	svc := NewService(&mockSurveyRepo{
		statsFn: func(context.Context) (*model.DashboardStats, error) {
			return &model.DashboardStats{
				TotalResponses:    7,
				TotalUsers:        3,
				AverageDepression: 4.2857142,
				AverageAnxiety:    6.25,
			}, nil
		},
		recentFn: func(_ context.Context, limit int) ([]model.RecentSurvey, error) {
			gotLimit = limit
			return []model.RecentSurvey{{ID: "s1", SurveyDate: day, DepressionLevel: 3}}, nil
		},
		byUserFn: func(context.Context) ([]model.UserSurveySummary, error) {
			return []model.UserSurveySummary{{UserID: "u1", Email: "ana@example.com", ResponseCount: 7, LastSurveyDate: day}}, nil
		},
	})

	got, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}

	if gotLimit != 10 {
		t.Errorf("limit = %d, want 10", gotLimit)
	}
	if got.Stats.AverageDepression != 4.3 {
		t.Errorf("AverageDepression = %v, want 4.3", got.Stats.AverageDepression)
	}
	if got.Stats.AverageAnxiety != 6.3 {
		t.Errorf("AverageAnxiety = %v, want 6.3", got.Stats.AverageAnxiety)
	}
	if got.Stats.TotalResponses != 7 || got.Stats.TotalUsers != 3 {
		t.Errorf("stats = %+v", got.Stats)
	}
	if len(got.Recent) != 1 || len(got.ByUser) != 1 {
		t.Errorf("recent = %d件, byUser = %d件", len(got.Recent), len(got.ByUser))
	}
}

func TestOverview_Errors(t *testing.T) {
	errDB := errors.New("db down")

	tests := []struct {
		name string
		repo *mockSurveyRepo
	}{
		{"stats", &mockSurveyRepo{statsFn: func(context.Context) (*model.DashboardStats, error) { return nil, errDB }}},
		{"recent", &mockSurveyRepo{recentFn: func(context.Context, int) ([]model.RecentSurvey, error) { return nil, errDB }}},
		{"byUser", &mockSurveyRepo{byUserFn: func(context.Context) ([]model.UserSurveySummary, error) { return nil, errDB }}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(tt.repo).Overview(context.Background())
			if !errors.Is(err, errDB) {
				t.Errorf("error = %v, want errDB", err)
			}
		})
	}
}
