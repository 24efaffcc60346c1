package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/mindme/internal/model"
)

// PostgresSurveyRepo はPostgreSQLを使用したアンケート回答リポジトリ。
type PostgresSurveyRepo struct {
	db *sql.DB
}

// NewPostgresSurveyRepo はPostgresSurveyRepoを生成する。
func NewPostgresSurveyRepo(db *sql.DB) *PostgresSurveyRepo {
	return &PostgresSurveyRepo{db: db}
}

// Create は回答を保存し、採番されたIDと作成日時を survey に設定する。
func (r *PostgresSurveyRepo) Create(ctx context.Context, s *model.SurveyResponse) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO surveys (
			user_id, survey_date,
			menstruation_in_week, has_menstruation, menstruation_start_date, menstruation_end_date,
			menstruation_likely_next_7days, menstruation_7days_ago,
			mood_changes, irritability_level, anger_level, depression_level, anxiety_level,
			tension_level, interpersonal_conflicts_level,
			concentration_difficulty, sleep_changes, felt_sleepy, sleepiness_level, fatigue_level,
			energy_level, physical_changes, appetite_changes,
			felt_overwhelmed, overwhelmed_feeling, lost_interest, lost_interest_unusual,
			negative_thoughts, suicidal_thoughts
		) VALUES (
			$1, $2,
			$3, $4, $5, $6,
			$7, $8,
			$9, $10, $11, $12, $13,
			$14, $15,
			$16, $17, $18, $19, $20,
			$21, $22, $23,
			$24, $25, $26, $27,
			$28, $29
		) RETURNING id, created_at`,
		s.UserID, s.SurveyDate,
		s.MenstruationInWeek, s.HasMenstruation, s.MenstruationStartDate, s.MenstruationEndDate,
		s.MenstruationLikelyNext7Days, s.Menstruation7DaysAgo,
		pq.Array(nonNil(s.MoodChanges)), s.IrritabilityLevel, s.AngerLevel, s.DepressionLevel, s.AnxietyLevel,
		s.TensionLevel, s.InterpersonalConflictsLevel,
		s.ConcentrationDifficulty, s.SleepChanges, s.FeltSleepy, s.SleepinessLevel, s.FatigueLevel,
		s.EnergyLevel, pq.Array(nonNil(s.PhysicalChanges)), s.AppetiteChanges,
		s.FeltOverwhelmed, s.OverwhelmedFeeling, s.LostInterest, s.LostInterestUnusual,
		pq.Array(nonNil(s.NegativeThoughts)), s.SuicidalThoughts,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert survey: %w", err)
	}
	return nil
}

// Stats は全回答の集計値を返す。TotalUsers は回答の有無に関係なく登録済みのユーザー数。
func (r *PostgresSurveyRepo) Stats(ctx context.Context) (*model.DashboardStats, error) {
	stats := &model.DashboardStats{}
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*),
		        (SELECT count(*) FROM users),
		        COALESCE(avg(depression_level), 0)::float8,
		        COALESCE(avg(anxiety_level), 0)::float8
		 FROM surveys`,
	).Scan(&stats.TotalResponses, &stats.TotalUsers, &stats.AverageDepression, &stats.AverageAnxiety)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate surveys: %w", err)
	}
	return stats, nil
}

// ListRecent は作成日時の新しい順に最大 limit 件の回答を返す。
func (r *PostgresSurveyRepo) ListRecent(ctx context.Context, limit int) ([]model.RecentSurvey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, survey_date, depression_level, anxiety_level, irritability_level, created_at
		 FROM surveys
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent surveys: %w", err)
	}
	defer rows.Close()

	var result []model.RecentSurvey
	for rows.Next() {
		var s model.RecentSurvey
		if err := rows.Scan(&s.ID, &s.UserID, &s.SurveyDate, &s.DepressionLevel, &s.AnxietyLevel, &s.IrritabilityLevel, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan survey: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate surveys: %w", err)
	}
	return result, nil
}

// SummaryByUser はユーザーごとの回答件数と最終回答日を、最終回答日の新しい順に返す。
func (r *PostgresSurveyRepo) SummaryByUser(ctx context.Context) ([]model.UserSurveySummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.user_id, COALESCE(u.email, ''), count(*), max(s.survey_date)
		 FROM surveys s
		 LEFT JOIN users u ON u.id = s.user_id
		 GROUP BY s.user_id, u.email
		 ORDER BY max(s.survey_date) DESC, s.user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize surveys: %w", err)
	}
	defer rows.Close()

	var result []model.UserSurveySummary
	for rows.Next() {
		var s model.UserSurveySummary
		if err := rows.Scan(&s.UserID, &s.Email, &s.ResponseCount, &s.LastSurveyDate); err != nil {
			return nil, fmt.Errorf("failed to scan survey summary: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate survey summary: %w", err)
	}
	return result, nil
}

// nonNil はNOT NULLの配列カラムにnilスライスを渡さないよう空スライスに置き換える。
func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// compile-time interface check
var _ SurveyRepository = (*PostgresSurveyRepo)(nil)
