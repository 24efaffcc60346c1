package survey

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/mindme/internal/metrics"
	"github.com/hitoshi/mindme/internal/model"
	"github.com/hitoshi/mindme/internal/repository"
	"github.com/hitoshi/mindme/internal/security"
)

// SimulatedSaver は一定時間待つだけで何も保存しない。
type SimulatedSaver struct {
	Delay time.Duration
}

// Save は Delay だけ待つ。ctx がキャンセルされた場合はそのエラーを返す。
func (s SimulatedSaver) Save(ctx context.Context, _ Submission) error {
	if s.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RepositorySaver は回答をPostgreSQLに保存する。
type RepositorySaver struct {
	repo      repository.SurveyRepository
	sanitizer security.TextSanitizer
}

// NewRepositorySaver はRepositorySaverを生成する。
func NewRepositorySaver(repo repository.SurveyRepository, sanitizer security.TextSanitizer) *RepositorySaver {
	return &RepositorySaver{repo: repo, sanitizer: sanitizer}
}

// Save は自由記述をプレーンテキストに整えてから保存する。
func (s *RepositorySaver) Save(ctx context.Context, sub Submission) error {
	resp := ToResponse(sub)
	resp.OverwhelmedFeeling = s.sanitizer.Clean(resp.OverwhelmedFeeling)

	if err := s.repo.Create(ctx, resp); err != nil {
		return fmt.Errorf("failed to store survey: %w", err)
	}
	return nil
}

// ToResponse は回答を保存用のモデルに変換する。
func ToResponse(sub Submission) *model.SurveyResponse {
	a := sub.Answers
	return &model.SurveyResponse{
		UserID:     sub.UserID,
		SurveyDate: sub.SurveyDate,

		MenstruationInWeek:          a.TriState("menstruation_in_week").Bool(),
		HasMenstruation:             a.TriState("has_menstruation").Bool(),
		MenstruationStartDate:       a.Date("menstruation_start_date"),
		MenstruationEndDate:         a.Date("menstruation_end_date"),
		MenstruationLikelyNext7Days: a.TriState("menstruation_likely_next_7days").Bool(),
		Menstruation7DaysAgo:        a.TriState("menstruation_7days_ago").Bool(),

		MoodChanges:                 a.Set("mood_changes"),
		IrritabilityLevel:           int(a.Scale("irritability_level")),
		AngerLevel:                  int(a.Scale("anger_level")),
		DepressionLevel:             int(a.Scale("depression_level")),
		AnxietyLevel:                int(a.Scale("anxiety_level")),
		TensionLevel:                int(a.Scale("tension_level")),
		InterpersonalConflictsLevel: int(a.Scale("interpersonal_conflicts_level")),

		ConcentrationDifficulty: a.TriState("concentration_difficulty").Bool(),
		SleepChanges:            a.Text("sleep_changes"),
		FeltSleepy:              a.TriState("felt_sleepy").Bool(),
		SleepinessLevel:         int(a.Scale("sleepiness_level")),
		FatigueLevel:            int(a.Scale("fatigue_level")),
		EnergyLevel:             a.Text("energy_level"),
		PhysicalChanges:         a.Set("physical_changes"),
		AppetiteChanges:         a.TriState("appetite_changes").Bool(),

		FeltOverwhelmed:     a.TriState("felt_overwhelmed").Bool(),
		OverwhelmedFeeling:  a.Text("overwhelmed_feeling"),
		LostInterest:        a.TriState("lost_interest").Bool(),
		LostInterestUnusual: a.TriState("lost_interest_unusual").Bool(),
		NegativeThoughts:    a.Set("negative_thoughts"),
		SuicidalThoughts:    a.TriState("suicidal_thoughts").Bool(),
	}
}

// instrumentedSaver は保存の結果と所要時間をメトリクスに記録する。
type instrumentedSaver struct {
	next    Saver
	metrics metrics.MetricsCollector
}

// Instrument は保存結果をメトリクスに記録する Saver を返す。
func Instrument(next Saver, m metrics.MetricsCollector) Saver {
	if m == nil {
		return next
	}
	return &instrumentedSaver{next: next, metrics: m}
}

func (s *instrumentedSaver) Save(ctx context.Context, sub Submission) error {
	start := time.Now()
	err := s.next.Save(ctx, sub)
	s.metrics.RecordSurveySubmitted(err == nil, time.Since(start))
	return err
}

var (
	_ Saver = SimulatedSaver{}
	_ Saver = (*RepositorySaver)(nil)
	_ Saver = (*instrumentedSaver)(nil)
)
