package model

import "time"

// SurveyResponse は1回分の日次アンケート回答を表す。
// 3値の質問（未回答/はい/いいえ）は *bool、未回答は nil で表す。
type SurveyResponse struct {
	ID         string
	UserID     string
	SurveyDate time.Time
	CreatedAt  time.Time

	// 月経周期
	MenstruationInWeek          *bool
	HasMenstruation             *bool
	MenstruationStartDate       *time.Time
	MenstruationEndDate         *time.Time
	MenstruationLikelyNext7Days *bool
	Menstruation7DaysAgo        *bool

	// 感情の状態
	MoodChanges                 []string
	IrritabilityLevel           int
	AngerLevel                  int
	DepressionLevel             int
	AnxietyLevel                int
	TensionLevel                int
	InterpersonalConflictsLevel int

	// 認知・身体症状
	ConcentrationDifficulty *bool
	SleepChanges            string
	FeltSleepy              *bool
	SleepinessLevel         int
	FatigueLevel            int
	EnergyLevel             string
	PhysicalChanges         []string
	AppetiteChanges         *bool

	// 全般的なウェルビーイング
	FeltOverwhelmed     *bool
	OverwhelmedFeeling  string
	LostInterest        *bool
	LostInterestUnusual *bool
	NegativeThoughts    []string
	SuicidalThoughts    *bool
}

// DashboardStats は管理ダッシュボードの集計値を表す。
type DashboardStats struct {
	TotalResponses    int
	TotalUsers        int
	AverageDepression float64
	AverageAnxiety    float64
}

// RecentSurvey はダッシュボードの最近の回答一覧の1行を表す。
type RecentSurvey struct {
	ID                string
	UserID            string
	SurveyDate        time.Time
	DepressionLevel   int
	AnxietyLevel      int
	IrritabilityLevel int
	CreatedAt         time.Time
}

// UserSurveySummary はユーザーごとの回答件数と最終回答日を表す。
type UserSurveySummary struct {
	UserID         string
	Email          string
	ResponseCount  int
	LastSurveyDate time.Time
}
