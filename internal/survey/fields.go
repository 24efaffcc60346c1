// Package survey は日次アンケートのフォームエンジンを提供する。
//
// 質問の種類、表示条件、必須条件は Fields テーブルで宣言的に定義する。
// 表示条件を満たさない質問は描画されないが、回答値は保持される。
package survey

// Kind は質問の回答形式。
type Kind int

const (
	KindTriState Kind = iota // 未回答/はい/いいえ
	KindScale                // 1〜10の整数
	KindEnum                 // 選択肢から1つ
	KindSet                  // 選択肢から複数
	KindText                 // 自由記述
	KindDate                 // YYYY-MM-DD
)

// Section はアンケートの区分。
type Section struct {
	ID          string
	Title       string
	Description string
}

var (
	SectionCycle = Section{
		ID:          "cycle",
		Title:       "Ciclo Menstrual",
		Description: "Información sobre tu ciclo",
	}
	SectionEmotional = Section{
		ID:          "emotional",
		Title:       "Estado Emocional",
		Description: "¿Cómo te has sentido esta semana?",
	}
	SectionSymptoms = Section{
		ID:          "symptoms",
		Title:       "Síntomas Cognitivos y Físicos",
		Description: "Aspectos relacionados con tu salud física y mental",
	}
	SectionWellbeing = Section{
		ID:          "wellbeing",
		Title:       "Bienestar General",
		Description: "Preguntas sobre tu estado general",
	}
)

// Sections は表示順の区分一覧。
var Sections = []Section{SectionCycle, SectionEmotional, SectionSymptoms, SectionWellbeing}

// SafetyMessage は自殺念慮の質問に添える固定メッセージ。
const SafetyMessage = "Si estás experimentando pensamientos suicidas, por favor busca ayuda profesional inmediatamente."

// Option は選択肢。Value は保存される値、Label は表示文字列。
type Option struct {
	Value string
	Label string
}

// Predicate は回答の状態に対する条件。nilは常に真（表示条件）または常に偽（必須条件）として扱う。
type Predicate func(a AnswerSet) bool

// Field は1つの質問の定義。
type Field struct {
	Name    string
	Section string
	Kind    Kind
	Label   string
	Options []Option

	// VisibleWhen が偽の間は質問を描画しない。回答値は保持する。
	VisibleWhen Predicate
	// RequiredIf が真かつ表示中の質問は回答が必要。
	RequiredIf Predicate

	// Emphasis は強調表示と安全のためのメッセージを伴う質問。
	Emphasis bool
	// Hidden は回答項目として保持するが描画しない質問。
	Hidden bool
	// YesLabel は「はい」の表示文字列を上書きする。
	YesLabel string
	// Placeholder は自由記述欄の入力例。
	Placeholder string
}

// HasOption は value が選択肢に含まれるかを返す。
func (f Field) HasOption(value string) bool {
	for _, o := range f.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// AnsweredYes は指定した3値の質問に「はい」と答えている場合に真となる条件を返す。
func AnsweredYes(field string) Predicate {
	return func(a AnswerSet) bool {
		return a.TriState(field) == Yes
	}
}

func labels(values ...string) []Option {
	opts := make([]Option, len(values))
	for i, v := range values {
		opts[i] = Option{Value: v, Label: v}
	}
	return opts
}

// Fields はアンケートの全質問。表示順に並ぶ。
// 元の画面と同様に全ての質問は任意回答。
var Fields = []Field{
	// Ciclo Menstrual
	{
		Name:    "menstruation_in_week",
		Section: SectionCycle.ID,
		Kind:    KindTriState,
		Label:   "¿Dentro de una semana te puede llegar la menstruación?",
	},
	{
		Name:    "has_menstruation",
		Section: SectionCycle.ID,
		Kind:    KindTriState,
		Label:   "¿Tienes la menstruación actualmente?",
	},
	{
		Name:        "menstruation_start_date",
		Section:     SectionCycle.ID,
		Kind:        KindDate,
		Label:       "Fecha de inicio",
		VisibleWhen: AnsweredYes("has_menstruation"),
	},
	{
		Name:        "menstruation_end_date",
		Section:     SectionCycle.ID,
		Kind:        KindDate,
		Label:       "Fecha de fin (si ya terminó)",
		VisibleWhen: AnsweredYes("has_menstruation"),
	},
	{
		Name:    "menstruation_likely_next_7days",
		Section: SectionCycle.ID,
		Kind:    KindTriState,
		Label:   "¿En los próximos 7 días es probable que te llegue?",
		Hidden:  true,
	},
	{
		Name:    "menstruation_7days_ago",
		Section: SectionCycle.ID,
		Kind:    KindTriState,
		Label:   "¿Hace 7 días te llegó la menstruación?",
	},

	// Estado Emocional
	{
		Name:    "mood_changes",
		Section: SectionEmotional.ID,
		Kind:    KindSet,
		Label:   "¿Sientes cambios marcados en tu estado de ánimo el dia de hoy?",
		Options: labels(
			"Cambios bruscos de humor",
			"Tristeza o llanto",
			"Mayor sensibilidad al rechazo",
			"Otros",
		),
	},
	{Name: "irritability_level", Section: SectionEmotional.ID, Kind: KindScale, Label: "¿Cuál fue tu nivel de irritabilidad hoy? (1-10)"},
	{Name: "anger_level", Section: SectionEmotional.ID, Kind: KindScale, Label: "¿Cuál fue tu nivel de enojo hoy? (1-10)"},
	{Name: "depression_level", Section: SectionEmotional.ID, Kind: KindScale, Label: "¿Qué tan deprimida o triste te has sentido hoy? (1-10)"},
	{Name: "anxiety_level", Section: SectionEmotional.ID, Kind: KindScale, Label: "¿Cuál fue tu nivel de ansiedad hoy? (1-10)"},
	{Name: "tension_level", Section: SectionEmotional.ID, Kind: KindScale, Label: "¿Cuál fue tu nivel de tensión esta semana? (1-10)"},
	{
		Name:    "interpersonal_conflicts_level",
		Section: SectionEmotional.ID,
		Kind:    KindScale,
		Label:   "¿Sientes que tus relaciones interpersonales fueron conflictivas el dia de hoy? (1-10)",
	},

	// Síntomas Cognitivos y Físicos
	{
		Name:    "concentration_difficulty",
		Section: SectionSymptoms.ID,
		Kind:    KindTriState,
		Label:   "¿Tuviste dificultades para concentrarte?",
	},
	{
		Name:    "sleep_changes",
		Section: SectionSymptoms.ID,
		Kind:    KindEnum,
		Label:   "¿Tuviste cambios en el ciclo de sueño?",
		Options: []Option{
			{Value: "dormi_mas", Label: "Dormí más"},
			{Value: "dormi_menos", Label: "Dormí menos"},
			{Value: "normal", Label: "Normal"},
		},
	},
	{
		Name:    "felt_sleepy",
		Section: SectionSymptoms.ID,
		Kind:    KindTriState,
		Label:   "¿Te sentiste somnolienta el dia de hoy?",
	},
	{
		Name:        "sleepiness_level",
		Section:     SectionSymptoms.ID,
		Kind:        KindScale,
		Label:       "¿Cuál fue tu nivel de somnolencia? (1-10)",
		VisibleWhen: AnsweredYes("felt_sleepy"),
	},
	{Name: "fatigue_level", Section: SectionSymptoms.ID, Kind: KindScale, Label: "¿Cuál fue tu nivel de fatiga el día de hoy? (1-10)"},
	{
		Name:    "energy_level",
		Section: SectionSymptoms.ID,
		Kind:    KindEnum,
		Label:   "¿Cuál fue tu nivel de energía durante el día de hoy?",
		Options: []Option{
			{Value: "nada", Label: "Nada"},
			{Value: "poco", Label: "Poco"},
			{Value: "moderada", Label: "Moderada"},
			{Value: "normal", Label: "Normal"},
			{Value: "mucho", Label: "Mucho"},
			{Value: "demasiada", Label: "Demasiada"},
		},
	},
	{
		Name:    "physical_changes",
		Section: SectionSymptoms.ID,
		Kind:    KindSet,
		Label:   "Notaste cambios físicos el dia de hoy:",
		Options: labels(
			"Sensibilidad o inflamación en los senos",
			"Dolor en articulaciones o músculos",
			"Sensación de hinchazón o aumento de peso",
		),
	},
	{
		Name:     "appetite_changes",
		Section:  SectionSymptoms.ID,
		Kind:     KindTriState,
		Label:    "¿Tuviste cambios notables en tu apetito el dia de hoy?",
		YesLabel: "Sí (sobrealimentación o antojos específicos)",
	},

	// Bienestar General
	{
		Name:    "felt_overwhelmed",
		Section: SectionWellbeing.ID,
		Kind:    KindTriState,
		Label:   "¿Te sentiste abrumada o fuera de control esta semana?",
	},
	{
		Name:        "overwhelmed_feeling",
		Section:     SectionWellbeing.ID,
		Kind:        KindText,
		Label:       "¿Qué sentiste?",
		Placeholder: "Describe cómo te sentiste...",
		VisibleWhen: AnsweredYes("felt_overwhelmed"),
	},
	{
		Name:    "lost_interest",
		Section: SectionWellbeing.ID,
		Kind:    KindTriState,
		Label:   "¿Sientes que tuviste desinterés en tus actividades usuales durante la semana?",
	},
	{
		Name:        "lost_interest_unusual",
		Section:     SectionWellbeing.ID,
		Kind:        KindTriState,
		Label:       "¿Esto fue algo inusual?",
		VisibleWhen: AnsweredYes("lost_interest"),
	},
	{
		Name:    "negative_thoughts",
		Section: SectionWellbeing.ID,
		Kind:    KindSet,
		Label:   "¿Has tenido alguno de estos pensamientos durante la semana?",
		Options: labels(
			"Sensación de desesperanza marcada",
			"Pensamientos de desprecio marcada",
			"Pensamientos de suicidio marcada",
		),
	},
	{
		Name:     "suicidal_thoughts",
		Section:  SectionWellbeing.ID,
		Kind:     KindTriState,
		Label:    "¿Tuviste pensamientos suicidas?",
		Emphasis: true,
	},
}

// Lookup は名前に対応する質問を返す。
func Lookup(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// InSection は区分に属する質問を表示順に返す。
func InSection(fields []Field, sectionID string) []Field {
	var out []Field
	for _, f := range fields {
		if f.Section == sectionID {
			out = append(out, f)
		}
	}
	return out
}
