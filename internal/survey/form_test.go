package survey

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestNewAnswerSet_Defaults(t *testing.T) {
	a := NewAnswerSet()

	for _, f := range Fields {
		switch f.Kind {
		case KindTriState:
			if got := a.TriState(f.Name); got != Unanswered {
				t.Errorf("%s = %v, want Unanswered", f.Name, got)
			}
		case KindScale:
			if got := a.Scale(f.Name); got != DefaultScale {
				t.Errorf("%s = %d, want 5", f.Name, got)
			}
		case KindSet:
			if got := a.Set(f.Name); len(got) != 0 {
				t.Errorf("%s = %v, want empty", f.Name, got)
			}
		default:
			if got := a.Text(f.Name); got != "" {
				t.Errorf("%s = %q, want empty", f.Name, got)
			}
		}
	}
}

func TestFields_TableIsConsistent(t *testing.T) {
	seen := make(map[string]bool)
	sections := make(map[string]bool)
	for _, s := range Sections {
		sections[s.ID] = true
	}

	for _, f := range Fields {
		if seen[f.Name] {
			t.Errorf("質問名が重複している: %s", f.Name)
		}
		seen[f.Name] = true

		if !sections[f.Section] {
			t.Errorf("%s: 未定義の区分 %q", f.Name, f.Section)
		}
		if (f.Kind == KindSet || f.Kind == KindEnum) && len(f.Options) == 0 {
			t.Errorf("%s: 選択肢がない", f.Name)
		}
		opts := make(map[string]bool)
		for _, o := range f.Options {
			if opts[o.Value] {
				t.Errorf("%s: 選択肢が重複している: %s", f.Name, o.Value)
			}
			opts[o.Value] = true
		}
	}

	if len(Fields) != 27 {
		t.Errorf("質問数 = %d, want 27", len(Fields))
	}
}

func TestFields_SuicidalThoughtsEmphasized(t *testing.T) {
	f, ok := Lookup(Fields, "suicidal_thoughts")
	if !ok {
		t.Fatal("suicidal_thoughts が定義されていない")
	}
	if !f.Emphasis || f.Kind != KindTriState {
		t.Errorf("field = %+v, 強調表示の3値の質問であるべき", f)
	}

	for _, other := range Fields {
		if other.Name != "suicidal_thoughts" && other.Emphasis {
			t.Errorf("%s が強調表示されている", other.Name)
		}
	}
}

func TestForm_SetChoiceOverwrites(t *testing.T) {
	form := NewForm("u1")

	steps := []struct {
		field string
		value string
	}{
		{"has_menstruation", "si"},
		{"has_menstruation", "no"},
		{"sleep_changes", "dormi_mas"},
		{"sleep_changes", "normal"},
		{"menstruation_start_date", "2026-10-01"},
		{"overwhelmed_feeling", "cansada"},
	}
	for _, s := range steps {
		if err := form.SetChoice(s.field, s.value); err != nil {
			t.Fatalf("SetChoice(%s, %s) error = %v", s.field, s.value, err)
		}
	}

	a := form.Answers()
	if a.TriState("has_menstruation") != No {
		t.Errorf("has_menstruation = %v, want No", a.TriState("has_menstruation"))
	}
	if a.Text("sleep_changes") != "normal" {
		t.Errorf("sleep_changes = %q, want normal", a.Text("sleep_changes"))
	}
	if d := a.Date("menstruation_start_date"); d == nil || d.Format("2006-01-02") != "2026-10-01" {
		t.Errorf("menstruation_start_date = %v", d)
	}
}

func TestForm_SetChoiceRejects(t *testing.T) {
	form := NewForm("u1")

	tests := []struct {
		name    string
		field   string
		value   string
		wantErr error
	}{
		{"未定義の質問", "favorite_color", "azul", ErrUnknownField},
		{"3値の不正値", "felt_sleepy", "tal vez", ErrInvalidValue},
		{"選択肢外", "energy_level", "infinita", ErrInvalidValue},
		{"日付の形式", "menstruation_end_date", "01/10/2026", ErrInvalidValue},
		{"尺度にSetChoice", "anger_level", "7", ErrInvalidValue},
		{"複数選択にSetChoice", "mood_changes", "Otros", ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := form.SetChoice(tt.field, tt.value); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestForm_ScaleAlwaysInRange(t *testing.T) {
	form := NewForm("u1")

	inputs := []int{1, 10, 0, 11, -3, 7, 100, 5}
	for _, n := range inputs {
		err := form.SetScale("anxiety_level", n)
		inRange := n >= 1 && n <= 10
		if inRange && err != nil {
			t.Errorf("SetScale(%d) error = %v", n, err)
		}
		if !inRange && !errors.Is(err, ErrOutOfRange) {
			t.Errorf("SetScale(%d) error = %v, want ErrOutOfRange", n, err)
		}

		got := form.Answers().Scale("anxiety_level")
		if got < MinScale || got > MaxScale {
			t.Fatalf("anxiety_level = %d, 範囲外になった", got)
		}
	}
	if got := form.Answers().Scale("anxiety_level"); got != 5 {
		t.Errorf("最終値 = %d, want 5", got)
	}
}

func TestNewScale(t *testing.T) {
	for n := -1; n <= 12; n++ {
		s, err := NewScale(n)
		if n >= 1 && n <= 10 {
			if err != nil || int(s) != n {
				t.Errorf("NewScale(%d) = %d, %v", n, s, err)
			}
		} else if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("NewScale(%d) error = %v, want ErrOutOfRange", n, err)
		}
	}
}

func TestForm_ToggleRoundTrip(t *testing.T) {
	form := NewForm("u1")
	if err := form.Toggle("mood_changes", "Otros", true); err != nil {
		t.Fatal(err)
	}
	before := form.Answers().Set("mood_changes")

	// 追加して削除すると元に戻る
	if err := form.Toggle("mood_changes", "Tristeza o llanto", true); err != nil {
		t.Fatal(err)
	}
	if err := form.Toggle("mood_changes", "Tristeza o llanto", false); err != nil {
		t.Fatal(err)
	}

	if after := form.Answers().Set("mood_changes"); !slices.Equal(before, after) {
		t.Errorf("mood_changes = %v, want %v", after, before)
	}
}

func TestForm_ToggleNoDuplicates(t *testing.T) {
	form := NewForm("u1")

	for i := 0; i < 3; i++ {
		if err := form.Toggle("physical_changes", "Dolor en articulaciones o músculos", true); err != nil {
			t.Fatal(err)
		}
	}
	if got := form.Answers().Set("physical_changes"); len(got) != 1 {
		t.Errorf("physical_changes = %v, 重複してはいけない", got)
	}

	// 未選択の解除は何もしない
	if err := form.Toggle("physical_changes", "Sensación de hinchazón o aumento de peso", false); err != nil {
		t.Fatal(err)
	}
	if got := form.Answers().Set("physical_changes"); len(got) != 1 {
		t.Errorf("physical_changes = %v", got)
	}
}

func TestForm_ToggleRejectsUnknownOption(t *testing.T) {
	form := NewForm("u1")

	if err := form.Toggle("negative_thoughts", "Otra cosa", true); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("error = %v, want ErrInvalidValue", err)
	}
	if err := form.Toggle("felt_sleepy", "si", true); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("3値の質問へのToggle error = %v, want ErrInvalidValue", err)
	}
}

func TestForm_AnswersAreSnapshots(t *testing.T) {
	form := NewForm("u1")
	form.Toggle("mood_changes", "Otros", true)
	snap := form.Answers()

	form.Toggle("mood_changes", "Otros", false)
	form.SetScale("anger_level", 9)

	if !snap.Selected("mood_changes", "Otros") {
		t.Error("スナップショットが後の変更の影響を受けた")
	}
	if snap.Scale("anger_level") != 5 {
		t.Errorf("anger_level = %d, want 5", snap.Scale("anger_level"))
	}
}

func TestForm_ConditionalVisibility(t *testing.T) {
	tests := []struct {
		controller string
		dependents []string
	}{
		{"has_menstruation", []string{"menstruation_start_date", "menstruation_end_date"}},
		{"felt_sleepy", []string{"sleepiness_level"}},
		{"felt_overwhelmed", []string{"overwhelmed_feeling"}},
		{"lost_interest", []string{"lost_interest_unusual"}},
	}
	for _, tt := range tests {
		t.Run(tt.controller, func(t *testing.T) {
			form := NewForm("u1")

			check := func(want bool) {
				t.Helper()
				for _, d := range tt.dependents {
					if got := form.Visible(d); got != want {
						t.Errorf("Visible(%s) = %v, want %v", d, got, want)
					}
				}
			}

			check(false)
			form.SetChoice(tt.controller, "si")
			check(true)
			form.SetChoice(tt.controller, "no")
			check(false)
			form.SetChoice(tt.controller, "")
			check(false)
		})
	}
}

func TestForm_HiddenFieldKeepsValue(t *testing.T) {
	form := NewForm("u1")

	form.SetChoice("felt_overwhelmed", "si")
	if err := form.SetChoice("overwhelmed_feeling", "Mucho estrés en el trabajo"); err != nil {
		t.Fatal(err)
	}
	form.SetChoice("felt_sleepy", "si")
	form.SetScale("sleepiness_level", 8)

	// 非表示にしてから再表示
	form.SetChoice("felt_overwhelmed", "no")
	form.SetChoice("felt_sleepy", "no")
	if form.Visible("overwhelmed_feeling") || form.Visible("sleepiness_level") {
		t.Fatal("条件付きの質問が表示されたまま")
	}
	form.SetChoice("felt_overwhelmed", "si")
	form.SetChoice("felt_sleepy", "si")

	a := form.Answers()
	if got := a.Text("overwhelmed_feeling"); got != "Mucho estrés en el trabajo" {
		t.Errorf("overwhelmed_feeling = %q, 値が保持されるべき", got)
	}
	if got := a.Scale("sleepiness_level"); got != 8 {
		t.Errorf("sleepiness_level = %d, want 8", got)
	}
}

func TestForm_VisibleUnrenderedField(t *testing.T) {
	form := NewForm("u1")

	if form.Visible("menstruation_likely_next_7days") {
		t.Error("描画しない質問が表示対象になっている")
	}
	if form.Visible("unknown") {
		t.Error("未定義の質問が表示対象になっている")
	}
	if !form.Visible("suicidal_thoughts") {
		t.Error("条件のない質問は常に表示されるべき")
	}
}

func TestForm_Answer(t *testing.T) {
	form := NewForm("u1")

	ops := []struct {
		field   string
		value   string
		checked bool
	}{
		{"irritability_level", "8", false},
		{"negative_thoughts", "Sensación de desesperanza marcada", true},
		{"suicidal_thoughts", "no", false},
		{"energy_level", "poco", false},
	}
	for _, op := range ops {
		if err := form.Answer(op.field, op.value, op.checked); err != nil {
			t.Fatalf("Answer(%s) error = %v", op.field, err)
		}
	}

	a := form.Answers()
	if a.Scale("irritability_level") != 8 {
		t.Errorf("irritability_level = %d", a.Scale("irritability_level"))
	}
	if !a.Selected("negative_thoughts", "Sensación de desesperanza marcada") {
		t.Error("negative_thoughts が選択されていない")
	}
	if a.TriState("suicidal_thoughts") != No {
		t.Errorf("suicidal_thoughts = %v", a.TriState("suicidal_thoughts"))
	}
	if a.Text("energy_level") != "poco" {
		t.Errorf("energy_level = %q", a.Text("energy_level"))
	}

	if err := form.Answer("anger_level", "muy alto", false); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("数値以外の尺度 error = %v, want ErrInvalidValue", err)
	}
	if err := form.Answer("anger_level", "11", false); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("範囲外の尺度 error = %v, want ErrOutOfRange", err)
	}
}

// saverFunc は関数をSaverとして使うテスト用アダプター。
type saverFunc func(ctx context.Context, sub Submission) error

func (f saverFunc) Save(ctx context.Context, sub Submission) error { return f(ctx, sub) }

func TestForm_SubmitDefaults(t *testing.T) {
	form := NewForm("u1")
	form.now = func() time.Time { return time.Date(2026, 10, 18, 21, 30, 0, 0, time.UTC) }

	var saved Submission
	var completed *AnswerSet
	err := form.Submit(context.Background(),
		saverFunc(func(_ context.Context, sub Submission) error {
			if !form.Submitting() {
				t.Error("保存中に Submitting() が false")
			}
			saved = sub
			return nil
		}),
		func(a AnswerSet) { completed = &a },
	)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if completed == nil {
		t.Fatal("onComplete が呼ばれなかった")
	}
	if form.Submitting() {
		t.Error("送信後も Submitting() が true")
	}
	if !form.Completed() {
		t.Error("Completed() = false")
	}
	if saved.UserID != "u1" {
		t.Errorf("UserID = %q", saved.UserID)
	}
	if want := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC); !saved.SurveyDate.Equal(want) {
		t.Errorf("SurveyDate = %v, want %v", saved.SurveyDate, want)
	}
	if saved.Answers.Scale("depression_level") != DefaultScale {
		t.Error("初期値のまま保存されていない")
	}
}

func TestForm_SubmitRejectsConcurrent(t *testing.T) {
	form := NewForm("u1")
	release := make(chan struct{})
	entered := make(chan struct{})

	var calls int
	var mu sync.Mutex
	saver := saverFunc(func(context.Context, Submission) error {
		mu.Lock()
		calls++
		mu.Unlock()
		close(entered)
		<-release
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- form.Submit(context.Background(), saver, nil)
	}()
	<-entered

	if err := form.Submit(context.Background(), saver, nil); !errors.Is(err, ErrAlreadySubmitting) {
		t.Errorf("2回目のSubmit() error = %v, want ErrAlreadySubmitting", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("1回目のSubmit() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("保存回数 = %d, want 1", calls)
	}

	if err := form.Submit(context.Background(), saver, nil); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("完了後のSubmit() error = %v, want ErrAlreadyCompleted", err)
	}
}

func TestForm_SubmitFailureAllowsRetry(t *testing.T) {
	form := NewForm("u1")
	errDB := errors.New("db down")
	completed := false

	err := form.Submit(context.Background(),
		saverFunc(func(context.Context, Submission) error { return errDB }),
		func(AnswerSet) { completed = true },
	)
	if !errors.Is(err, errDB) {
		t.Fatalf("error = %v, want errDB", err)
	}
	if completed || form.Completed() || form.Submitting() {
		t.Errorf("失敗後の状態: completed=%v Completed()=%v Submitting()=%v", completed, form.Completed(), form.Submitting())
	}

	if err := form.Submit(context.Background(), SimulatedSaver{}, func(AnswerSet) { completed = true }); err != nil {
		t.Fatalf("再送信 error = %v", err)
	}
	if !completed {
		t.Error("再送信で onComplete が呼ばれなかった")
	}
}
