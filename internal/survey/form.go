package survey

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"
)

var (
	// ErrAlreadySubmitting は送信処理中に再度送信しようとした場合に返される。
	ErrAlreadySubmitting = errors.New("survey submission already in progress")
	// ErrAlreadyCompleted は送信済みのフォームを再度送信しようとした場合に返される。
	ErrAlreadyCompleted = errors.New("survey already completed")
)

// Submission は保存するアンケート回答。
type Submission struct {
	UserID     string
	SurveyDate time.Time
	Answers    AnswerSet
}

// Saver はアンケート回答を保存する。
type Saver interface {
	Save(ctx context.Context, sub Submission) error
}

// Form は1回分のアンケート入力の状態を保持する。
// 画面表示のたびに NewForm で新しい下書きを作る。
type Form struct {
	fields []Field
	userID string
	now    func() time.Time

	mu         sync.Mutex
	answers    AnswerSet
	submitting bool
	completed  bool
}

// NewForm は Fields の初期状態のフォームを生成する。
func NewForm(userID string) *Form {
	return NewFormWithFields(userID, Fields)
}

// NewFormWithFields は任意の質問テーブルでフォームを生成する。
func NewFormWithFields(userID string, fields []Field) *Form {
	return &Form{
		fields:  fields,
		userID:  userID,
		now:     time.Now,
		answers: newAnswerSet(fields),
	}
}

// Fields はフォームの質問テーブルを返す。
func (f *Form) Fields() []Field {
	return f.fields
}

func (f *Form) field(name string, kinds ...Kind) (Field, error) {
	fld, ok := Lookup(f.fields, name)
	if !ok {
		return Field{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if len(kinds) > 0 && !slices.Contains(kinds, fld.Kind) {
		return Field{}, fmt.Errorf("%w: %q does not accept this kind of answer", ErrInvalidValue, name)
	}
	return fld, nil
}

// SetChoice は3値、選択肢1つ、日付、自由記述の質問の回答を上書きする。
func (f *Form) SetChoice(name, value string) error {
	fld, err := f.field(name, KindTriState, KindEnum, KindDate, KindText)
	if err != nil {
		return err
	}

	switch fld.Kind {
	case KindTriState:
		t, err := ParseTriState(value)
		if err != nil {
			return err
		}
		f.mu.Lock()
		f.answers.tri[name] = t
		f.mu.Unlock()
		return nil
	case KindEnum:
		if value != "" && !fld.HasOption(value) {
			return fmt.Errorf("%w: %q is not an option of %q", ErrInvalidValue, value, name)
		}
	case KindDate:
		if value != "" {
			if _, err := time.Parse(dateLayout, value); err != nil {
				return fmt.Errorf("%w: %q is not a YYYY-MM-DD date", ErrInvalidValue, value)
			}
		}
	}

	f.mu.Lock()
	f.answers.texts[name] = value
	f.mu.Unlock()
	return nil
}

// SetScale は尺度の質問の回答を設定する。範囲外の値は ErrOutOfRange。
func (f *Form) SetScale(name string, n int) error {
	if _, err := f.field(name, KindScale); err != nil {
		return err
	}
	s, err := NewScale(n)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.answers.scales[name] = s
	f.mu.Unlock()
	return nil
}

// Toggle は複数選択の質問で option を選択または解除する。
// 選択済みの選択肢を再度選択しても重複しない。
func (f *Form) Toggle(name, option string, checked bool) error {
	fld, err := f.field(name, KindSet)
	if err != nil {
		return err
	}
	if !fld.HasOption(option) {
		return fmt.Errorf("%w: %q is not an option of %q", ErrInvalidValue, option, name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	current := f.answers.sets[name]
	idx := slices.Index(current, option)
	switch {
	case checked && idx < 0:
		f.answers.sets[name] = append(current, option)
	case !checked && idx >= 0:
		f.answers.sets[name] = slices.Delete(slices.Clone(current), idx, idx+1)
	}
	return nil
}

// Answer は画面からの1回の操作を質問の形式に応じて適用する。
// 複数選択では value が選択肢、checked が選択状態。
func (f *Form) Answer(name, value string, checked bool) error {
	fld, err := f.field(name)
	if err != nil {
		return err
	}

	switch fld.Kind {
	case KindScale:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, value)
		}
		return f.SetScale(name, n)
	case KindSet:
		return f.Toggle(name, value, checked)
	default:
		return f.SetChoice(name, value)
	}
}

// Visible は質問を現在表示すべきかを返す。
func (f *Form) Visible(name string) bool {
	fld, ok := Lookup(f.fields, name)
	if !ok || fld.Hidden {
		return false
	}
	if fld.VisibleWhen == nil {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return fld.VisibleWhen(f.answers)
}

// Answers は現在の回答のコピーを返す。
func (f *Form) Answers() AnswerSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answers.Clone()
}

// Submitting は送信処理中かどうかを返す。
func (f *Form) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// Completed は送信が完了したかどうかを返す。
func (f *Form) Completed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// Submit は回答のスナップショットを保存し、成功したら onComplete を呼び出す。
// 送信処理中は ErrAlreadySubmitting を返し、二重送信を防ぐ。
// 保存に失敗した場合はフォームの状態を保ったままエラーを返す。
func (f *Form) Submit(ctx context.Context, saver Saver, onComplete func(AnswerSet)) error {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return ErrAlreadySubmitting
	}
	if f.completed {
		f.mu.Unlock()
		return ErrAlreadyCompleted
	}
	f.submitting = true
	sub := Submission{
		UserID:     f.userID,
		SurveyDate: surveyDate(f.now()),
		Answers:    f.answers.Clone(),
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	if err := saver.Save(ctx, sub); err != nil {
		return fmt.Errorf("failed to save survey: %w", err)
	}

	f.mu.Lock()
	f.completed = true
	f.mu.Unlock()

	if onComplete != nil {
		onComplete(sub.Answers)
	}
	return nil
}

// surveyDate は回答日（時刻を切り捨てた日付）を返す。
func surveyDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
