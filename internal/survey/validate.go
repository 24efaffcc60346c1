package survey

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
)

// requiredMessage は必須の質問が未回答の場合のメッセージ。
const requiredMessage = "Esta pregunta es obligatoria"

// Problem は質問ごとの入力不備。
type Problem struct {
	Field   string
	Message string
}

// Validate は表示中かつ RequiredIf を満たす質問のうち未回答のものを返す。
// 尺度の質問は常に回答済みとして扱う。
func Validate(answers AnswerSet, fields []Field) []Problem {
	var problems []Problem
	for _, f := range fields {
		if f.RequiredIf == nil || f.Hidden {
			continue
		}
		if f.VisibleWhen != nil && !f.VisibleWhen(answers) {
			continue
		}
		if f.RequiredIf(answers) && answers.isEmpty(f) {
			problems = append(problems, Problem{Field: f.Name, Message: requiredMessage})
		}
	}
	return problems
}

// Validate はフォームの現在の回答を検証する。
func (f *Form) Validate() []Problem {
	return Validate(f.Answers(), f.fields)
}

// ApplyValues は送信されたHTMLフォームの値をフォームに適用する。
// キーが存在しない質問は変更しないため、非表示の質問の回答は保持される。
// 複数選択の質問は空の値を1つ含めて送信すると、選択なしとして扱える。
func ApplyValues(form *Form, values url.Values) error {
	var errs []error
	for _, fld := range form.fields {
		posted, ok := values[fld.Name]
		if !ok {
			continue
		}

		switch fld.Kind {
		case KindSet:
			errs = append(errs, applySet(form, fld, posted))
		case KindScale:
			n, err := strconv.Atoi(firstValue(posted))
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s must be an integer", ErrInvalidValue, fld.Name))
				continue
			}
			errs = append(errs, form.SetScale(fld.Name, n))
		default:
			errs = append(errs, form.SetChoice(fld.Name, firstValue(posted)))
		}
	}
	return errors.Join(errs...)
}

func applySet(form *Form, fld Field, posted []string) error {
	wanted := make([]string, 0, len(posted))
	for _, v := range posted {
		if v == "" {
			continue
		}
		if !fld.HasOption(v) {
			return fmt.Errorf("%w: %q is not an option of %q", ErrInvalidValue, v, fld.Name)
		}
		wanted = append(wanted, v)
	}

	for _, o := range fld.Options {
		if err := form.Toggle(fld.Name, o.Value, slices.Contains(wanted, o.Value)); err != nil {
			return err
		}
	}
	return nil
}

func firstValue(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}
