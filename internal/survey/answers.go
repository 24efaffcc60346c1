package survey

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrUnknownField は定義されていない質問名が指定された場合に返される。
	ErrUnknownField = errors.New("unknown survey field")
	// ErrOutOfRange は尺度の値が1〜10の範囲外の場合に返される。
	ErrOutOfRange = errors.New("scale value out of range")
	// ErrInvalidValue は質問の形式や選択肢に合わない値が指定された場合に返される。
	ErrInvalidValue = errors.New("invalid answer value")
)

// TriState は「未回答/はい/いいえ」の回答。
type TriState int

const (
	Unanswered TriState = iota
	Yes
	No
)

// String はフォームの値（"si"/"no"、未回答は空文字列）を返す。
func (t TriState) String() string {
	switch t {
	case Yes:
		return "si"
	case No:
		return "no"
	default:
		return ""
	}
}

// Bool は保存用の値を返す。未回答はnil。
func (t TriState) Bool() *bool {
	switch t {
	case Yes:
		v := true
		return &v
	case No:
		v := false
		return &v
	default:
		return nil
	}
}

// ParseTriState はフォームの値を TriState に変換する。
func ParseTriState(s string) (TriState, error) {
	switch s {
	case "si", "sí":
		return Yes, nil
	case "no":
		return No, nil
	case "":
		return Unanswered, nil
	default:
		return Unanswered, fmt.Errorf("%w: %q is not si/no", ErrInvalidValue, s)
	}
}

// Scale は1〜10の尺度。
type Scale int

const (
	MinScale     Scale = 1
	MaxScale     Scale = 10
	DefaultScale Scale = 5
)

// NewScale は範囲内の値のみ受け付ける。
func NewScale(n int) (Scale, error) {
	if n < int(MinScale) || n > int(MaxScale) {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, n)
	}
	return Scale(n), nil
}

// dateLayout は日付の質問の入出力形式。
const dateLayout = "2006-01-02"

// AnswerSet は全質問の回答。値のコピーとして扱い、変更は Form を通して行う。
type AnswerSet struct {
	tri    map[string]TriState
	scales map[string]Scale
	texts  map[string]string // 選択肢1つ、自由記述、日付
	sets   map[string][]string
}

// NewAnswerSet は Fields の初期状態の回答を返す。
func NewAnswerSet() AnswerSet {
	return newAnswerSet(Fields)
}

// newAnswerSet は3値を未回答、尺度を5、複数選択を空、文字列を空にした回答を返す。
func newAnswerSet(fields []Field) AnswerSet {
	a := AnswerSet{
		tri:    make(map[string]TriState),
		scales: make(map[string]Scale),
		texts:  make(map[string]string),
		sets:   make(map[string][]string),
	}
	for _, f := range fields {
		switch f.Kind {
		case KindTriState:
			a.tri[f.Name] = Unanswered
		case KindScale:
			a.scales[f.Name] = DefaultScale
		case KindSet:
			a.sets[f.Name] = []string{}
		default:
			a.texts[f.Name] = ""
		}
	}
	return a
}

// TriState は3値の質問の回答を返す。
func (a AnswerSet) TriState(name string) TriState {
	return a.tri[name]
}

// Scale は尺度の質問の回答を返す。
func (a AnswerSet) Scale(name string) Scale {
	return a.scales[name]
}

// Text は選択肢1つ、自由記述、日付の質問の回答を返す。
func (a AnswerSet) Text(name string) string {
	return a.texts[name]
}

// Set は複数選択の質問で選ばれている選択肢を選択順に返す。
func (a AnswerSet) Set(name string) []string {
	return slices.Clone(a.sets[name])
}

// Selected は複数選択の質問で option が選ばれているかを返す。
func (a AnswerSet) Selected(name, option string) bool {
	return slices.Contains(a.sets[name], option)
}

// Date は日付の質問の回答を返す。未回答はnil。
func (a AnswerSet) Date(name string) *time.Time {
	s := a.texts[name]
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

// Clone は独立したコピーを返す。
func (a AnswerSet) Clone() AnswerSet {
	c := AnswerSet{
		tri:    make(map[string]TriState, len(a.tri)),
		scales: make(map[string]Scale, len(a.scales)),
		texts:  make(map[string]string, len(a.texts)),
		sets:   make(map[string][]string, len(a.sets)),
	}
	for k, v := range a.tri {
		c.tri[k] = v
	}
	for k, v := range a.scales {
		c.scales[k] = v
	}
	for k, v := range a.texts {
		c.texts[k] = v
	}
	for k, v := range a.sets {
		c.sets[k] = slices.Clone(v)
	}
	return c
}

// isEmpty は質問が未回答かどうかを返す。尺度は常に回答済み。
func (a AnswerSet) isEmpty(f Field) bool {
	switch f.Kind {
	case KindTriState:
		return a.tri[f.Name] == Unanswered
	case KindScale:
		return false
	case KindSet:
		return len(a.sets[f.Name]) == 0
	default:
		return a.texts[f.Name] == ""
	}
}
