package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/mindme/internal/middleware"
	"github.com/hitoshi/mindme/internal/model"
	"github.com/hitoshi/mindme/internal/survey"
)

// SurveyHandler はアンケートの表示・回答・送信のHTTPハンドラー。
// 入力中の回答はクライアントごとの下書きとして保持する。
type SurveyHandler struct {
	drafts   *survey.Drafts
	saver    survey.Saver
	renderer *Renderer
}

// NewSurveyHandler はSurveyHandlerを生成する。
func NewSurveyHandler(drafts *survey.Drafts, saver survey.Saver, renderer *Renderer) *SurveyHandler {
	return &SurveyHandler{
		drafts:   drafts,
		saver:    saver,
		renderer: renderer,
	}
}

// surveyView はアンケートページの表示内容。
type surveyView struct {
	Sections      []sectionView
	Submitting    bool
	SafetyMessage string
}

type sectionView struct {
	survey.Section
	Fields []fieldView
}

// fieldView は1つの質問の表示内容と現在の回答。
type fieldView struct {
	survey.Field
	Value    string
	Scale    int
	Selected map[string]bool
	Problem  string
}

func (f fieldView) IsTriState() bool { return f.Kind == survey.KindTriState }
func (f fieldView) IsScale() bool    { return f.Kind == survey.KindScale }
func (f fieldView) IsEnum() bool     { return f.Kind == survey.KindEnum }
func (f fieldView) IsSet() bool      { return f.Kind == survey.KindSet }
func (f fieldView) IsDate() bool     { return f.Kind == survey.KindDate }

// YesText は「はい」ボタンの表示文字列。
func (f fieldView) YesText() string {
	if f.YesLabel != "" {
		return f.YesLabel
	}
	return "Sí"
}

// KindName はテンプレートの data-kind 属性に出力する形式名。
func (f fieldView) KindName() string {
	switch f.Kind {
	case survey.KindTriState:
		return "tristate"
	case survey.KindScale:
		return "scale"
	case survey.KindEnum:
		return "enum"
	case survey.KindSet:
		return "set"
	case survey.KindDate:
		return "date"
	default:
		return "text"
	}
}

// Show は新しい下書きでアンケートを表示する。
// GET /survey
func (h *SurveyHandler) Show(w http.ResponseWriter, r *http.Request) {
	form, ok := h.mount(w, r)
	if !ok {
		return
	}
	h.renderForm(w, r, http.StatusOK, form, nil, nil)
}

// Answer は画面からの1回の操作を下書きに適用して再表示する。
// ボタンの answer=<質問>=<値>、または field・value・checked で操作を指定する。
// 同じフォームで送信された他の回答も先に適用する。
// POST /survey/answer
func (h *SurveyHandler) Answer(w http.ResponseWriter, r *http.Request) {
	form, ok := h.draft(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderForm(w, r, http.StatusBadRequest, form, nil, model.NewInvalidAnswerError("", "formulario ilegible"))
		return
	}

	var apiErr *model.APIError
	if err := survey.ApplyValues(form, r.PostForm); err != nil {
		apiErr = answerError("", err)
	}

	if name, value, checked, ok := parseAnswer(r.PostForm); ok {
		if err := form.Answer(name, value, checked); err != nil {
			apiErr = answerError(name, err)
		}
	}

	status := http.StatusOK
	if apiErr != nil {
		slog.Warn("invalid survey answer",
			slog.String("field", apiErr.Field),
			slog.String("message", apiErr.Message),
		)
		status = http.StatusUnprocessableEntity
	}
	h.renderForm(w, r, status, form, nil, apiErr)
}

// Submit は送信された回答を適用して保存し、完了画面を表示する。
// 保存に失敗した場合は入力を保ったままフォームを再表示する。
// POST /survey
func (h *SurveyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	form, ok := h.draft(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderForm(w, r, http.StatusBadRequest, form, nil, model.NewInvalidAnswerError("", "formulario ilegible"))
		return
	}

	if err := survey.ApplyValues(form, r.PostForm); err != nil {
		h.renderForm(w, r, http.StatusUnprocessableEntity, form, nil, answerError("", err))
		return
	}
	if problems := form.Validate(); len(problems) > 0 {
		h.renderForm(w, r, http.StatusUnprocessableEntity, form, problems, nil)
		return
	}

	userID, _ := middleware.UserIDFromContext(r.Context())
	err := form.Submit(r.Context(), h.saver, func(survey.AnswerSet) {
		slog.Info("survey completed", slog.String("user_id", userID))
	})
	switch {
	case err == nil, errors.Is(err, survey.ErrAlreadyCompleted):
		h.renderer.Render(w, r, http.StatusOK, pageSurveyDone, pageData{
			Title:   "Encuesta Completada",
			Content: time.Now(),
		})
	case errors.Is(err, survey.ErrAlreadySubmitting):
		h.renderForm(w, r, http.StatusConflict, form, nil, model.NewSurveyInProgressError())
	default:
		slog.Error("failed to submit survey",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		h.renderForm(w, r, http.StatusInternalServerError, form, nil, model.NewInternalError())
	}
}

// mount は画面表示のたびにクライアントの下書きを新しくする。
func (h *SurveyHandler) mount(w http.ResponseWriter, r *http.Request) (*survey.Form, bool) {
	clientID, userID, ok := surveyOwner(w, r)
	if !ok {
		return nil, false
	}
	return h.drafts.Mount(clientID, userID), true
}

// draft はクライアントの入力中の下書きを返す。
func (h *SurveyHandler) draft(w http.ResponseWriter, r *http.Request) (*survey.Form, bool) {
	clientID, userID, ok := surveyOwner(w, r)
	if !ok {
		return nil, false
	}
	return h.drafts.Get(clientID, userID), true
}

// surveyOwner はガードを通過したリクエストのクライアントIDとユーザーIDを返す。
func surveyOwner(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", "", false
	}
	return middleware.ClientIDFromContext(r.Context()), userID, true
}

func (h *SurveyHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, form *survey.Form, problems []survey.Problem, apiErr *model.APIError) {
	h.renderer.Render(w, r, status, pageSurvey, pageData{
		Title:   "Encuesta Diaria",
		Error:   apiErr,
		Content: buildSurveyView(form, problems),
	})
}

// buildSurveyView は表示中の質問だけを区分ごとに並べる。
func buildSurveyView(form *survey.Form, problems []survey.Problem) surveyView {
	answers := form.Answers()
	problemByField := make(map[string]string, len(problems))
	for _, p := range problems {
		problemByField[p.Field] = p.Message
	}

	view := surveyView{
		Submitting:    form.Submitting(),
		SafetyMessage: survey.SafetyMessage,
	}
	for _, sec := range survey.Sections {
		sv := sectionView{Section: sec}
		for _, f := range survey.InSection(form.Fields(), sec.ID) {
			if !form.Visible(f.Name) {
				continue
			}
			fv := fieldView{Field: f, Problem: problemByField[f.Name]}
			switch f.Kind {
			case survey.KindTriState:
				fv.Value = answers.TriState(f.Name).String()
			case survey.KindScale:
				fv.Scale = int(answers.Scale(f.Name))
			case survey.KindSet:
				fv.Selected = make(map[string]bool, len(f.Options))
				for _, o := range f.Options {
					fv.Selected[o.Value] = answers.Selected(f.Name, o.Value)
				}
			default:
				fv.Value = answers.Text(f.Name)
			}
			sv.Fields = append(sv.Fields, fv)
		}
		if len(sv.Fields) > 0 {
			view.Sections = append(view.Sections, sv)
		}
	}
	return view
}

// parseAnswer は送信された操作を取り出す。checked の省略は選択とみなす。
func parseAnswer(values url.Values) (name, value string, checked, ok bool) {
	if op := values.Get("answer"); op != "" {
		name, value, ok = strings.Cut(op, "=")
		return name, value, true, ok && name != ""
	}

	name = values.Get("field")
	if name == "" {
		return "", "", false, false
	}
	checked = true
	if raw := values.Get("checked"); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			checked = b
		}
	}
	return name, values.Get("value"), checked, true
}

// answerError はフォームエンジンのエラーを利用者向けのエラーに変換する。
func answerError(field string, err error) *model.APIError {
	switch {
	case errors.Is(err, survey.ErrOutOfRange):
		return model.NewInvalidAnswerError(field, "el valor debe estar entre 1 y 10")
	case errors.Is(err, survey.ErrUnknownField):
		return model.NewInvalidAnswerError(field, "pregunta desconocida")
	default:
		return model.NewInvalidAnswerError(field, "opción no disponible")
	}
}
