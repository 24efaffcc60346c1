package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/mindme/internal/middleware"
	"github.com/hitoshi/mindme/internal/model"
	"github.com/hitoshi/mindme/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// ページテンプレート名。
const (
	pageHome       = "home"
	pageAuth       = "auth"
	pageSurvey     = "survey"
	pageSurveyDone = "survey_done"
	pageDashboard  = "dashboard"
	pageLoading    = "loading"
	pageNotFound   = "not_found"
)

var pageNames = []string{
	pageHome, pageAuth, pageSurvey, pageSurveyDone, pageDashboard, pageLoading, pageNotFound,
}

// appName は全ページ共通のアプリケーション名。
const appName = "Mi Bienestar Diario"

// pageData はレイアウトに渡す共通データ。Content はページ固有のデータ。
type pageData struct {
	Title     string
	AppName   string
	Session   session.Snapshot
	CSRFToken string
	CSRFField string
	Error     *model.APIError
	Year      int
	Content   any
}

// Renderer は埋め込みテンプレートからページを描画する。
type Renderer struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("02/01/2006")
	},
	"formatDateTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("02/01/2006 15:04")
	},
	"scaleRange": func() []int {
		return []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	},
}

// NewRenderer はレイアウトと各ページのテンプレートを読み込む。
func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages}, nil
}

// MustNewRenderer はNewRendererを呼び出し、失敗した場合はpanicする。
// テンプレートは埋め込みのため、失敗はビルド時の不備を意味する。
func MustNewRenderer() *Renderer {
	rr, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return rr
}

// Render はページをバッファに描画してからレスポンスに書き込む。
// 描画に失敗した場合は500を返す。
func (rr *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	t, ok := rr.pages[page]
	if !ok {
		slog.Error("unknown page template", slog.String("page", page))
		middleware.WriteInternalServerError(w)
		return
	}

	data.AppName = appName
	data.CSRFToken = middleware.CSRFToken(r.Context())
	data.CSRFField = middleware.CSRFFieldName
	data.Year = time.Now().Year()
	if store := middleware.StoreFromContext(r.Context()); store != nil {
		data.Session = store.Snapshot()
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
