// Package guard はページごとのアクセス制御（ルートガード）を提供する。
//
// 判定はリクエストごとに毎回行い、ログイン中のセッションは判定の前に
// 認証プロバイダーで有効性を確認し直す。セッションストアの初期化が終わっていない間は
// 保護されたページを描画せず、中立的な読み込み画面を返す。
package guard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/mindme/internal/metrics"
	"github.com/hitoshi/mindme/internal/session"
)

// Route はページの経路とアクセス条件を表す。起動時に定義し、変更しない。
type Route struct {
	Path                   string
	Name                   string
	RequiresAuthentication bool
	RequiresAdministrator  bool
}

// Protected はガードの対象となるページかどうかを返す。
func (r Route) Protected() bool {
	return r.RequiresAuthentication || r.RequiresAdministrator
}

var (
	RouteHome      = Route{Path: "/", Name: "home"}
	RouteAuth      = Route{Path: "/auth", Name: "auth"}
	RouteSurvey    = Route{Path: "/survey", Name: "survey", RequiresAuthentication: true}
	RouteDashboard = Route{Path: "/dashboard", Name: "dashboard", RequiresAuthentication: true, RequiresAdministrator: true}
)

// Routes はアプリケーションの全ページ。
var Routes = []Route{RouteHome, RouteAuth, RouteSurvey, RouteDashboard}

// Lookup はパスに対応するRouteを返す。
func Lookup(path string) (Route, bool) {
	for _, r := range Routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// Decision はガードの判定結果。
type Decision int

const (
	DecisionRender Decision = iota
	DecisionLoading
	DecisionRedirectAuth
	DecisionRedirectHome
)

// String はメトリクスのラベル値を返す。
func (d Decision) String() string {
	switch d {
	case DecisionRender:
		return "render"
	case DecisionLoading:
		return "loading"
	case DecisionRedirectAuth:
		return "redirect_auth"
	case DecisionRedirectHome:
		return "redirect_home"
	default:
		return "unknown"
	}
}

// Decide はセッションの状態からページを描画してよいかを判定する。
//
//   - 公開ページは常に描画する
//   - 初期化が終わっていなければ読み込み中
//   - 未ログインなら認証ページへ
//   - 管理者が必要なページで管理者でなければホームへ
func Decide(snap session.Snapshot, route Route) Decision {
	if !route.Protected() {
		return DecisionRender
	}
	if snap.IsLoading {
		return DecisionLoading
	}
	if !snap.LoggedIn() {
		return DecisionRedirectAuth
	}
	if route.RequiresAdministrator && !snap.IsAdmin {
		return DecisionRedirectHome
	}
	return DecisionRender
}

// SessionState はガードが参照するセッションストアの操作。
type SessionState interface {
	Initialize(ctx context.Context)
	Revalidate(ctx context.Context) error
	Settle(ctx context.Context) error
	Snapshot() session.Snapshot
}

// Resolver はリクエストに対応するセッションストアを返す。見つからなければnil。
type Resolver func(r *http.Request) SessionState

// loadingRefreshSeconds は読み込み画面の再読み込み間隔。
const loadingRefreshSeconds = "1"

// Guard はRouteごとのガードミドルウェアを生成する。
type Guard struct {
	resolve Resolver
	metrics metrics.MetricsCollector
	loading http.Handler
}

// New はGuardを生成する。loading は読み込み画面を描画するハンドラー。
func New(resolve Resolver, m metrics.MetricsCollector, loading http.Handler) *Guard {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Guard{resolve: resolve, metrics: m, loading: loading}
}

// Require はrouteの条件を満たす場合にのみ next を呼び出すミドルウェアを返す。
// リダイレクトは303 See Otherで行う。
func (g *Guard) Require(route Route) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := g.evaluate(r, route)
			g.metrics.RecordGuardDecision(route.Name, decision.String())

			switch decision {
			case DecisionRender:
				next.ServeHTTP(w, r)
			case DecisionRedirectAuth:
				http.Redirect(w, r, RouteAuth.Path, http.StatusSeeOther)
			case DecisionRedirectHome:
				http.Redirect(w, r, RouteHome.Path, http.StatusSeeOther)
			default:
				w.Header().Set("Refresh", loadingRefreshSeconds)
				w.Header().Set("Cache-Control", "no-store")
				g.loading.ServeHTTP(w, r)
			}
		})
	}
}

func (g *Guard) evaluate(r *http.Request, route Route) Decision {
	if !route.Protected() {
		return DecisionRender
	}

	state := g.resolve(r)
	if state == nil {
		slog.Error("no session store for request", slog.String("path", r.URL.Path))
		return DecisionLoading
	}

	ctx := r.Context()
	state.Initialize(ctx)
	// 問い合わせに失敗した場合は直前の状態で判定する
	_ = state.Revalidate(ctx)
	if err := state.Settle(ctx); err != nil {
		// リクエストが中断された
		return DecisionLoading
	}
	return Decide(state.Snapshot(), route)
}
