package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/mindme/internal/dashboard"
	"github.com/hitoshi/mindme/internal/middleware"
	"github.com/hitoshi/mindme/internal/model"
)

// DashboardServiceInterface はダッシュボードハンドラーが必要とするサービスインターフェース。
type DashboardServiceInterface interface {
	Overview(ctx context.Context) (*dashboard.Overview, error)
}

// DashboardHandler は管理者向けダッシュボードのHTTPハンドラー。
type DashboardHandler struct {
	service  DashboardServiceInterface
	renderer *Renderer
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface, renderer *Renderer) *DashboardHandler {
	return &DashboardHandler{service: service, renderer: renderer}
}

// dashboardResponse は /api/dashboard のレスポンス。
type dashboardResponse struct {
	Stats  statsResponse         `json:"stats"`
	Recent []recentResponse      `json:"recent"`
	ByUser []userSummaryResponse `json:"by_user"`
}

type statsResponse struct {
	TotalResponses    int     `json:"total_responses"`
	TotalUsers        int     `json:"total_users"`
	AverageDepression float64 `json:"average_depression"`
	AverageAnxiety    float64 `json:"average_anxiety"`
}

type recentResponse struct {
	ID                string    `json:"id"`
	SurveyDate        string    `json:"survey_date"`
	DepressionLevel   int       `json:"depression_level"`
	AnxietyLevel      int       `json:"anxiety_level"`
	IrritabilityLevel int       `json:"irritability_level"`
	CreatedAt         time.Time `json:"created_at"`
}

type userSummaryResponse struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	ResponseCount  int    `json:"response_count"`
	LastSurveyDate string `json:"last_survey_date"`
}

// Page はダッシュボードを描画する。
// GET /dashboard
func (h *DashboardHandler) Page(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		slog.Error("failed to load dashboard", slog.String("error", err.Error()))
		h.renderer.Render(w, r, http.StatusInternalServerError, pageDashboard, pageData{
			Title:   "Dashboard",
			Error:   model.NewInternalError(),
			Content: &dashboard.Overview{},
		})
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageDashboard, pageData{
		Title:   "Dashboard",
		Content: overview,
	})
}

// Overview は集計データをJSONで返す。
// GET /api/dashboard
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		slog.Error("failed to load dashboard", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(toDashboardResponse(overview))
}

func toDashboardResponse(o *dashboard.Overview) dashboardResponse {
	resp := dashboardResponse{
		Stats: statsResponse{
			TotalResponses:    o.Stats.TotalResponses,
			TotalUsers:        o.Stats.TotalUsers,
			AverageDepression: o.Stats.AverageDepression,
			AverageAnxiety:    o.Stats.AverageAnxiety,
		},
		Recent: make([]recentResponse, 0, len(o.Recent)),
		ByUser: make([]userSummaryResponse, 0, len(o.ByUser)),
	}
	for _, s := range o.Recent {
		resp.Recent = append(resp.Recent, recentResponse{
			ID:                s.ID,
			SurveyDate:        s.SurveyDate.Format(time.DateOnly),
			DepressionLevel:   s.DepressionLevel,
			AnxietyLevel:      s.AnxietyLevel,
			IrritabilityLevel: s.IrritabilityLevel,
			CreatedAt:         s.CreatedAt,
		})
	}
	for _, u := range o.ByUser {
		resp.ByUser = append(resp.ByUser, userSummaryResponse{
			UserID:         u.UserID,
			Email:          u.Email,
			ResponseCount:  u.ResponseCount,
			LastSurveyDate: u.LastSurveyDate.Format(time.DateOnly),
		})
	}
	return resp
}
