// Package handler はHTTPハンドラーとページの描画を提供する。
package handler

import (
	"net/http"
)

// homeBenefits はトップページに並べる利用のメリット。
var homeBenefits = []string{
	"Mejora tu autoconocimiento emocional",
	"Identifica patrones en tu estado de ánimo",
	"Toma decisiones más informadas sobre tu salud",
	"Facilita la comunicación con profesionales de la salud",
	"Establece y monitorea metas de bienestar",
	"Accede a tus datos desde cualquier dispositivo",
}

// PageHandler は認証や入力を伴わないページを描画する。
type PageHandler struct {
	renderer *Renderer
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(renderer *Renderer) *PageHandler {
	return &PageHandler{renderer: renderer}
}

// Home はトップページを描画する。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageHome, pageData{
		Title:   "Inicio",
		Content: homeBenefits,
	})
}

// NotFound は存在しないパスに404ページを返す。
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusNotFound, pageNotFound, pageData{
		Title: "Página no encontrada",
	})
}

// Loading はセッションの初期化待ちの間に表示するページ。
func (h *PageHandler) Loading(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageLoading, pageData{
		Title: "Cargando",
	})
}
