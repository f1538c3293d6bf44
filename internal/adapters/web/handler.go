// Package web exposes the CRM over a JSON HTTP API built on gin.
package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kolcrm/internal/core"
	"kolcrm/internal/derive"
	"kolcrm/internal/export"
	"kolcrm/internal/notify"
	"kolcrm/pkg/domain"
)

// Handler serves the API routes.
type Handler struct {
	svc      *core.Service
	exporter *export.Exporter
	flash    *notify.Flash
	sessions *Sessions
	login    *LoginMiddlewareBuilder
	passcode string
	logger   core.Logger
	now      func() time.Time
	registry *prometheus.Registry
}

// Option configures a Handler.
type Option func(*Handler)

// WithExporter enables the stored-export routes.
func WithExporter(e *export.Exporter) Option {
	return func(h *Handler) { h.exporter = e }
}

// WithFlash serves pending confirmation messages from f.
func WithFlash(f *notify.Flash) Option {
	return func(h *Handler) { h.flash = f }
}

// WithPasscode requires a login with passcode before any other route.
func WithPasscode(passcode string) Option {
	return func(h *Handler) { h.passcode = passcode }
}

// WithLogger sets the request error logger.
func WithLogger(l core.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock overrides the clock used for today's date and sessions.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithRegistry records HTTP metrics into reg and serves it on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(h *Handler) { h.registry = reg }
}

// NewHandler builds a handler over svc.
func NewHandler(svc *core.Service, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: core.NopLogger(), now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.sessions = NewSessions(0, h.now)
	h.login = NewLoginMiddlewareBuilder(h.passcode, h.sessions).IgnorePaths("/api/v1/login", "/metrics")
	return h
}

// RegisterRoutes mounts the middleware chain and every route on server.
func (h *Handler) RegisterRoutes(server *gin.Engine) {
	if h.registry != nil {
		server.Use(NewMetricsBuilder(h.registry).Build())
		server.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))
	}
	server.Use(h.login.Build())

	g := server.Group("/api/v1")
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)
	g.GET("/meta", h.Meta)

	g.GET("/experts", h.ListExperts)
	g.POST("/experts/import", h.ImportExperts)
	g.POST("/experts/seed", h.SeedRoster)
	g.POST("/experts/batch/level", h.BatchLevel)
	g.POST("/experts/batch/delete", h.BatchDelete)
	g.GET("/experts/:id", h.ExpertDetail)
	g.DELETE("/experts/:id", h.DeleteExpert)
	g.POST("/experts/:id/visits", h.RecordVisit)

	g.DELETE("/visits/:id", h.DeleteVisit)
	g.DELETE("/visits/:id/intel/:field", h.ClearIntel)

	g.GET("/dashboard", h.Dashboard)
	g.GET("/intel", h.Intel)

	g.GET("/notifications", h.Notifications)
	g.DELETE("/notifications", h.DismissNotifications)

	g.GET("/export/visits.csv", h.DownloadVisits)
	g.GET("/export/intel/:field", h.DownloadIntel)
	g.GET("/exports", h.ListExports)
	g.POST("/exports/visits", h.StoreVisits)
	g.POST("/exports/intel/:field", h.StoreIntel)
}

func (h *Handler) Login(ctx *gin.Context) {
	var req LoginReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, http.StatusBadRequest, CodeBadRequest, "参数错误")
		return
	}
	if !h.login.check(req.Passcode) {
		fail(ctx, http.StatusUnauthorized, CodeUnauthorized, "密码错误")
		return
	}
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(SessionCookie, h.sessions.Issue(), 0, "/", "", false, true)
	ok(ctx, nil)
}

func (h *Handler) Logout(ctx *gin.Context) {
	if token, err := ctx.Cookie(SessionCookie); err == nil {
		h.sessions.Revoke(token)
	}
	ctx.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	ok(ctx, nil)
}

func (h *Handler) Meta(ctx *gin.Context) {
	ok(ctx, newMeta())
}

func (h *Handler) snapshot(ctx *gin.Context) (derive.Snapshot, bool) {
	snap, err := h.svc.Snapshot(ctx.Request.Context())
	if err != nil {
		h.failErr(ctx, err)
		return derive.Snapshot{}, false
	}
	return snap, true
}

func (h *Handler) ListExperts(ctx *gin.Context) {
	order, err := derive.ParseSortOrder(ctx.Query("sort"))
	if err != nil {
		fail(ctx, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	snap, found := h.snapshot(ctx)
	if !found {
		return
	}
	ok(ctx, newExperts(derive.ExpertList(snap, ctx.Query("q"), order)))
}

func (h *Handler) ExpertDetail(ctx *gin.Context) {
	snap, found := h.snapshot(ctx)
	if !found {
		return
	}
	id := ctx.Param("id")
	expert, exists := snap.FindExpert(id)
	if !exists {
		h.failErr(ctx, core.ErrNotFound{Entity: core.EntityExpert, ID: id})
		return
	}
	ok(ctx, ExpertDetail{Expert: newExpert(expert), History: newVisits(derive.History(snap, id))})
}

func (h *Handler) ImportExperts(ctx *gin.Context) {
	var req ImportReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, http.StatusBadRequest, CodeBadRequest, "参数错误")
		return
	}
	res, err := h.svc.ImportExperts(ctx.Request.Context(), req.Text)
	if err != nil {
		h.failErr(ctx, err)
		return
	}
	ok(ctx, gin.H{"count": res.Count(), "experts": newExperts(res.Experts)})
}

func (h *Handler) SeedRoster(ctx *gin.Context) {
	n, err := h.svc.SeedDefaultRoster(ctx.Request.Context())
	if err != nil {
		h.failErr(ctx, err)
		return
	}
	ok(ctx, gin.H{"count": n})
}

func (h *Handler) DeleteExpert(ctx *gin.Context) {
	deleted, err := h.svc.DeleteExpert(ctx.Request.Context(), ctx.Param("id"), confirmParam(ctx))
	if err != nil {
		h.failErr(ctx, err)
		return
	}
	ok(ctx, gin.H{"deleted": deleted})
}

func (h *Handler) RecordVisit(ctx *gin.Context) {
	var req VisitReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, http.StatusBadRequest, CodeBadRequest, "参数错误")
		return
	}
	visit, expert, err := h.svc.RecordVisit(ctx.Request.Context(), ctx.Param("id"), req.input())
	if err != nil {
		h.failErr(ctx, err)
		return
	}
	ok(ctx, gin.H{"visit": newVisit(visit), "expert": newExpert(expert)})
}

func (h *Handler) DeleteVisit(ctx *gin.Context) {
	expert, deleted, err := h.svc.DeleteVisit(ctx.Request.Context(), ctx.Param("id"), confirmParam(ctx))
	if err != nil {
		h.failErr(ctx, err)
		return
	}
	data := gin.H{"deleted": deleted}
	if deleted && expert.ID != "" {
		data["expert"] = newExpert(expert)
	}
	ok(ctx, data)
}

func (h *Handler) ClearIntel(ctx *gin.Context) {
	visit, err := h.svc.ClearIntelField(ctx.Request.Context(), ctx.Param("id"), domain.IntelField(ctx.Param("field")))
	if err != nil {
		h.failErr(ctx, err)
		return
	}
	ok(ctx, newVisit(visit))
}

func (h *Handler) BatchLevel(ctx *gin.Context) {
	var req BatchLevelReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, http.StatusBadRequest, CodeBadRequest, "参数错误")
		return
	}
	res, err := h.svc.BatchUpdateLevel(ctx.Request.Context(), req.IDs, domain.Level(req.Level), req.Note)
	if err != nil {
		h.failErr(ctx, err)
		return
	}
	ok(ctx, gin.H{"experts": newExperts(res.Experts), "visits": newVisits(res.Visits)})
}

func (h *Handler) BatchDelete(ctx *gin.Context) {
	var req BatchDeleteReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, http.StatusBadRequest, CodeBadRequest, "参数错误")
		return
	}
	expected := fmt.Sprintf(core.PromptDeleteExperts, req.Confirm)
	confirm := func(prompt string) bool { return prompt == expected }
	n, err := h.svc.BatchDeleteExperts(ctx.Request.Context(), req.IDs, confirm)
	if err != nil {
		h.failErr(ctx, err)
		return
	}
	ok(ctx, gin.H{"deleted": n})
}

// confirmParam reads ?confirm=true. Anything else declines.
func confirmParam(ctx *gin.Context) core.ConfirmFunc {
	if ctx.Query("confirm") != "true" {
		return nil
	}
	return core.Confirmed(true)
}

func (h *Handler) Dashboard(ctx *gin.Context) {
	snap, found := h.snapshot(ctx)
	if !found {
		return
	}
	ok(ctx, derive.BuildDashboard(snap, h.now()))
}

func (h *Handler) Intel(ctx *gin.Context) {
	var fields []domain.IntelField
	if raw := ctx.Query("field"); raw != "" {
		f, err := domain.ParseIntelField(raw)
		if err != nil {
			fail(ctx, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		fields = append(fields, f)
	}
	snap, found := h.snapshot(ctx)
	if !found {
		return
	}
	items := derive.IntelFeed(snap, ctx.Query("q"), fields...)
	if items == nil {
		items = []derive.IntelItem{}
	}
	ok(ctx, items)
}

func (h *Handler) Notifications(ctx *gin.Context) {
	events := []notify.Event{}
	if h.flash != nil {
		events = append(events, h.flash.Active()...)
	}
	ok(ctx, events)
}

func (h *Handler) DismissNotifications(ctx *gin.Context) {
	if h.flash != nil {
		h.flash.Dismiss()
	}
	ok(ctx, nil)
}

func (h *Handler) DownloadVisits(ctx *gin.Context) {
	snap, found := h.snapshot(ctx)
	if !found {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteVisitsCSV(&buf, snap); err != nil {
		h.failErr(ctx, err)
		return
	}
	attachment(ctx, export.VisitsFilename(domain.DateOf(h.now())), "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) DownloadIntel(ctx *gin.Context) {
	field, err := domain.ParseIntelField(ctx.Param("field"))
	if err != nil {
		fail(ctx, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	snap, found := h.snapshot(ctx)
	if !found {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteIntelText(&buf, snap, field); err != nil {
		h.failErr(ctx, err)
		return
	}
	if buf.Len() == 0 {
		fail(ctx, http.StatusNotFound, CodeNotFound, "暂无"+field.Label())
		return
	}
	attachment(ctx, export.IntelFilename(field), "text/plain; charset=utf-8", buf.Bytes())
}

func attachment(ctx *gin.Context, filename, contentType string, data []byte) {
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	ctx.Data(http.StatusOK, contentType, data)
}

var errNoExporter = errors.New("export storage not configured")

func (h *Handler) requireExporter(ctx *gin.Context) bool {
	if h.exporter == nil {
		fail(ctx, http.StatusServiceUnavailable, CodeSystemError, errNoExporter.Error())
		return false
	}
	return true
}

func (h *Handler) ListExports(ctx *gin.Context) {
	if !h.requireExporter(ctx) {
		return
	}
	kind := ctx.Query("kind")
	if kind != "" && kind != export.KindVisits && kind != export.KindIntel {
		fail(ctx, http.StatusBadRequest, CodeBadRequest, "unknown export kind "+kind)
		return
	}
	infos, err := h.exporter.List(ctx.Request.Context(), kind)
	if err != nil {
		h.failErr(ctx, err)
		return
	}
	ok(ctx, infos)
}

func (h *Handler) StoreVisits(ctx *gin.Context) {
	if !h.requireExporter(ctx) {
		return
	}
	snap, found := h.snapshot(ctx)
	if !found {
		return
	}
	info, err := h.exporter.StoreVisitsCSV(ctx.Request.Context(), snap)
	if err != nil {
		h.failErr(ctx, err)
		return
	}
	ok(ctx, info)
}

func (h *Handler) StoreIntel(ctx *gin.Context) {
	if !h.requireExporter(ctx) {
		return
	}
	field, err := domain.ParseIntelField(ctx.Param("field"))
	if err != nil {
		fail(ctx, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	snap, found := h.snapshot(ctx)
	if !found {
		return
	}
	info, err := h.exporter.StoreIntelText(ctx.Request.Context(), snap, field)
	if err != nil {
		h.failErr(ctx, err)
		return
	}
	ok(ctx, info)
}
