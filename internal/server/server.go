package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"filevault/internal/app"
	"filevault/internal/ratelimit"
	"filevault/internal/util"
	"filevault/pkg/domain"
)

const tokenHeader = "X-Token"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                       *app.App
	RedisAddr                 string
	RedisPassword             string
	SignupRateLimitPerMinute  int
	ConnectRateLimitPerMinute int
}

// Server exposes the HTTP endpoints for the backend.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	signupLimiter  *ratelimit.FixedWindowLimiter
	connectLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	signupLimit := cfg.SignupRateLimitPerMinute
	if signupLimit <= 0 {
		signupLimit = 5
	}
	connectLimit := cfg.ConnectRateLimitPerMinute
	if connectLimit <= 0 {
		connectLimit = 10
	}
	rateWindow := time.Minute
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "filevault:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, rateWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	signupLimiter, err := newLimiter("signup", signupLimit)
	if err != nil {
		return nil, err
	}
	connectLimiter, err := newLimiter("connect", connectLimit)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		signupLimiter:  signupLimiter,
		connectLimiter: connectLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with middleware applied.
func (s *Server) Router() http.Handler {
	handler := util.WithSecurityHeaders(util.WithCORS(s.mux))
	handler = util.WithRequestLog("filevault", handler)
	return util.WithRequestID(handler)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/stats", s.handleStats)

	s.mux.HandleFunc("/api/users", s.handleRegister)
	s.mux.Handle("/api/users/me", s.authenticated(s.handleMe))

	s.mux.HandleFunc("/api/connect", s.handleConnect)
	s.mux.HandleFunc("/api/disconnect", s.handleDisconnect)

	s.mux.Handle("/api/files", s.authenticated(s.handleFiles))
	s.mux.Handle("/api/files/", s.authenticated(s.handleFileByID))
}

// authHandler is a handler that runs only for a resolved user.
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

// authenticated resolves the session token before any other validation runs.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.app.UserFromToken(r.Header.Get(tokenHeader))
		if err != nil {
			s.audit(r, "authorize", "fail")
			writeAppError(w, r, err)
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	redisOK, dbOK := s.app.Status()
	writeJSON(w, http.StatusOK, map[string]bool{"redis": redisOK, "db": dbOK})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	users, files, err := s.app.Stats()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"users": users, "files": files})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		s.audit(r, "register", "rate_limited")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.Register(req.Email, req.Password)
	if err != nil {
		s.audit(r, "register", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "register", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Email: user.Email})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Email: user.Email})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.connectLimiter, "too many login attempts") {
		s.audit(r, "connect", "rate_limited")
		return
	}
	token, err := s.app.Connect(r.Header.Get("Authorization"))
	if err != nil {
		s.audit(r, "connect", "fail")
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "connect", "success")
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if err := s.app.Disconnect(r.Header.Get(tokenHeader)); err != nil {
		s.audit(r, "disconnect", "fail")
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "disconnect", "success")
	w.WriteHeader(http.StatusNoContent)
}

// /api/files
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleUpload(w, r, user)
	case http.MethodGet:
		s.handleList(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req uploadRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 32<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	file, err := s.app.CreateFile(r.Context(), user.ID, app.CreateFileParams{
		Name:     req.Name,
		Type:     req.Type,
		ParentID: req.ParentID,
		IsPublic: req.IsPublic,
		Data:     req.Data,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, user domain.User) {
	parentID := r.URL.Query().Get("parentId")
	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			page = n
		}
	}
	files, err := s.app.ListFiles(user.ID, parentID, page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// /api/files/{id} and /api/files/{id}/publish|unpublish
func (s *Server) handleFileByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/files/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "publish":
			s.handleSetVisibility(w, r, user, id, true)
		case "unpublish":
			s.handleSetVisibility(w, r, user, id, false)
		default:
			http.NotFound(w, r)
		}
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	file, err := s.app.GetFile(user.ID, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleSetVisibility(w http.ResponseWriter, r *http.Request, user domain.User, id string, public bool) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	file, err := s.app.SetFileVisibility(user.ID, id, public)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visibilityResponse{ID: file.ID, IsPublic: file.IsPublic})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type uploadRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	ParentID string `json:"parentId"`
	IsPublic bool   `json:"isPublic"`
	Data     string `json:"data"`
}

type visibilityResponse struct {
	ID       string `json:"id"`
	IsPublic bool   `json:"isPublic"`
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps core errors to their stable status codes.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, app.ErrUnauthorized.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, app.ErrNotFound.Error())
	case app.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("internal error", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + clientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", clientIP(r),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func clientIP(r *http.Request) string {
	if xfwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xfwd != "" {
		parts := strings.Split(xfwd, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
