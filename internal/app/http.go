package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"supernova/api/internal/auth"
	"supernova/api/internal/authpw"
	"supernova/api/internal/backend"
	"supernova/api/internal/export"
	"supernova/api/internal/governance"
	"supernova/api/internal/rfc"
	"supernova/api/internal/routes"
	"supernova/api/internal/social"
	"supernova/api/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	isRead := r.Method == http.MethodGet || r.Method == http.MethodHead

	if isRead && (r.URL.Path == "/healthz" || r.URL.Path == "/api/health") {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if isRead && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/ws/video" {
		hub := s.service.Hub()
		if hub == nil || !hub.Running() {
			writeError(w, http.StatusServiceUnavailable, "RELAY_UNAVAILABLE", "Signaling relay is not running", nil)
			return
		}
		hub.ServeHTTP(w, r)
		return
	}

	if isRead && r.URL.Path == "/api/status" {
		writeJSON(w, http.StatusOK, s.service.Status(r.Context()))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/rfcs" {
		entries, err := s.service.ListRFCs()
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rfcs": entries})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "rfcs" && r.Method == http.MethodGet {
		s.handleRFC(w, r, parts[2:])
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/routes" {
		writeJSON(w, http.StatusOK, map[string]any{"routes": s.service.Routes()})
		return
	}

	// Everything below acts on the viewer's session.
	sessionID := s.sessionID(w, r)
	ctx := r.Context()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/session":
		view, err := s.service.Session(ctx, sessionID)
		s.respond(w, r, http.StatusOK, view, err)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/api/session/login":
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		view, err := s.service.Login(ctx, sessionID, body.Username, body.Password)
		s.respond(w, r, http.StatusOK, view, err)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/api/session/signup":
		var body SignUpInput
		if !s.decode(w, r, &body) {
			return
		}
		view, err := s.service.SignUp(ctx, sessionID, body)
		s.respond(w, r, http.StatusCreated, view, err)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/api/session/logout":
		view, err := s.service.Logout(ctx, sessionID)
		s.respond(w, r, http.StatusOK, view, err)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/api/session/theme":
		theme, err := s.service.ToggleTheme(ctx, sessionID)
		s.respond(w, r, http.StatusOK, map[string]any{"theme": theme}, err)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/api/session/search":
		var body struct {
			Query string `json:"query"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		searches, err := s.service.RecordSearch(ctx, sessionID, body.Query)
		s.respond(w, r, http.StatusOK, map[string]any{"recent_searches": searches}, err)
		return

	case r.Method == http.MethodGet && r.URL.Path == "/api/nav":
		view, err := s.service.Navigation(ctx, sessionID)
		s.respond(w, r, http.StatusOK, view, err)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/api/nav":
		var body struct {
			Label string `json:"label"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		view, err := s.service.Navigate(ctx, sessionID, body.Label)
		s.respond(w, r, http.StatusOK, view, err)
		return

	case r.Method == http.MethodGet && r.URL.Path == "/api/page":
		view, err := s.service.RenderPage(ctx, sessionID, "", r.URL.Query())
		s.respond(w, r, http.StatusOK, view, err)
		return

	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "api" && parts[1] == "pages":
		view, err := s.service.RenderPage(ctx, sessionID, parts[2], r.URL.Query())
		s.respond(w, r, http.StatusOK, view, err)
		return

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "api" && parts[1] == "routes":
		payload := map[string]any{}
		if !s.decode(w, r, &payload) {
			return
		}
		result, err := s.service.CallRoute(ctx, sessionID, parts[2], payload)
		s.respond(w, r, http.StatusOK, map[string]any{"route": parts[2], "result": result}, err)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/api/governance/decide":
		var body DecideInput
		if !s.decode(w, r, &body) {
			return
		}
		decision, err := s.service.Decide(ctx, sessionID, body)
		s.respond(w, r, http.StatusOK, decision, err)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/api/governance/execute":
		var body ExecuteInput
		if !s.decode(w, r, &body) {
			return
		}
		run, err := s.service.Execute(ctx, sessionID, body)
		s.respond(w, r, http.StatusCreated, run, err)
		return

	case r.Method == http.MethodGet && r.URL.Path == "/api/governance/runs":
		view, err := s.service.Runs(ctx, sessionID)
		s.respond(w, r, http.StatusOK, view, err)
		return

	case r.Method == http.MethodGet && r.URL.Path == "/api/users/search":
		users, err := s.service.SearchUsers(ctx, sessionID, r.URL.Query().Get("q"))
		s.respond(w, r, http.StatusOK, map[string]any{"users": users}, err)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/api/messages":
		var body struct {
			To      string `json:"to"`
			Content string `json:"content"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		conversation, err := s.service.AppendMessage(ctx, sessionID, body.To, body.Content)
		s.respond(w, r, http.StatusOK, conversation, err)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/api/rfcs":
		var body PublishRFCInput
		if !s.decode(w, r, &body) {
			return
		}
		revision, err := s.service.PublishRFC(ctx, sessionID, body)
		s.respond(w, r, http.StatusCreated, revision, err)
		return

	case r.Method == http.MethodGet && r.URL.Path == "/api/diary":
		entries, err := s.service.Diary(ctx, sessionID)
		s.respond(w, r, http.StatusOK, map[string]any{"entries": entries}, err)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/api/diary":
		var body DiaryInput
		if !s.decode(w, r, &body) {
			return
		}
		entry, err := s.service.AddDiaryEntry(ctx, sessionID, body)
		s.respond(w, r, http.StatusCreated, entry, err)
		return

	case r.Method == http.MethodGet && r.URL.Path == "/api/diary/export":
		result, err := s.service.ExportDiary(ctx, sessionID, r.URL.Query().Get("format"))
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleRFC(w http.ResponseWriter, r *http.Request, parts []string) {
	id := parts[0]
	switch {
	case len(parts) == 1:
		entry, err := s.service.GetRFC(id)
		s.respond(w, r, http.StatusOK, entry, err)
	case len(parts) == 2 && parts[1] == "history":
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be a non-negative integer", nil)
				return
			}
			limit = parsed
		}
		history, err := s.service.RFCHistory(id, limit)
		s.respond(w, r, http.StatusOK, map[string]any{"id": id, "history": history}, err)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// sessionID returns the session named by a valid cookie, or starts a new
// session and issues its cookie.
func (s *HTTPServer) sessionID(w http.ResponseWriter, r *http.Request) string {
	secret := []byte(s.service.cfg.SessionSecret)
	if cookie, err := r.Cookie(auth.CookieName); err == nil {
		if claims, err := auth.ParseSessionToken(secret, cookie.Value); err == nil {
			return claims.SessionID
		}
	}

	id := util.NewID("sess")
	ttl := s.service.cfg.SessionTTL
	token, err := auth.IssueSessionToken(secret, id, ttl)
	if err != nil {
		s.service.logger.Error("issue session token", zap.Error(err))
		return id
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.service.cfg.Production(),
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return false
	}
	return true
}

func (s *HTTPServer) respond(w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, status, payload)
}

func (s *HTTPServer) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.service.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.service.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Duration("duration", time.Since(started)),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the signaling endpoint take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError emits the error body together with the alert the page shows
// for it.
func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	level := "warning"
	if status >= http.StatusInternalServerError {
		level = "error"
	}
	response := map[string]any{
		"code":  code,
		"error": message,
		"alert": Alert{Level: level, Message: message},
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validation *routes.ValidationError
	if errors.As(err, &validation) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validation.Error(), map[string]any{"field": validation.Field}
	}
	switch {
	case errors.Is(err, routes.ErrUnknownRoute):
		return http.StatusNotFound, "UNKNOWN_ROUTE", err.Error(), nil
	case errors.Is(err, routes.ErrUnavailable), errors.Is(err, ErrConfigurationMissing):
		return http.StatusServiceUnavailable, "CONFIGURATION_MISSING", err.Error(), nil
	case errors.Is(err, routes.ErrStopped):
		return http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error(), nil
	case errors.Is(err, sql.ErrNoRows),
		errors.Is(err, social.ErrUserNotFound),
		errors.Is(err, governance.ErrProposalNotFound),
		errors.Is(err, rfc.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", notFoundMessage(err), nil
	case errors.Is(err, governance.ErrInvalidTransition), errors.Is(err, governance.ErrNotApproved):
		return http.StatusConflict, "CONFLICT", messageOf(err), nil
	case errors.Is(err, authpw.ErrUsernameTaken):
		return http.StatusConflict, "CONFLICT", authpw.ErrUsernameTaken.Error(), nil
	case errors.Is(err, authpw.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	case errors.Is(err, backend.ErrUnreachable):
		return http.StatusBadGateway, "BACKEND_UNREACHABLE", "Backend unreachable", nil
	}
	var failure *RouteFailure
	if errors.As(err, &failure) {
		return http.StatusBadGateway, "ROUTE_FAILURE", failure.Err.Error(), map[string]any{"route": failure.Route}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func notFoundMessage(err error) string {
	if errors.Is(err, sql.ErrNoRows) {
		return "Not found"
	}
	return messageOf(err)
}

// messageOf strips the route failure prefix from err.
func messageOf(err error) string {
	var failure *RouteFailure
	if errors.As(err, &failure) {
		return failure.Err.Error()
	}
	return err.Error()
}
