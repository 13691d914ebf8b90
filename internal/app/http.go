package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agenda/api/internal/auth"
	"agenda/api/internal/search"
	"agenda/api/internal/store"
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

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
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
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		var body struct {
			Email       string `json:"email"`
			DisplayName string `json:"displayName"`
			Password    string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Signup(r.Context(), body.Email, body.DisplayName, body.Password)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Login(r.Context(), body.Email, body.Password)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		session := s.optionalSession(r)
		if session == nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"email":         session.Email,
			"role":          session.Role,
		})
		return
	}

	// Public read surface: the calendar, search and the ICS feed work
	// without a session and show published events only.
	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/export/calendar" {
		result, err := s.service.ExportCalendar(r.Context(), strings.TrimSpace(r.URL.Query().Get("groupId")))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		_, _ = w.Write(result.Data)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "events" {
		s.handleEvents(w, r, parts)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "departments" {
		s.handleDepartments(w, r, session, parts)
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "groups" {
		s.handleGroups(w, r, session, parts)
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "registration-periods" {
		s.handlePeriods(w, r, session, parts)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/import" {
		s.handleImport(w, r, session)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/jobs" {
		items, err := s.service.ListJobsFor(r.Context(), session)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobPayloads(items)})
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "jobs" && r.Method == http.MethodGet {
		job, err := s.service.GetJobFor(r.Context(), session, parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job": jobPayload(job)})
		return
	}

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "users" && parts[3] == "role" && r.Method == http.MethodPut {
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.SetUserRole(r.Context(), session, parts[2], body.Role)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{
			"id":          user.ID,
			"email":       user.Email,
			"displayName": user.DisplayName,
			"role":        user.Role,
		}})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		Text:        strings.TrimSpace(r.URL.Query().Get("q")),
		FilterType:  search.ResultType(strings.TrimSpace(r.URL.Query().Get("type"))),
		FilterState: strings.TrimSpace(r.URL.Query().Get("state")),
		Limit:       20,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		q.Limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		q.Offset = parsed
	}
	writeJSON(w, http.StatusOK, s.service.SearchEvents(q))
}

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request, parts []string) {
	// GET /api/events and GET /api/events/{id} work anonymously; every
	// mutation needs a session.
	if r.Method == http.MethodGet && len(parts) == 2 {
		session := s.optionalSession(r)
		filter := store.EventFilter{
			AuthorID: strings.TrimSpace(r.URL.Query().Get("authorId")),
			JobID:    strings.TrimSpace(r.URL.Query().Get("jobId")),
			GroupID:  strings.TrimSpace(r.URL.Query().Get("groupId")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("state")); raw != "" {
			filter.States = []store.EventState{store.EventState(raw)}
		}
		items, err := s.service.ListEventsFor(r.Context(), session, filter)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": eventPayloads(items)})
		return
	}

	if r.Method == http.MethodGet && len(parts) == 3 {
		detail, err := s.service.GetEventDetail(r.Context(), s.optionalSession(r), parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payload := eventPayload(detail.Event)
		payload["children"] = eventPayloads(detail.Children)
		writeJSON(w, http.StatusOK, map[string]any{"event": payload})
		return
	}

	if r.Method == http.MethodGet && len(parts) == 4 && parts[3] == "pdf" {
		result, err := s.service.ExportEventPDF(r.Context(), s.optionalSession(r), parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		_, _ = w.Write(result.Data)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodPost && len(parts) == 2 {
		var body EventInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		event, err := s.service.CreateEvent(r.Context(), session, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"event": eventPayload(event)})
		return
	}

	if len(parts) == 3 {
		eventID := parts[2]
		switch r.Method {
		case http.MethodPut:
			var body EventInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			event, err := s.service.UpdateEvent(r.Context(), session, eventID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"event": eventPayload(event)})
			return
		case http.MethodDelete:
			if err := s.service.DeleteEvent(r.Context(), session, eventID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && r.Method == http.MethodPost {
		eventID := parts[2]
		switch parts[3] {
		case "request-review":
			event, err := s.service.RequestReview(r.Context(), session, eventID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"event": eventPayload(event)})
			return
		case "publish":
			result, err := s.service.Publish(r.Context(), session, eventID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, promotionPayload(result))
			return
		case "refuse":
			var body struct {
				Reason string `json:"reason"`
			}
			_ = decodeBody(r, &body)
			event, err := s.service.Refuse(r.Context(), session, eventID, body.Reason)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"event": eventPayload(event)})
			return
		case "normalize-audience":
			event, err := s.service.NormalizeAudience(r.Context(), session, eventID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"event": eventPayload(event)})
			return
		case "revision":
			event, err := s.service.CreateRevision(r.Context(), session, eventID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"event": eventPayload(event)})
			return
		case "clone":
			event, err := s.service.CloneEvent(r.Context(), session, eventID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"event": eventPayload(event)})
			return
		}
	}

	if len(parts) == 4 && parts[3] == "history" && r.Method == http.MethodGet {
		commits, err := s.service.EventHistory(r.Context(), session, parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": commits})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDepartments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListDepartments(r.Context())
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"departments": departmentPayloads(items)})
			return
		case http.MethodPost:
			var body DepartmentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.CreateDepartment(r.Context(), session, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"department": departmentPayload(item)})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 3 {
		departmentID := parts[2]
		switch r.Method {
		case http.MethodGet:
			item, err := s.service.GetDepartment(r.Context(), departmentID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"department": departmentPayload(item)})
			return
		case http.MethodPut:
			var body DepartmentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.UpdateDepartment(r.Context(), session, departmentID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"department": departmentPayload(item)})
			return
		case http.MethodDelete:
			if err := s.service.DeleteDepartment(r.Context(), session, departmentID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleGroups(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListGroups(r.Context(), session)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"groups": groupPayloads(items)})
			return
		case http.MethodPost:
			var body GroupInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.CreateGroup(r.Context(), session, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"group": groupPayload(item)})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 3 {
		groupID := parts[2]
		switch r.Method {
		case http.MethodGet:
			item, err := s.service.GetGroup(r.Context(), session, groupID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"group": groupPayload(item)})
			return
		case http.MethodPut:
			var body GroupInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.UpdateGroup(r.Context(), session, groupID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"group": groupPayload(item)})
			return
		case http.MethodDelete:
			if err := s.service.DeleteGroup(r.Context(), session, groupID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	if len(parts) == 5 && parts[3] == "events" {
		groupID, eventID := parts[2], parts[4]
		switch r.Method {
		case http.MethodPost:
			if err := s.service.LinkEventToGroup(r.Context(), session, eventID, groupID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		case http.MethodDelete:
			if err := s.service.UnlinkEventFromGroup(r.Context(), session, eventID, groupID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePeriods(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListRegistrationPeriods(r.Context())
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"periods": periodPayloads(items)})
			return
		case http.MethodPost:
			var body PeriodInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.CreateRegistrationPeriod(r.Context(), session, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"period": periodPayload(item)})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 3 {
		periodID := parts[2]
		switch r.Method {
		case http.MethodPut:
			var body PeriodInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.UpdateRegistrationPeriod(r.Context(), session, periodID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"period": periodPayload(item)})
			return
		case http.MethodDelete:
			if err := s.service.DeleteRegistrationPeriod(r.Context(), session, periodID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request, session Session) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected multipart upload", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read upload", nil)
		return
	}

	job, err := s.service.ImportEvents(r.Context(), session, header.Filename, data)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"job": jobPayload(job)})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) optionalSession(r *http.Request) *Session {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		return nil
	}
	return &session
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

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
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
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"email":        session.Email,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

func eventPayload(event store.Event) map[string]any {
	payload := map[string]any{
		"id":               event.ID,
		"authorId":         event.AuthorID,
		"state":            event.State,
		"description":      event.Description,
		"descriptionLong":  event.DescriptionLong,
		"location":         event.Location,
		"start":            event.Start,
		"end":              event.End,
		"audience":         event.Audience,
		"teachingAffected": event.TeachingAffected,
		"classes":          stringsOrEmpty(event.Classes),
		"classGroups":      stringsOrEmpty(event.ClassGroups),
		"departmentIds":    stringsOrEmpty(event.DepartmentIDs),
		"groupIds":         stringsOrEmpty(event.GroupIDs),
		"parentId":         event.ParentID,
		"clonedFromId":     event.ClonedFromID,
		"cloned":           event.Cloned,
		"jobId":            event.JobID,
		"createdAt":        event.CreatedAt,
		"updatedAt":        event.UpdatedAt,
	}
	if len(event.Meta) > 0 {
		payload["meta"] = json.RawMessage(event.Meta)
	}
	return payload
}

func eventPayloads(items []store.Event) []map[string]any {
	payloads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, eventPayload(item))
	}
	return payloads
}

func promotionPayload(result store.PromotionResult) map[string]any {
	payload := map[string]any{
		"event": eventPayload(result.Event),
	}
	if result.PreviousVersion != nil {
		payload["previousVersion"] = eventPayload(*result.PreviousVersion)
	}
	if len(result.RefusedSiblings) > 0 {
		payload["refusedSiblings"] = eventPayloads(result.RefusedSiblings)
	}
	return payload
}

func departmentPayload(item store.Department) map[string]any {
	return map[string]any{
		"id":            item.ID,
		"name":          item.Name,
		"letter":        item.Letter,
		"displayLetter": item.DisplayLetter,
		"classLetters":  stringsOrEmpty(item.ClassLetters),
		"color":         item.Color,
		"department1Id": item.Department1ID,
		"department2Id": item.Department2ID,
		"createdAt":     item.CreatedAt,
		"updatedAt":     item.UpdatedAt,
	}
}

func departmentPayloads(items []store.Department) []map[string]any {
	payloads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, departmentPayload(item))
	}
	return payloads
}

func groupPayload(item store.EventGroup) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"userId":      item.UserID,
		"name":        item.Name,
		"description": item.Description,
		"createdAt":   item.CreatedAt,
		"updatedAt":   item.UpdatedAt,
	}
}

func groupPayloads(items []store.EventGroup) []map[string]any {
	payloads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, groupPayload(item))
	}
	return payloads
}

func periodPayload(item store.RegistrationPeriod) map[string]any {
	return map[string]any{
		"id":              item.ID,
		"name":            item.Name,
		"description":     item.Description,
		"start":           item.Start,
		"end":             item.End,
		"eventRangeStart": item.EventRangeStart,
		"eventRangeEnd":   item.EventRangeEnd,
		"isOpen":          item.IsOpen,
		"departmentIds":   stringsOrEmpty(item.DepartmentIDs),
		"createdAt":       item.CreatedAt,
		"updatedAt":       item.UpdatedAt,
	}
}

func periodPayloads(items []store.RegistrationPeriod) []map[string]any {
	payloads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, periodPayload(item))
	}
	return payloads
}

func jobPayload(item store.Job) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"userId":    item.UserID,
		"state":     item.State,
		"filename":  item.Filename,
		"log":       item.Log,
		"createdAt": item.CreatedAt,
		"updatedAt": item.UpdatedAt,
	}
}

func jobPayloads(items []store.Job) []map[string]any {
	payloads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, jobPayload(item))
	}
	return payloads
}

func stringsOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
