package app

import (
	"bytes"
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
	"strings"
	"time"

	"fruitlog/api/internal/auth"
	"fruitlog/api/internal/authpw"
	"fruitlog/api/internal/store"
)

const maxUploadBytes = 32 << 20

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
		s.handleReady(w, r)
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		s.handleSessionRefresh(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		s.handleSessionLogout(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userName":      session.UserName,
			"userId":        session.UserID,
			"email":         session.Email,
		})
		return
	}

	// Everything below requires a session.
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/positions" {
		s.handlePositionFeed(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/photos" {
		s.handlePhotoFeed(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/articles" {
		s.handleArticles(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/articles/count" {
		s.handleArticleCount(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/upload-articles" {
		s.handleUploadArticles(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/scans" {
		s.handleScans(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/scans/count" {
		s.handleScanCount(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/send-email" {
		s.handleSendEmail(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "positions" {
		s.handlePosition(w, r, session, parts[2], parts[3:])
		return
	}

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "photos" && parts[3] == "edited" {
		s.handlePhotoEdited(w, r, parts[2])
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "documents" {
		s.handleDocument(w, r, parts[2])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
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
}

// ---------------------------------------------------------------------------
// Auth handlers

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSession(w, http.StatusCreated, session)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSession(w, http.StatusOK, session)
}

func (s *HTTPServer) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSession(w, http.StatusOK, session)
}

func (s *HTTPServer) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	if err := s.service.Logout(r.Context(), body.RefreshToken); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeSession(w http.ResponseWriter, status int, session Session) {
	writeJSON(w, status, map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"email":        session.Email,
		"expiresAt":    session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// ---------------------------------------------------------------------------
// Feed handlers

func (s *HTTPServer) handlePositionFeed(w http.ResponseWriter, r *http.Request) {
	day, err := parseDayParam(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATE", "Datum muss das Format JJJJ-MM-TT haben", nil)
		return
	}

	positions, err := s.service.PositionFeed(r.Context(), day)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

func (s *HTTPServer) handlePhotoFeed(w http.ResponseWriter, r *http.Request) {
	day, err := parseDayParam(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATE", "Datum muss das Format JJJJ-MM-TT haben", nil)
		return
	}

	photos, err := s.service.PhotoFeed(r.Context(), day)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"photos": photos})
}

// ---------------------------------------------------------------------------
// Position handlers

func (s *HTTPServer) handlePosition(w http.ResponseWriter, r *http.Request, session Session, positionCode string, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		detail, err := s.service.PositionDetail(r.Context(), positionCode)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}

	switch rest[0] {
	case "category":
		if r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var body struct {
			Category *string `json:"category"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		category := ""
		if body.Category != nil {
			category = *body.Category
		}
		if err := s.service.SetPositionCategory(r.Context(), positionCode, category); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"positionCode": positionCode, "category": category})

	case "scans":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		scans, err := s.service.PositionScans(r.Context(), positionCode)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scans": scans})

	case "archive":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		s.handlePositionArchive(w, r, positionCode)

	case "documents":
		s.handlePositionDocuments(w, r, session, positionCode)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handlePositionArchive(w http.ResponseWriter, r *http.Request, positionCode string) {
	// Buffered so a mid-stream failure still yields a proper JSON error.
	var buf bytes.Buffer
	if _, err := s.service.PositionArchive(r.Context(), positionCode, &buf, nil); err != nil {
		writeMappedError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", positionCode+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, &buf)
}

func (s *HTTPServer) handlePositionDocuments(w http.ResponseWriter, r *http.Request, session Session, positionCode string) {
	switch r.Method {
	case http.MethodGet:
		documents, err := s.service.PositionDocuments(r.Context(), positionCode)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": documents})

	case http.MethodPost:
		fileName, contentType, data, err := readUpload(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", err.Error(), nil)
			return
		}
		document, err := s.service.AddDocument(r.Context(), AddDocumentInput{
			PositionCode: positionCode,
			FileName:     fileName,
			ContentType:  contentType,
			DocumentType: store.DocumentType(r.FormValue("documentType")),
			Notes:        r.FormValue("notes"),
			UploadedBy:   session.UserName,
			Data:         data,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, document)

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

// ---------------------------------------------------------------------------
// Photo handlers

func (s *HTTPServer) handlePhotoEdited(w http.ResponseWriter, r *http.Request, photoID string) {
	switch r.Method {
	case http.MethodPost:
		_, contentType, data, err := readUpload(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", err.Error(), nil)
			return
		}
		photo, err := s.service.SaveEditedPhoto(r.Context(), photoID, contentType, data)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, photo)

	case http.MethodDelete:
		photo, err := s.service.RemoveEditedPhoto(r.Context(), photoID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, photo)

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

// ---------------------------------------------------------------------------
// Article handlers

func (s *HTTPServer) handleArticles(w http.ResponseWriter, r *http.Request) {
	catalogPayload, err := s.service.ArticleCatalogFor(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, catalogPayload)
}

func (s *HTTPServer) handleArticleCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.service.ArticleCount(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (s *HTTPServer) handleUploadArticles(w http.ResponseWriter, r *http.Request) {
	fileName, contentType, data, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", err.Error(), nil)
		return
	}
	if err := s.service.UploadArticles(r.Context(), fileName, contentType, data); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---------------------------------------------------------------------------
// Scan handlers

func (s *HTTPServer) handleScans(w http.ResponseWriter, r *http.Request) {
	filter, err := scanFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error(), nil)
		return
	}
	list, err := s.service.ScanListFor(r.Context(), filter)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleScanCount(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("today") != "" {
		count, err := s.service.ScanCountToday(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": count})
		return
	}

	filter, err := scanFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error(), nil)
		return
	}
	count, err := s.service.store.CountScans(r.Context(), filter)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func scanFilterFromQuery(r *http.Request) (store.ScanFilter, error) {
	query := r.URL.Query()
	filter := store.ScanFilter{
		Search:       strings.TrimSpace(query.Get("q")),
		Status:       store.ScanStatus(query.Get("status")),
		DeviceID:     query.Get("device"),
		PositionCode: query.Get("position"),
	}
	if raw := query.Get("from"); raw != "" {
		from, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return store.ScanFilter{}, fmt.Errorf("ungültiges Von-Datum")
		}
		filter.DateFrom = &from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return store.ScanFilter{}, fmt.Errorf("ungültiges Bis-Datum")
		}
		endOfDay := to.Add(24*time.Hour - time.Millisecond)
		filter.DateTo = &endOfDay
	}
	return filter, nil
}

// ---------------------------------------------------------------------------
// Email and document handlers

func (s *HTTPServer) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var input SendEmailInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.SendPhotoEmail(r.Context(), input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleDocument(w http.ResponseWriter, r *http.Request, documentID string) {
	switch r.Method {
	case http.MethodPatch:
		var body struct {
			Notes string `json:"notes"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		document, err := s.service.UpdateDocumentNotes(r.Context(), documentID, body.Notes)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, document)

	case http.MethodDelete:
		if err := s.service.DeleteDocument(r.Context(), documentID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

// ---------------------------------------------------------------------------
// Plumbing

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
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
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
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
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
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// readUpload extracts the "file" part of a multipart request.
func readUpload(r *http.Request) (fileName, contentType string, data []byte, err error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", "", nil, fmt.Errorf("invalid multipart body")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", nil, fmt.Errorf("missing file field")
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		return "", "", nil, fmt.Errorf("read upload")
	}
	return header.Filename, header.Header.Get("Content-Type"), data, nil
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
	return http.StatusInternalServerError, "SERVER_ERROR", "Serverfehler", nil
}

func parseDayParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return nil, err
	}
	return &day, nil
}
