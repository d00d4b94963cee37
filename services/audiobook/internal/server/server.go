package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"harmonicai/internal/ratelimit"
	"harmonicai/internal/usertoken"
	"harmonicai/internal/util"
	"harmonicai/services/audiobook/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App               *app.App
	TokenVerifier     *usertoken.Verifier
	Limiter           *ratelimit.FixedWindowLimiter
	CORS              *util.CORSPolicy
	MaxUploadBytes    int64
	AllowedExtensions []string
}

// Server exposes the audiobook HTTP API.
type Server struct {
	app            *app.App
	tokenVerifier  *usertoken.Verifier
	limiter        *ratelimit.FixedWindowLimiter
	cors           *util.CORSPolicy
	mux            *http.ServeMux
	maxUploadBytes int64
	allowedExts    map[string]struct{}
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("server: token verifier is required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	exts := cfg.AllowedExtensions
	if len(exts) == 0 {
		exts = []string{".epub", ".pdf", ".txt"}
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(strings.TrimSpace(ext))] = struct{}{}
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		limiter:        cfg.Limiter,
		cors:           cfg.CORS,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
		allowedExts:    allowed,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	if s.cors != nil {
		h = s.cors.Middleware(h)
	}
	return util.WithRequestID(util.WithRequestLog("audiobook", util.WithSecurityHeaders(h)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/ebooks", s.withUser(s.handleEbooks))
	s.mux.Handle("/ebooks/generate", s.withUser(s.handleGenerate))
	s.mux.Handle("/ebooks/details", s.withUser(s.handleDetails))
	s.mux.Handle("/ebooks/", s.withUser(s.handleEbookByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := usertoken.BearerToken(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		ownerID, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, ownerID)
	})
}

// /ebooks: POST = ingest, GET = list
func (s *Server) handleEbooks(w http.ResponseWriter, r *http.Request, ownerID string) {
	switch r.Method {
	case http.MethodPost:
		s.handleIngest(w, r, ownerID)
	case http.MethodGet:
		s.handleList(w, r, ownerID)
	default:
		methodNotAllowed(w, r)
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request, ownerID string) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	input, ok := s.decodeIngestInput(w, r)
	if !ok {
		return
	}
	details, err := s.app.Ingest(r.Context(), ownerID, input)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, details)
}

// decodeIngestInput accepts multipart uploads (field "file") and JSON bodies
// with pasted text.
func (s *Server) decodeIngestInput(w http.ResponseWriter, r *http.Request) (app.IngestInput, bool) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid form data")
			return app.IngestInput{}, false
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "file is required (field: file)")
			return app.IngestInput{}, false
		}
		defer file.Close()
		if !s.extensionAllowed(header.Filename) {
			writeError(w, r, http.StatusUnsupportedMediaType, "unsupported file type")
			return app.IngestInput{}, false
		}
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "failed to read upload")
			return app.IngestInput{}, false
		}
		return app.IngestInput{
			Title:    r.FormValue("title"),
			Author:   r.FormValue("author"),
			FileName: header.Filename,
			FileData: data,
		}, true
	}

	var req ingestRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 10<<20)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return app.IngestInput{}, false
	}
	if strings.TrimSpace(req.InputText) == "" {
		writeError(w, r, http.StatusBadRequest, "inputText is required")
		return app.IngestInput{}, false
	}
	return app.IngestInput{
		Title:     req.Title,
		Author:    req.Author,
		InputText: req.InputText,
	}, true
}

func (s *Server) extensionAllowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := s.allowedExts[ext]
	return ok
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, ownerID string) {
	ebooks, err := s.app.ListEbooks(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": ebooks,
		"count": len(ebooks),
	})
}

// POST /ebooks/generate with either ebook_id (batch) or chapter_id (single).
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, ownerID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if s.limiter != nil && !s.limiter.Allow(ownerID) {
		writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch {
	case req.ChapterID != "":
		chapter, err := s.app.GetChapter(r.Context(), req.ChapterID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		if ok := s.authorizeEbook(w, r, chapter.EbookID, ownerID); !ok {
			return
		}
		result, err := s.app.GenerateChapter(r.Context(), req.ChapterID, req.VoiceID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case req.EbookID != "":
		if ok := s.authorizeEbook(w, r, req.EbookID, ownerID); !ok {
			return
		}
		batch, err := s.app.GenerateEbook(r.Context(), req.EbookID, req.VoiceID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, batch)
	default:
		writeError(w, r, http.StatusBadRequest, "ebook_id or chapter_id is required")
	}
}

// GET /ebooks/details?ebook_id=
func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request, ownerID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("ebook_id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "ebook_id is required")
		return
	}
	if ok := s.authorizeEbook(w, r, id, ownerID); !ok {
		return
	}
	details, err := s.app.GetDetails(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// /ebooks/{id} (DELETE) or /ebooks/{id}/events (GET, SSE)
func (s *Server) handleEbookByID(w http.ResponseWriter, r *http.Request, ownerID string) {
	rest := strings.TrimPrefix(r.URL.Path, "/ebooks/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	if ok := s.authorizeEbook(w, r, id, ownerID); !ok {
		return
	}
	if len(parts) == 2 {
		if parts[1] == "events" && r.Method == http.MethodGet {
			s.handleEvents(w, r, id)
			return
		}
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		details, err := s.app.GetDetails(r.Context(), id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, details)
	case http.MethodDelete:
		if err := s.app.DeleteEbook(r.Context(), id); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w, r)
	}
}

// handleEvents streams chapter change events as server-sent events until the
// client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, ebookID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	events, release, err := s.app.Subscribe(r.Context(), ebookID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	defer release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: chapter\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// authorizeEbook confirms the ebook exists and belongs to the caller.
func (s *Server) authorizeEbook(w http.ResponseWriter, r *http.Request, ebookID, ownerID string) bool {
	details, err := s.app.GetDetails(r.Context(), ebookID)
	if err != nil {
		s.writeAppError(w, r, err)
		return false
	}
	if details.Ebook.OwnerID != ownerID {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

// writeAppError maps application errors onto HTTP statuses.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrEbookNotFound):
		writeError(w, r, http.StatusNotFound, "ebook not found")
	case errors.Is(err, app.ErrChapterNotFound):
		writeError(w, r, http.StatusNotFound, "chapter not found")
	case errors.Is(err, app.ErrChapterNotPending):
		writeError(w, r, http.StatusConflict, "chapter is not awaiting synthesis")
	case errors.Is(err, app.ErrUnsupportedType):
		writeError(w, r, http.StatusUnsupportedMediaType, "unsupported file type")
	case errors.Is(err, app.ErrEmptyContent),
		errors.Is(err, app.ErrArchiveCorrupt),
		errors.Is(err, app.ErrManifestMissing),
		errors.Is(err, app.ErrNoContent):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

type ingestRequest struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	InputText string `json:"inputText"`
}

type generateRequest struct {
	EbookID   string `json:"ebook_id"`
	ChapterID string `json:"chapter_id"`
	VoiceID   string `json:"voice_id"`
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: util.RequestIDFromRequest(r),
	})
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "forbidden":
		return "EBOOK_FORBIDDEN"
	case message == "ebook not found":
		return "EBOOK_NOT_FOUND"
	case message == "chapter not found":
		return "CHAPTER_NOT_FOUND"
	case message == "chapter is not awaiting synthesis":
		return "CHAPTER_NOT_PENDING"
	case message == "unsupported file type":
		return "EBOOK_UNSUPPORTED_FILE_TYPE"
	case message == "rate limit exceeded":
		return "RATE_LIMIT_EXCEEDED"
	case strings.Contains(message, "file is required"):
		return "EBOOK_FILE_REQUIRED"
	case message == "invalid form data":
		return "EBOOK_INVALID_UPLOAD_FORM"
	case message == "invalid json body", message == "inputtext is required",
		message == "ebook_id is required", message == "ebook_id or chapter_id is required":
		return "EBOOK_INVALID_REQUEST"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "EBOOK_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "EBOOK_FORBIDDEN"
	case http.StatusNotFound:
		return "EBOOK_NOT_FOUND"
	case http.StatusConflict:
		return "CHAPTER_NOT_PENDING"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "RATE_LIMIT_EXCEEDED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
