package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hurxxxx/trailtag-sub001/internal/checkin"
	"github.com/hurxxxx/trailtag-sub001/internal/config"
	"github.com/hurxxxx/trailtag-sub001/internal/crypto"
	"github.com/hurxxxx/trailtag-sub001/internal/model"
	"github.com/hurxxxx/trailtag-sub001/internal/qrtoken"
	"github.com/hurxxxx/trailtag-sub001/internal/relationship"
	"github.com/hurxxxx/trailtag-sub001/internal/repository"
	"github.com/hurxxxx/trailtag-sub001/internal/session"
)

type Server struct {
	cfg       config.Config
	store     *repository.Store
	sessions  *session.Manager
	tokens    *qrtoken.Manager
	validator *checkin.Validator
	graph     *relationship.Graph
}

func NewServer(cfg config.Config, store *repository.Store, sessions *session.Manager, tokens *qrtoken.Manager, validator *checkin.Validator, graph *relationship.Graph) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		sessions:  sessions,
		tokens:    tokens,
		validator: validator,
		graph:     graph,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)

	r.With(s.authMiddleware, s.requireAdmin).Post("/programs", s.handleCreateProgram)
	r.With(s.authMiddleware, s.requireAdmin).Post("/programs/{programId}/qr-token", s.handleCreateQRToken)
	r.With(s.authMiddleware, s.requireAdmin).Get("/programs/{programId}/qr-token", s.handleGetQRToken)
	r.With(s.authMiddleware, s.requireAdmin).Post("/qr-tokens/{tokenId}/regenerate", s.handleRegenerateQRToken)
	r.With(s.authMiddleware, s.requireAdmin).Delete("/qr-tokens/{tokenId}", s.handleDeactivateQRToken)

	r.With(s.authMiddleware).Post("/check-ins", s.handleCreateCheckIn)
	r.With(s.authMiddleware).Get("/students/{studentId}/check-ins", s.handleListStudentCheckIns)

	r.With(s.authMiddleware).Post("/parents/me/students", s.handleAddStudentLink)
	r.With(s.authMiddleware).Get("/parents/me/students", s.handleListStudentLinks)
	r.With(s.authMiddleware).Delete("/parents/me/students/{studentId}", s.handleRemoveStudentLink)

	return r
}

// Auth

type principalKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		principal, err := s.sessions.Validate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrUnauthenticated):
				writeError(w, http.StatusUnauthorized, "missing_token")
			case errors.Is(err, session.ErrInvalidSession):
				writeError(w, http.StatusUnauthorized, "invalid_session")
			default:
				log.Printf("session validation error: %v", err)
				writeError(w, http.StatusInternalServerError, "server_error")
			}
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFromContext(ctx context.Context) (model.Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(model.Principal)
	return principal, ok
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		if principal.Role != model.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Models

type userSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Locale   string `json:"locale,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Locale   string `json:"locale"`
	Timezone string `json:"timezone"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt int64       `json:"expiresAt"`
	User      userSummary `json:"user"`
}

type programResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

type qrTokenResponse struct {
	ID        string `json:"id"`
	ProgramID int64  `json:"programId"`
	Payload   string `json:"payload"`
	Version   int32  `json:"version"`
	IssuedAt  int64  `json:"issuedAt"`
	Active    bool   `json:"active"`
}

type checkInResponse struct {
	ID          string `json:"id"`
	ProgramID   int64  `json:"programId"`
	Program     string `json:"program,omitempty"`
	Description string `json:"description,omitempty"`
	TokenID     string `json:"tokenId"`
	CheckedInAt int64  `json:"checkedInAt"`
	Location    string `json:"location,omitempty"`
}

type linkResponse struct {
	ParentID     string `json:"parentId"`
	StudentID    string `json:"studentId"`
	Relationship string `json:"relationship"`
	CreatedAt    int64  `json:"createdAt"`
}

// Handlers

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Username = strings.TrimSpace(strings.ToLower(req.Username))
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         role,
		Locale:       defaultString(req.Locale, "en"),
		Timezone:     defaultString(req.Timezone, "UTC"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if trace.IsAlreadyExists(err) {
			writeError(w, http.StatusConflict, "username_taken")
			return
		}
		log.Printf("create user error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapUser(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Username = strings.TrimSpace(strings.ToLower(req.Username))
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if trace.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		log.Printf("login lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, expiresAt, err := s.sessions.Create(r.Context(), user)
	if err != nil {
		log.Printf("session create error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
		User:      mapUser(user),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r.Header.Get("Authorization"))
	if err := s.sessions.Revoke(r.Context(), token); err != nil {
		log.Printf("session revoke error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	writeJSON(w, http.StatusOK, userSummary{
		ID:       principal.ID,
		Username: principal.Username,
		Role:     string(principal.Role),
	})
}

type createProgramRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	var req createProgramRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "missing_name")
		return
	}
	program, err := s.store.CreateProgram(r.Context(), model.Program{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Active:      true,
	})
	if err != nil {
		log.Printf("create program error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapProgram(program))
}

func (s *Server) handleCreateQRToken(w http.ResponseWriter, r *http.Request) {
	programID, err := parseProgramID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_program_id")
		return
	}
	token, err := s.tokens.Create(r.Context(), programID)
	if err != nil {
		switch {
		case trace.IsNotFound(err):
			writeError(w, http.StatusNotFound, "program_not_found")
		case trace.IsAlreadyExists(err):
			writeError(w, http.StatusConflict, "token_exists")
		default:
			log.Printf("create token error: %v", err)
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, mapQRToken(token))
}

func (s *Server) handleGetQRToken(w http.ResponseWriter, r *http.Request) {
	programID, err := parseProgramID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_program_id")
		return
	}
	token, err := s.tokens.CurrentForProgram(r.Context(), programID)
	if err != nil {
		if trace.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "token_not_found")
			return
		}
		log.Printf("get token error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapQRToken(token))
}

func (s *Server) handleRegenerateQRToken(w http.ResponseWriter, r *http.Request) {
	tokenID, err := parseTokenID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_token_id")
		return
	}
	token, err := s.tokens.Regenerate(r.Context(), tokenID)
	if err != nil {
		if trace.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "token_not_found")
			return
		}
		log.Printf("regenerate token error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapQRToken(token))
}

func (s *Server) handleDeactivateQRToken(w http.ResponseWriter, r *http.Request) {
	tokenID, err := parseTokenID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_token_id")
		return
	}
	if err := s.tokens.Deactivate(r.Context(), tokenID); err != nil {
		if trace.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "token_not_found")
			return
		}
		log.Printf("deactivate token error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createCheckInRequest struct {
	Payload  string `json:"payload"`
	Location string `json:"location"`
}

func (s *Server) handleCreateCheckIn(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	var req createCheckInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	result, err := s.validator.CheckIn(r.Context(), principal, req.Payload, req.Location)
	if err != nil {
		switch {
		case errors.Is(err, checkin.ErrBadFormat):
			writeError(w, http.StatusBadRequest, "bad_format")
		case errors.Is(err, checkin.ErrInvalidToken):
			writeError(w, http.StatusNotFound, "invalid_or_expired_token")
		case errors.Is(err, checkin.ErrTokenExpired):
			writeError(w, http.StatusGone, "token_expired")
		case errors.Is(err, checkin.ErrNotStudent):
			writeError(w, http.StatusForbidden, "forbidden")
		case errors.Is(err, checkin.ErrDuplicate):
			writeError(w, http.StatusConflict, "duplicate_check_in")
		default:
			log.Printf("check-in error: %v", err)
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, checkInResponse{
		ID:          result.CheckIn.ID,
		ProgramID:   result.CheckIn.ProgramID,
		Program:     result.ProgramName,
		Description: result.ProgramDescription,
		TokenID:     result.CheckIn.TokenID,
		CheckedInAt: result.CheckIn.CheckedInAt.Unix(),
		Location:    result.CheckIn.Location,
	})
}

func (s *Server) handleListStudentCheckIns(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	studentID := chi.URLParam(r, "studentId")
	if _, err := uuid.Parse(studentID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_student_id")
		return
	}

	// Re-checked on every request; links are mutable.
	if err := s.graph.Authorize(r.Context(), principal, studentID); err != nil {
		if trace.IsAccessDenied(err) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		log.Printf("authorize error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	checkIns, err := s.store.ListCheckInsByStudent(r.Context(), studentID, parseLimit(r, s.cfg.CheckInHistoryPage))
	if err != nil {
		log.Printf("list check-ins error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]checkInResponse, 0, len(checkIns))
	for _, checkIn := range checkIns {
		resp = append(resp, checkInResponse{
			ID:          checkIn.ID,
			ProgramID:   checkIn.ProgramID,
			TokenID:     checkIn.TokenID,
			CheckedInAt: checkIn.CheckedInAt.Unix(),
			Location:    checkIn.Location,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type addLinkRequest struct {
	StudentID    string `json:"studentId"`
	Relationship string `json:"relationship"`
}

func (s *Server) handleAddStudentLink(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if principal.Role != model.RoleParent {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req addLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if _, err := uuid.Parse(req.StudentID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_student_id")
		return
	}

	link, err := s.graph.AddLink(r.Context(), principal.ID, req.StudentID, strings.TrimSpace(req.Relationship))
	if err != nil {
		switch {
		case trace.IsNotFound(err):
			writeError(w, http.StatusNotFound, "student_not_found")
		case trace.IsAlreadyExists(err):
			writeError(w, http.StatusConflict, "link_exists")
		default:
			log.Printf("add link error: %v", err)
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, mapLink(link))
}

func (s *Server) handleListStudentLinks(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if principal.Role != model.RoleParent {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	links, err := s.graph.ListLinks(r.Context(), principal.ID)
	if err != nil {
		log.Printf("list links error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]linkResponse, 0, len(links))
	for _, link := range links {
		resp = append(resp, mapLink(link))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemoveStudentLink(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if principal.Role != model.RoleParent {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	studentID := chi.URLParam(r, "studentId")
	if _, err := uuid.Parse(studentID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_student_id")
		return
	}
	if err := s.graph.RemoveLink(r.Context(), principal.ID, studentID); err != nil {
		if trace.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "link_not_found")
			return
		}
		log.Printf("remove link error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Mappers

func mapUser(user model.User) userSummary {
	return userSummary{
		ID:       user.ID,
		Username: user.Username,
		Role:     string(user.Role),
		Locale:   user.Locale,
		Timezone: user.Timezone,
	}
}

func mapProgram(program model.Program) programResponse {
	return programResponse{
		ID:          program.ID,
		Name:        program.Name,
		Description: program.Description,
		Active:      program.Active,
	}
}

func mapQRToken(token model.QRToken) qrTokenResponse {
	return qrTokenResponse{
		ID:        token.ID,
		ProgramID: token.ProgramID,
		Payload:   token.Payload,
		Version:   token.Version,
		IssuedAt:  token.IssuedAtMs,
		Active:    token.Active,
	}
}

func mapLink(link model.ParentLink) linkResponse {
	return linkResponse{
		ParentID:     link.ParentID,
		StudentID:    link.StudentID,
		Relationship: link.Relationship,
		CreatedAt:    link.CreatedAt.Unix(),
	}
}

// Utilities

func parseProgramID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "programId"), 10, 64)
}

func parseTokenID(r *http.Request) (string, error) {
	tokenID := chi.URLParam(r, "tokenId")
	if _, err := uuid.Parse(tokenID); err != nil {
		return "", err
	}
	return tokenID, nil
}

func parseLimit(r *http.Request, fallback int32) int32 {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 32); err == nil && parsed > 0 {
			return int32(parsed)
		}
	}
	return fallback
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
