package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portaria/server/internal/auth"
	"github.com/BrandonDHaskell/Portaria/server/internal/logging"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/service"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
	"github.com/BrandonDHaskell/Portaria/server/internal/qrrender"
)

type Dependencies struct {
	Logger    *slog.Logger
	Addr      string
	Sessions  *auth.Manager
	Users     *service.UserService
	Issuer    *service.Issuer
	Validator *service.Validator
	Stats     *service.StatsService

	// SelfTokenDuration applies when a self-token request names no
	// duration. Zero means the issuer default.
	SelfTokenDuration time.Duration

	// RenderQR defaults to qrrender.DataURL.
	RenderQR func(content string) (string, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux

	sessions  *auth.Manager
	users     *service.UserService
	issuer    *service.Issuer
	validator *service.Validator
	stats     *service.StatsService

	selfTokenDuration time.Duration
	renderQR          func(string) (string, error)
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	render := d.RenderQR
	if render == nil {
		render = qrrender.DataURL
	}

	s := &Server{
		logger:            logger,
		mux:               mux,
		sessions:          d.Sessions,
		users:             d.Users,
		issuer:            d.Issuer,
		validator:         d.Validator,
		stats:             d.Stats,
		selfTokenDuration: d.SelfTokenDuration,
		renderQR:          render,
	}

	mux.HandleFunc("POST /v1/login", s.handleLogin)
	mux.HandleFunc("POST /v1/users", s.requireSession(s.handleCreateUser, types.RoleAdmin))

	mux.HandleFunc("POST /v1/tokens/self", s.requireSession(s.handleIssueSelf))
	mux.HandleFunc("GET /v1/tokens/self", s.requireSession(s.handleActiveSelf))
	mux.HandleFunc("POST /v1/tokens/client", s.requireSession(s.handleIssueClient, types.RoleAdmin, types.RoleVendor))
	mux.HandleFunc("POST /v1/tokens/visitor", s.requireSession(s.handleIssueVisitor))

	mux.HandleFunc("POST /v1/scan", s.requireSession(s.handleScan, types.RoleAdmin, types.RolePorter))
	mux.HandleFunc("GET /v1/stats", s.requireSession(s.handleStats, types.RoleAdmin, types.RolePorter))

	handler := loggingMiddleware(logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Sessions & users ─────────────────────────────────────────────────────────

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	u, err := s.users.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid login or password")
			return
		}
		s.internalError(w, r, "login", err)
		return
	}

	raw, exp, err := s.sessions.Issue(u.ID, u.Role)
	if err != nil {
		s.internalError(w, r, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, types.LoginResponse{
		Token:     raw,
		ExpiresAt: exp.UTC().Format(time.RFC3339),
		User:      service.UserView(u),
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req types.CreateUserRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	u, err := s.users.Create(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUserExists):
			writeError(w, http.StatusConflict, "user_exists", "login already taken")
		case errors.Is(err, service.ErrInvalidLogin),
			errors.Is(err, service.ErrWeakPassword),
			errors.Is(err, service.ErrInvalidSubjectName):
			writeError(w, http.StatusBadRequest, "invalid_user", err.Error())
		default:
			s.internalError(w, r, "create user", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, service.UserView(u))
}

// ── Tokens ───────────────────────────────────────────────────────────────────

func (s *Server) handleIssueSelf(w http.ResponseWriter, r *http.Request) {
	var req types.IssueSelfRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if req.DurationSeconds < 0 {
		writeError(w, http.StatusBadRequest, "invalid_duration", "duration_seconds must be positive")
		return
	}

	sess, _ := auth.FromContext(r.Context())
	d := time.Duration(req.DurationSeconds) * time.Second
	if d == 0 {
		d = s.selfTokenDuration
	}

	rec, err := s.issuer.IssueSelfToken(r.Context(), sess.UserID, d)
	s.writeIssued(w, r, rec, err)
}

func (s *Server) handleActiveSelf(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	rec, err := s.issuer.ActiveSelfToken(r.Context(), sess.UserID)
	if errors.Is(err, store.ErrTokenNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no active token")
		return
	}
	if err != nil {
		s.internalError(w, r, "active self token", err)
		return
	}
	s.writeToken(w, r, http.StatusOK, rec)
}

func (s *Server) handleIssueClient(w http.ResponseWriter, r *http.Request) {
	var req types.IssueClientRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	sess, _ := auth.FromContext(r.Context())
	rec, err := s.issuer.IssueClientToken(r.Context(), req.ClientName, req.InvoiceNumber, sess.UserID)
	s.writeIssued(w, r, rec, err)
}

func (s *Server) handleIssueVisitor(w http.ResponseWriter, r *http.Request) {
	var req types.IssueVisitorRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	sess, _ := auth.FromContext(r.Context())
	rec, err := s.issuer.IssueVisitorToken(r.Context(), req.VisitorName, sess.UserID)
	s.writeIssued(w, r, rec, err)
}

func (s *Server) writeIssued(w http.ResponseWriter, r *http.Request, rec store.TokenRecord, err error) {
	if err != nil {
		if errors.Is(err, service.ErrInvalidSubjectName) || errors.Is(err, service.ErrInvalidOwnerID) {
			writeError(w, http.StatusBadRequest, "invalid_token_request", err.Error())
			return
		}
		s.internalError(w, r, "issue token", err)
		return
	}
	s.writeToken(w, r, http.StatusCreated, rec)
}

func (s *Server) writeToken(w http.ResponseWriter, r *http.Request, status int, rec store.TokenRecord) {
	qr, err := s.renderQR(rec.Payload)
	if err != nil {
		s.internalError(w, r, "render qr", err)
		return
	}
	writeJSON(w, status, tokenResponse(rec, qr))
}

// ── Scan & stats ─────────────────────────────────────────────────────────────

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	asProto := wantsProtobuf(r)

	var req types.ScanRequest
	if asProto {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
		req = scanRequestFromProto(&msg)
	} else if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	sess, _ := auth.FromContext(r.Context())
	res := s.validator.Validate(r.Context(), req.Payload, sess.UserID)
	if s.stats != nil {
		s.stats.Invalidate(r.Context())
	}

	logging.FromContext(r.Context()).Info("scan decided",
		"granted", res.IsValid, "reason", string(res.Reason), "token_id", res.TokenID)

	resp := scanResponse(res, time.Now())
	if asProto {
		msg, err := scanResponseToProto(resp)
		if err != nil {
			s.internalError(w, r, "scan proto", err)
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.TokenStats(r.Context())
	if err != nil {
		s.internalError(w, r, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logging.FromContext(r.Context()).Error(op+" failed", "err", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
}
