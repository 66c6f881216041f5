package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/takemehome/accounts/internal/apperr"
	"github.com/takemehome/accounts/types"
)

// UserService is the account and session logic behind the user routes.
type UserService interface {
	SignUp(ctx context.Context, input types.SignUpInput) error
	Verify(ctx context.Context, email, code string) error
	ResendCode(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (types.LoginResult, error)
	Refresh(ctx context.Context, authorization string) (types.TokenPair, error)
	SignOut(ctx context.Context, user types.AuthUser) error
	GetSelf(ctx context.Context, user types.AuthUser) (types.Profile, error)
	GetOne(ctx context.Context, userID string) (types.Profile, error)
	Delete(ctx context.Context, user types.AuthUser) error
}

// UserHandler provides HTTP handlers for accounts and sessions.
type UserHandler struct {
	userService UserService
	logger      *slog.Logger
}

func NewUserHandler(userService UserService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{userService: userService, logger: logger}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, userService UserService, authenticator Authenticator, logger *slog.Logger) {
	handler := NewUserHandler(userService, logger)
	requireAuth := RequireAuth(authenticator, handler.logger)

	r.Post("/sign-up", handler.SignUp)
	r.Post("/login", handler.Login)
	r.Post("/verify", handler.Verify)
	r.Post("/verify/resend", handler.ResendCode)
	r.Post("/refresh-token", handler.RefreshToken)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/me", handler.GetSelf)
		r.Get("/{userId}", handler.GetOne)
		r.Post("/sign-out", handler.SignOut)
		r.Delete("/", handler.Delete)
	})
}

type SignUpRequest struct {
	Firstname string `json:"firstname" validate:"required,min=2,max=255"`
	Lastname  string `json:"lastname" validate:"required,min=2,max=255"`
	Email     string `json:"email" validate:"required,email,max=96"`
	Phone     string `json:"phone" validate:"required,max=15"`
	Password  string `json:"password" validate:"required,max=255"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=96"`
	Password string `json:"password" validate:"required,max=255"`
}

type VerifyRequest struct {
	Email            string `json:"email" validate:"required,email,max=96"`
	VerificationCode string `json:"verificationCode" validate:"required,len=6,numeric"`
}

type ResendCodeRequest struct {
	Email string `json:"email" validate:"required,email,max=96"`
}

func (h *UserHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	err := h.userService.SignUp(r.Context(), types.SignUpInput{
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *UserHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.userService.Verify(r.Context(), req.Email, req.VerificationCode); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ResendCode always answers 201 for a well-formed request so that it does not
// reveal which emails are registered.
func (h *UserHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req ResendCodeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.userService.ResendCode(r.Context(), req.Email); err != nil {
		h.logger.ErrorContext(r.Context(), "resending verification code failed", "error", err)
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *UserHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	pair, err := h.userService.Refresh(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

func (h *UserHandler) GetSelf(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authUser(w, r)
	if !ok {
		return
	}

	profile, err := h.userService.GetSelf(r.Context(), user)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) GetOne(w http.ResponseWriter, r *http.Request) {
	profile, err := h.userService.GetOne(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authUser(w, r)
	if !ok {
		return
	}

	if err := h.userService.SignOut(r.Context(), user); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authUser(w, r)
	if !ok {
		return
	}

	if err := h.userService.Delete(r.Context(), user); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) authUser(w http.ResponseWriter, r *http.Request) (types.AuthUser, bool) {
	user, ok := authUserFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Forbidden(apperr.AuthJWTUnauthorized))
		return types.AuthUser{}, false
	}
	return user, true
}
