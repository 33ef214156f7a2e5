package handlers

import (
	"crypto/subtle"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillswap/backend/internal/auth"
	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/mailer"
	"github.com/skillswap/backend/internal/matching"
	"github.com/skillswap/backend/internal/media"
	"github.com/skillswap/backend/internal/models"
	"github.com/skillswap/backend/internal/repositories"
	"github.com/skillswap/backend/internal/validation"
)

// AuthHandler implements account registration, verification and session endpoints.
type AuthHandler struct {
	Users           UserStore
	Sessions        SessionManager
	Media           MediaUploader
	Mailer          mailer.Sender
	VerificationTTL time.Duration
	NowFunc         func() time.Time
}

type signUpRequest struct {
	Username     string   `json:"username" validate:"required,min=2,max=20"`
	Email        string   `json:"email" validate:"required,email"`
	Password     string   `json:"password" validate:"required,min=6"`
	Skills       []string `json:"skills" validate:"min=1,max=10,dive,min=2,max=30"`
	WantedSkills []string `json:"wantedSkills" validate:"min=1,max=10"`
}

type verifyRequest struct {
	Username string `json:"username" validate:"required"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// SignUp handles POST /api/v1/auth/signup. It accepts multipart form data with an
// optional profilePic file, or a JSON body without one.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil {
		logger.Error("authentication dependencies unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	var req signUpRequest
	var picture *multipart.FileHeader
	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, media.MaxImageBytes+(1<<20))
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			status, msg := parseFormStatus(err)
			respondError(ctx, w, status, msg)
			return
		}
		req = signUpRequest{
			Username:     r.FormValue("username"),
			Email:        r.FormValue("email"),
			Password:     r.FormValue("password"),
			Skills:       parseList(r.FormValue("skills")),
			WantedSkills: parseList(r.FormValue("wantedSkills")),
		}
		header, err := formFile(r, "profilePic")
		if err != nil {
			respondError(ctx, w, http.StatusBadRequest, "invalid profile picture")
			return
		}
		picture = header
	} else if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid signup payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Skills = matching.NormalizeSkills(req.Skills)
	req.WantedSkills = matching.NormalizeSkills(req.WantedSkills)
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	if existing, err := h.Users.FindByUsername(ctx, req.Username); err == nil && existing.Verified {
		respondError(ctx, w, http.StatusConflict, "username already exists")
		return
	} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("signup username lookup failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to verify existing accounts")
		return
	}

	code, err := auth.GenerateCode()
	if err != nil {
		logger.Error("signup failed to generate code", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create account")
		return
	}
	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("signup failed to hash password", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to secure password")
		return
	}

	now := h.now()
	expires := now.Add(h.verificationTTL())

	user, err := h.Users.FindByEmail(ctx, req.Email)
	status, message := http.StatusOK, "verification code refreshed"
	switch {
	case err == nil && user.Verified:
		respondError(ctx, w, http.StatusConflict, "an account with this email already exists")
		return
	case err == nil:
		user.Password = hashed
		user.VerificationCode = code
		user.VerificationExpiresAt = expires
		user.UpdatedAt = now
		if err := h.Users.Update(ctx, user); err != nil {
			logger.Error("signup failed to refresh unverified account", "error", err, "userId", user.ID)
			respondError(ctx, w, http.StatusInternalServerError, "failed to update account")
			return
		}
		if err := h.Sessions.RevokeAll(ctx, user.ID); err != nil {
			logger.Warn("signup failed to revoke sessions of refreshed account", "error", err, "userId", user.ID)
		}
	case errors.Is(err, repositories.ErrNotFound):
		user = models.User{
			ID:                    uuid.NewString(),
			Username:              req.Username,
			Email:                 req.Email,
			Password:              hashed,
			Skills:                req.Skills,
			WantedSkills:          req.WantedSkills,
			VerificationCode:      code,
			VerificationExpiresAt: expires,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		var stored []media.Asset
		if picture != nil {
			asset, err := storeUpload(ctx, h.Media, media.KindImage, picture)
			if err != nil {
				status, msg := uploadStatus(err)
				logger.Warn("signup profile picture rejected", "error", err)
				respondError(ctx, w, status, msg)
				return
			}
			user.ProfilePic = asset.URL
			stored = append(stored, asset)
		}
		if err := h.Users.Create(ctx, user); err != nil {
			if len(stored) > 0 {
				discardUploads(ctx, h.Media, stored...)
			}
			if errors.Is(err, repositories.ErrConflict) {
				respondError(ctx, w, http.StatusConflict, "username or email already exists")
				return
			}
			logger.Error("signup failed to create user", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "failed to create account")
			return
		}
		status, message = http.StatusCreated, "account created; check your email for the verification code"
	default:
		logger.Error("signup email lookup failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to verify existing accounts")
		return
	}

	if h.Mailer != nil {
		err := h.Mailer.SendVerification(ctx, mailer.Verification{
			To:        user.Email,
			Username:  user.Username,
			Code:      code,
			ExpiresAt: expires,
		})
		if err != nil {
			logger.Error("signup failed to send verification code", "error", err, "userId", user.ID)
			respondError(ctx, w, http.StatusBadGateway, "error while sending verification code")
			return
		}
	}

	respondSuccess(ctx, w, status, message, envelope{"username": user.Username})
}

// Verify handles POST /api/v1/auth/verify.
func (h AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Code = strings.TrimSpace(req.Code)
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.Users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not found")
			return
		}
		logger.Error("verify lookup failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to verify account")
		return
	}
	if user.Verified {
		respondSuccess(ctx, w, http.StatusOK, "account already verified", nil)
		return
	}

	if subtle.ConstantTimeCompare([]byte(user.VerificationCode), []byte(req.Code)) != 1 {
		respondError(ctx, w, http.StatusBadRequest, "incorrect verification code")
		return
	}
	if !h.now().Before(user.VerificationExpiresAt) {
		respondError(ctx, w, http.StatusBadRequest, "verification code has expired; sign up again to get a new code")
		return
	}

	if err := h.Users.MarkVerified(ctx, user.ID); err != nil {
		logger.Error("verify failed to mark account", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to verify account")
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "account verified", nil)
}

// Login handles POST /api/v1/auth/login.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			logger.Error("login user lookup failed", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "unable to sign in")
			return
		}
		respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, auth.Principal{UserID: user.ID, Username: user.Username, Verified: user.Verified})
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	respondSuccess(ctx, w, http.StatusOK, "signed in", envelope{"tokens": tokens, "user": user})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil {
		logger.Error("session manager unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "session service unavailable")
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid refresh payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) || errors.Is(err, repositories.ErrNotFound) {
			status = http.StatusUnauthorized
		}
		logger.Warn("refresh failed", "error", err, "status", status)
		respondError(ctx, w, status, "unable to refresh session")
		return
	}

	respondSuccess(ctx, w, http.StatusOK, "session refreshed", envelope{"tokens": tokens})
}

// Logout revokes the presented refresh token.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		respondError(ctx, w, http.StatusBadRequest, "refreshToken is required")
		return
	}
	h.Sessions.Revoke(ctx, strings.TrimSpace(req.RefreshToken))
	respondSuccess(ctx, w, http.StatusOK, "signed out", nil)
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func (h AuthHandler) verificationTTL() time.Duration {
	if h.VerificationTTL > 0 {
		return h.VerificationTTL
	}
	return time.Hour
}
