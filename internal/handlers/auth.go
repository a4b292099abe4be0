package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tasktrack/apiserver/internal/services"
	"github.com/tasktrack/apiserver/internal/storage"
	"github.com/tasktrack/apiserver/types"
)

const defaultTokenTTL = 24 * time.Hour

const (
	maxAvatarMemory = 8 << 20
	maxAvatarBytes  = 8 << 20
	formFieldAvatar = "picture"
)

// AuthHandler provides account and bearer-token endpoints.
type AuthHandler struct {
	userService  *services.UserService
	tokenService *services.TokenService
	avatars      storage.ObjectStorage
	secret       []byte
	tokenTTL     time.Duration
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
// avatars may be nil, disabling the upload endpoint.
func NewAuthHandler(userService *services.UserService, tokenService *services.TokenService, avatars storage.ObjectStorage, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		userService:  userService,
		tokenService: tokenService,
		avatars:      avatars,
		secret:       []byte(jwtSecret),
		tokenTTL:     defaultTokenTTL,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, userService *services.UserService, tokenService *services.TokenService, avatars storage.ObjectStorage, jwtSecret string) {
	handler := NewAuthHandler(userService, tokenService, avatars, jwtSecret)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(handler.RequireAuth).Post("/logout", handler.Logout)
	r.With(handler.RequireAuth).Get("/profile", handler.Profile)
	r.With(handler.RequireAuth).Put("/profile", handler.UpdateProfile)
	r.With(handler.RequireAuth).Put("/profile/picture", handler.UploadProfilePicture)
}

// RequireAuth enforces bearer authentication and injects the subject and
// token id into context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return requireAuth(h.secret, h.tokenService)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(jwtSecret string, tokenService *services.TokenService) func(http.Handler) http.Handler {
	return requireAuth([]byte(jwtSecret), tokenService)
}

func requireAuth(secret []byte, tokenService *services.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			subject, tokenID, err := parseToken(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			// Signature alone is not enough: the token must still be
			// recorded, so logout actually revokes access.
			if !tokenService.Live(r.Context(), tokenID) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, subject)
			ctx = context.WithValue(ctx, contextTokenKey, tokenID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Register creates a new user account and returns a bearer token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.Register(r.Context(), services.RegisterInput{
		Username:          strings.TrimSpace(req.Username),
		Email:             strings.TrimSpace(req.Email),
		Password:          req.Password,
		PasswordConfirm:   req.Password2,
		FirstName:         strings.TrimSpace(req.FirstName),
		LastName:          strings.TrimSpace(req.LastName),
		Bio:               req.Bio,
		ProfilePictureURL: strings.TrimSpace(req.ProfilePicture),
	})
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to create user")
		return
	}

	token, err := h.issueToken(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		User:    user,
		Token:   token,
		Message: "User created successfully",
	})
}

// Login verifies credentials and returns a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, err := h.issueToken(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// Logout revokes the presented token. Revocation is best-effort: a
// failed delete still reports success.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if tokenID, err := tokenIDFromContext(r.Context()); err == nil {
		_ = h.tokenService.Revoke(r.Context(), tokenID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Successfully logged out."})
}

// Profile returns the current authenticated user.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile updates the current user's profile fields.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), userID, services.ProfileInput{
		Username:          strings.TrimSpace(req.Username),
		Email:             strings.TrimSpace(req.Email),
		FirstName:         strings.TrimSpace(req.FirstName),
		LastName:          strings.TrimSpace(req.LastName),
		Bio:               req.Bio,
		ProfilePictureURL: strings.TrimSpace(req.ProfilePicture),
	})
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UploadProfilePicture stores an avatar image in object storage and sets
// the user's profile picture URL to its public location.
func (h *AuthHandler) UploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		writeError(w, http.StatusServiceUnavailable, "profile picture storage is not configured")
		return
	}

	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxAvatarMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldAvatar)
	if err != nil {
		writeError(w, http.StatusBadRequest, "picture file is required")
		return
	}
	defer file.Close()

	if header.Size > maxAvatarBytes {
		writeError(w, http.StatusBadRequest, "picture file too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	ext := strings.ToLower(filepath.Ext(header.Filename))
	key := fmt.Sprintf("avatars/%d/%s%s", userID, uuid.NewString(), ext)

	if err := h.avatars.Put(r.Context(), key, file, header.Size, contentType); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store picture")
		return
	}

	user, err := h.userService.SetProfilePicture(r.Context(), userID, h.avatars.PublicURL(key))
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type RegisterRequest struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Password2      string `json:"password2"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Bio            string `json:"bio"`
	ProfilePicture string `json:"profile_picture"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ProfileRequest struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Bio            string `json:"bio"`
	ProfilePicture string `json:"profile_picture"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

type RegisterResponse struct {
	User    types.User `json:"user"`
	Token   string     `json:"token"`
	Message string     `json:"message"`
}

func (h *AuthHandler) issueToken(ctx context.Context, userID int) (string, error) {
	now := time.Now()
	expiresAt := now.Add(h.tokenTTL)
	tokenID := uuid.NewString()

	claims := jwt.RegisteredClaims{
		ID:        tokenID,
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.secret)
	if err != nil {
		return "", err
	}

	if err := h.tokenService.Record(ctx, tokenID, userID, expiresAt); err != nil {
		return "", err
	}
	return signed, nil
}

func parseToken(tokenString string, secret []byte) (subject, tokenID string, err error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", "", errors.New("missing subject")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return "", "", errors.New("missing token id")
	}
	return claims.Subject, claims.ID, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
