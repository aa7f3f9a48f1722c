package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rohits-web03/meshforge/internal/models"
	"github.com/rohits-web03/meshforge/internal/repositories"
	"github.com/rohits-web03/meshforge/internal/utils"
)

const tokenTTL = 24 * time.Hour

type AuthHandler struct {
	users  *repositories.UserRepository
	secret string
	isProd bool
	logger *zap.Logger
}

func NewAuthHandler(users *repositories.UserRepository, secret string, isProd bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, secret: secret, isProd: isProd, logger: logger}
}

// JWT Claims struct
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type registerInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register godoc
// @Summary Create an account
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body registerInput true "New account"
// @Success 201 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 500 {object} utils.Payload
// @Router /api/v1/auth/sign-up [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input registerInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil || input.Email == "" || input.Username == "" || input.Password == "" {
		badRequest(w, "Invalid input")
		return
	}

	ctx := r.Context()

	// Check if username already exists
	if _, err := h.users.FindByUsername(ctx, input.Username); err == nil {
		badRequest(w, "Username is already taken")
		return
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		h.serverError(w, "Database query failed", err)
		return
	}

	// Check if email already exists
	if _, err := h.users.FindByEmail(ctx, input.Email); err == nil {
		badRequest(w, "User already exists with this email")
		return
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		h.serverError(w, "Database query failed", err)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		h.serverError(w, "Failed to hash password", err)
		return
	}

	user := models.User{
		Username: input.Username,
		Email:    input.Email,
		Password: string(hashed),
	}
	if err := h.users.Create(ctx, &user); err != nil {
		h.serverError(w, "Database insert failed", err)
		return
	}

	utils.JSONResponse(w, http.StatusCreated, utils.Payload{
		Success: true,
		Message: "User registered successfully",
	})
}

type loginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login godoc
// @Summary Log in and receive a session token
// @Description Sets the "token" cookie and also returns the token for clients that send it as a bearer header.
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body loginInput true "Credentials"
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 401 {object} utils.Payload
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input loginInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil || input.Username == "" || input.Password == "" {
		badRequest(w, "Invalid input")
		return
	}

	user, err := h.users.FindByUsername(r.Context(), input.Username)
	switch {
	case errors.Is(err, repositories.ErrUserNotFound):
		utils.JSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		h.serverError(w, "Database error", err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		utils.JSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if h.secret == "" {
		h.serverError(w, "No config found for JWT", errors.New("empty jwt secret"))
		return
	}

	now := time.Now()
	expiration := now.Add(tokenTTL)
	claims := &Claims{
		UserID:   user.ID.String(),
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.secret))
	if err != nil {
		h.serverError(w, "Failed to create token", err)
		return
	}

	sameSite := http.SameSiteLaxMode
	if h.isProd {
		sameSite = http.SameSiteNoneMode
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    tokenString,
		Path:     "/",
		MaxAge:   int(tokenTTL.Seconds()),
		Secure:   h.isProd,
		HttpOnly: true,
		SameSite: sameSite,
	})

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Login successful",
		Data: map[string]any{
			"token":     tokenString,
			"expiresAt": expiration.UTC(),
			"user":      user,
		},
	})
}

// Logout godoc
// @Summary Clear the session cookie
// @Tags Auth
// @Produce json
// @Success 200 {object} utils.Payload
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // maxAge < 0 deletes the cookie
		Secure:   h.isProd,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Logged out successfully",
	})
}

func (h *AuthHandler) serverError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	utils.JSONError(w, http.StatusInternalServerError, msg)
}

func badRequest(w http.ResponseWriter, msg string) {
	utils.JSONError(w, http.StatusBadRequest, msg)
}
