package devapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/pkg/errors"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"

	tokenAccess  = "access"
	tokenRefresh = "refresh"

	ctxUserKey = "user"
)

// tokens issues and verifies the access/refresh cookie pair
type tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	secure     bool
	now        func() time.Time
}

func newTokens(secret string, secure bool) *tokens {
	return &tokens{
		secret:     []byte(secret),
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
		secure:     secure,
		now:        time.Now,
	}
}

func (t *tokens) sign(user domain.User, typ string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"role":    string(user.Role),
		"typ":     typ,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// verify returns the user id carried by a token of the given type
func (t *tokens) verify(raw, typ string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", &errors.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", &errors.ErrUnauthorized{Message: "invalid token claims"}
	}
	if got, _ := claims["typ"].(string); got != typ {
		return "", &errors.ErrUnauthorized{Message: "wrong token type"}
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", &errors.ErrUnauthorized{Message: "user id not found in token"}
	}
	return userID, nil
}

func (t *tokens) setCookies(c *gin.Context, user domain.User) error {
	access, err := t.sign(user, tokenAccess, t.accessTTL)
	if err != nil {
		return fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := t.sign(user, tokenRefresh, t.refreshTTL)
	if err != nil {
		return fmt.Errorf("failed to sign refresh token: %w", err)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessCookie, access, int(t.refreshTTL.Seconds()), "/", "", t.secure, true)
	c.SetCookie(refreshCookie, refresh, int(t.refreshTTL.Seconds()), "/", "", t.secure, true)
	return nil
}

func (t *tokens) clearCookies(c *gin.Context) {
	c.SetCookie(accessCookie, "", -1, "/", "", t.secure, true)
	c.SetCookie(refreshCookie, "", -1, "/", "", t.secure, true)
}

// authMiddleware resolves the access cookie to a user
func authMiddleware(store *Store, t *tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(accessCookie)
		if err != nil || raw == "" {
			fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "not authenticated", nil)
			return
		}

		userID, err := t.verify(raw, tokenAccess)
		if err != nil {
			fail(c, http.StatusUnauthorized, "TOKEN_EXPIRED", err.Error(), nil)
			return
		}

		user, err := store.User(userID)
		if err != nil {
			fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "account no longer exists", nil)
			return
		}

		c.Set(ctxUserKey, user)
		c.Next()
	}
}

func adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentUser(c).IsAdmin() {
			fail(c, http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.User {
	if v, ok := c.Get(ctxUserKey); ok {
		if u, ok := v.(domain.User); ok {
			return u
		}
	}
	return domain.User{}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,min=2"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// handleRegister handles POST /api/auth/register
func handleRegister(store *Store, t *tokens, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if !bindJSON(c, &req) {
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			handleError(c, fmt.Errorf("failed to hash password: %w", err), logger)
			return
		}

		user, err := store.CreateUser(domain.User{Name: req.Name, Email: req.Email}, string(hash))
		if err != nil {
			handleError(c, err, logger)
			return
		}
		if err := t.setCookies(c, user); err != nil {
			handleError(c, err, logger)
			return
		}

		logger.Info("User registered", zap.String("user_id", user.ID))
		respond(c, http.StatusCreated, user)
	}
}

// handleLogin handles POST /api/auth/login. Bad credentials are a 400 so
// clients do not mistake them for an expired session.
func handleLogin(store *Store, t *tokens, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if !bindJSON(c, &req) {
			return
		}

		record, err := store.UserByEmail(req.Email)
		if err == nil {
			err = bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(req.Password))
		}
		if err != nil {
			fail(c, http.StatusBadRequest, "INVALID_CREDENTIALS", "Invalid email or password", nil)
			return
		}

		if err := t.setCookies(c, record.User); err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, record.User)
	}
}

// handleRefresh handles POST /api/auth/refresh
func handleRefresh(store *Store, t *tokens, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(refreshCookie)
		if err != nil || raw == "" {
			fail(c, http.StatusUnauthorized, "NO_REFRESH_TOKEN", "missing refresh token", nil)
			return
		}

		userID, err := t.verify(raw, tokenRefresh)
		if err != nil {
			t.clearCookies(c)
			fail(c, http.StatusUnauthorized, "INVALID_TOKEN", err.Error(), nil)
			return
		}

		user, err := store.User(userID)
		if err != nil {
			t.clearCookies(c)
			fail(c, http.StatusUnauthorized, "INVALID_TOKEN", "account no longer exists", nil)
			return
		}

		if err := t.setCookies(c, user); err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, user)
	}
}

// handleLogout handles POST /api/auth/logout
func handleLogout(t *tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		t.clearCookies(c)
		respondMessage(c, "Logged out")
	}
}

// handleMe handles GET /api/auth/me
func handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, http.StatusOK, currentUser(c))
	}
}
