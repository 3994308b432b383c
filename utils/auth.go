package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"learnedge/apperr"
	"learnedge/config"
	"learnedge/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Context keys set by AuthMiddleware.
const (
	ctxUserID    = "userID"
	ctxUserName  = "userName"
	ctxUserEmail = "userEmail"
	ctxUserRole  = "userRole"

	tokenIssuer = "learnedge"
)

// --- Password Hashing ---

// HashPassword generates a bcrypt hash for the given password using the given cost.
func HashPassword(password string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a plain text password with a stored bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// --- JWT Handling ---

// Claims defines the structure of the JWT claims.
type Claims struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the caller identity carried by the claims.
func (c *Claims) Identity() models.Identity {
	return models.Identity{UserID: c.UserID, UserName: c.UserName, UserEmail: c.UserEmail, Role: c.Role}
}

// GenerateJWT creates a signed access token for the account.
func GenerateJWT(account models.Account, cfg *config.Config) (string, error) {
	if cfg.JwtSecret == "" {
		return "", errors.New("JWT secret is not configured")
	}

	now := time.Now()
	claims := &Claims{
		UserID:    account.ID,
		UserName:  account.UserName,
		UserEmail: account.UserEmail,
		Role:      account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   account.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(cfg.JwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT parses and validates a token string. Failures are Unauthorized
// errors that tell an expired token apart from an invalid one.
func ValidateJWT(tokenString string, cfg *config.Config) (*Claims, error) {
	if cfg.JwtSecret == "" {
		return nil, apperr.Internal(errors.New("JWT secret is not configured"), "validating token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.JwtSecret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &apperr.Error{Kind: apperr.KindUnauthorized, Message: "token has expired", Err: err}
		}
		return nil, &apperr.Error{Kind: apperr.KindUnauthorized, Message: "invalid token", Err: err}
	}
	if !token.Valid || claims.UserID == "" {
		return nil, apperr.Unauthorized("invalid token")
	}
	return claims, nil
}

// AuthMiddleware rejects requests without a valid bearer token and stores the
// caller identity in the gin context.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			RespondError(c, apperr.Unauthorized("authorization header required"))
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			RespondError(c, apperr.Unauthorized("authorization header format must be Bearer {token}"))
			return
		}

		claims, err := ValidateJWT(parts[1], cfg)
		if err != nil {
			RespondError(c, err)
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUserName, claims.UserName)
		c.Set(ctxUserEmail, claims.UserEmail)
		c.Set(ctxUserRole, claims.Role)
		c.Next()
	}
}

// RequireRole allows only callers whose token carries the role.
// It must run after AuthMiddleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxUserRole) != role {
			RespondError(c, apperr.Forbidden("this action requires the %s role", role))
			return
		}
		c.Next()
	}
}

// CurrentIdentity returns the identity stored by AuthMiddleware.
func CurrentIdentity(c *gin.Context) (models.Identity, bool) {
	userID := c.GetString(ctxUserID)
	if userID == "" {
		return models.Identity{}, false
	}
	return models.Identity{
		UserID:    userID,
		UserName:  c.GetString(ctxUserName),
		UserEmail: c.GetString(ctxUserEmail),
		Role:      c.GetString(ctxUserRole),
	}, true
}

// MustIdentity is CurrentIdentity for handlers mounted behind AuthMiddleware.
// It answers 401 itself when the identity is missing.
func MustIdentity(c *gin.Context) (models.Identity, bool) {
	id, ok := CurrentIdentity(c)
	if !ok {
		RespondError(c, apperr.Unauthorized("authentication required"))
	}
	return id, ok
}
