package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-board-api/internal/models"
	"github.com/noah-isme/campus-board-api/internal/service"
)

type stubAuthRepo struct{}

func (stubAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, sql.ErrNoRows
}
func (stubAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	return nil, sql.ErrNoRows
}
func (stubAuthRepo) Create(ctx context.Context, user *models.User) error    { return nil }
func (stubAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}
func (stubAuthRepo) UpdatePassword(ctx context.Context, id, hash string, ts time.Time) error {
	return nil
}
func (stubAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error { return nil }
func (stubAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	return nil
}
func (stubAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	return nil, sql.ErrNoRows
}
func (stubAuthRepo) RevokeRefreshToken(ctx context.Context, id string, ts time.Time) error {
	return nil
}
func (stubAuthRepo) CreatePasswordResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	return nil
}
func (stubAuthRepo) FindPasswordResetToken(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	return nil, sql.ErrNoRows
}
func (stubAuthRepo) MarkPasswordResetTokenUsed(ctx context.Context, id string, usedAt time.Time) error {
	return nil
}
func (stubAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error { return nil }

func testRouter(t *testing.T) (*gin.Engine, *service.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	authSvc := service.NewAuthService(stubAuthRepo{}, validator.New(), zap.NewNop(), service.AuthConfig{
		AccessTokenSecret: "mw-test-secret",
		AccessTokenExpiry: time.Minute,
	})
	r := gin.New()
	return r, authSvc
}

func signToken(t *testing.T, secret string, role models.UserRole, expired bool) string {
	t.Helper()
	exp := time.Now().Add(time.Minute)
	if expired {
		exp = time.Now().Add(-time.Minute)
	}
	claims := &models.JWTClaims{
		UserID: "u-1",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	r, authSvc := testRouter(t)
	r.GET("/protected", JWT(authSvc), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	r, authSvc := testRouter(t)
	r.GET("/protected", JWT(authSvc), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "mw-test-secret", models.RoleStudent, true))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAcceptsValidToken(t *testing.T) {
	r, authSvc := testRouter(t)
	r.GET("/protected", JWT(authSvc), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.JSON(http.StatusOK, gin.H{"user": claims.UserID})
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "mw-test-secret", models.RoleTeacher, false))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "u-1")
}

func TestRequireRolesBlocksStudent(t *testing.T) {
	r, authSvc := testRouter(t)
	r.POST("/notices", JWT(authSvc), RequireRoles(models.RoleAdmin, models.RoleTeacher), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/notices", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "mw-test-secret", models.RoleStudent, false))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/notices", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "mw-test-secret", models.RoleTeacher, false))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestOptionalJWTAcceptsQueryToken(t *testing.T) {
	r, authSvc := testRouter(t)
	r.GET("/feed", OptionalJWT(authSvc), func(c *gin.Context) {
		if _, ok := c.Get(ContextUserKey); ok {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	token := signToken(t, "mw-test-secret", models.RoleStudent, false)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed?access_token="+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
