package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fieldops.io/fieldops/internal/pkg/errors"
)

var testJWT = JWTConfig{
	SigningKey: []byte("test-signing-key-1234567890123456"),
	Issuer:     "fieldops",
	ExpiresIn:  time.Hour,
}

func TestJWTConfigValidateToken_Success(t *testing.T) {
	token, expiresAt, err := GenerateToken(testJWT, "alice", []string{"manager"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := testJWT.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, []string{"manager"}, claims.Roles)
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.NotBefore)
}

func TestJWTConfigValidateToken_RejectsInvalidIssuer(t *testing.T) {
	token, _, err := GenerateToken(testJWT, "alice", nil)
	require.NoError(t, err)

	_, err = JWTConfig{SigningKey: testJWT.SigningKey, Issuer: "other-issuer"}.ValidateToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestJWTConfigValidateToken_SupportsVerificationKeyRotation(t *testing.T) {
	oldKey := []byte("old-key-123456789012345678901234567890")
	newKey := []byte("new-key-123456789012345678901234567890")

	token, _, err := GenerateToken(JWTConfig{SigningKey: oldKey, Issuer: "fieldops", ExpiresIn: time.Hour}, "alice", nil)
	require.NoError(t, err)

	claims, err := JWTConfig{
		SigningKey:       newKey,
		VerificationKeys: [][]byte{oldKey},
		Issuer:           "fieldops",
	}.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	_, err = JWTConfig{SigningKey: newKey, Issuer: "fieldops"}.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestJWTConfigValidateToken_RejectsNoneSigningMethod(t *testing.T) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "fieldops",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = testJWT.ValidateToken(tokenString)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestJWTConfigValidateToken_RequiresKey(t *testing.T) {
	_, err := JWTConfig{}.ValidateToken("x.y.z")
	assert.ErrorContains(t, err, "no jwt keys configured")
}

func newAuthRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.Use(handlers...)
	r.GET("/p", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": GetUsername(c.Request.Context())})
	})
	return r
}

func decodeAppError(t *testing.T, w *httptest.ResponseRecorder) apperrors.Response {
	t.Helper()
	var body apperrors.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJWTAuth(t *testing.T) {
	valid, _, err := GenerateToken(testJWT, "alice", []string{"admin"})
	require.NoError(t, err)
	expired, _, err := GenerateToken(JWTConfig{SigningKey: testJWT.SigningKey, Issuer: "fieldops", ExpiresIn: -time.Minute}, "alice", nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, apperrors.CodeTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			newAuthRouter(JWTAuth(testJWT)).ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantErr == "" {
				assert.Contains(t, w.Body.String(), `"username":"alice"`)
				return
			}
			body := decodeAppError(t, w)
			assert.Equal(t, tt.wantErr, body.Code)
			assert.Equal(t, w.Header().Get(RequestIDHeader), body.Reference)
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		roles    []string
		wantCode int
	}{
		{"manager allowed", []string{"manager"}, http.StatusOK},
		{"admin allowed", []string{"technician", "admin"}, http.StatusOK},
		{"technician denied", []string{"technician"}, http.StatusForbidden},
		{"no roles denied", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := GenerateToken(testJWT, "alice", tt.roles)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			newAuthRouter(JWTAuth(testJWT), RequireRole("admin", "manager")).ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusForbidden {
				assert.Equal(t, apperrors.CodeForbidden, decodeAppError(t, w).Code)
			}
		})
	}
}
