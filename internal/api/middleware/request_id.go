package middleware

import (
	"context"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request reference in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds client-supplied IDs; longer or non-printable values are replaced.
const maxRequestIDLen = 64

type ctxKey int

const (
	requestIDKey ctxKey = iota
	callerKey
)

// caller is the authenticated identity attached by JWTAuth.
type caller struct {
	username string
	roles    []string
}

// RequestID assigns the reference returned in error bodies and logged by handlers.
// A well-formed inbound X-Request-ID is kept so a trigger call can be traced from
// the scheduler through the server log.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if !validRequestID(rid) {
			id, err := uuid.NewV7()
			if err != nil {
				id = uuid.New()
			}
			rid = id.String()
		}
		c.Writer.Header().Set(RequestIDHeader, rid)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDKey, rid))
		c.Next()
	}
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetRequestID returns the request reference, or "" outside a request.
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// SetUserContext attaches the authenticated caller.
func SetUserContext(ctx context.Context, username string, roles []string) context.Context {
	return context.WithValue(ctx, callerKey, caller{username: username, roles: slices.Clone(roles)})
}

// GetUsername returns the authenticated username, or "".
func GetUsername(ctx context.Context) string {
	v, _ := ctx.Value(callerKey).(caller)
	return v.username
}

// GetRoles returns the authenticated caller's roles.
func GetRoles(ctx context.Context) []string {
	v, _ := ctx.Value(callerKey).(caller)
	return v.roles
}

// LogFields returns the request reference and caller for structured logs.
func LogFields(ctx context.Context) []zap.Field {
	fields := []zap.Field{zap.String("request_id", GetRequestID(ctx))}
	if u := GetUsername(ctx); u != "" {
		fields = append(fields, zap.String("username", u))
	}
	return fields
}
