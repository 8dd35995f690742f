package model

import (
	"context"
	"time"
)

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// AuthSession is the server-side half of the login marker.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// QuizAttempt records one "check answers" action on a segment quiz.
type QuizAttempt struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	SegmentID string    `json:"segment_id"`
	Correct   int       `json:"correct"`
	Total     int       `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

// AppConfig holds runtime parameters set via CLI flags, environment or config file.
type AppConfig struct {
	APIURL         string        // Base URL of the processing backend
	BasePath       string        // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies  bool          // Set Secure flag on cookies (disable for local dev)
	MaxUploadBytes int64         // Upload size cap enforced before a file reaches the workflow
	UploadDir      string        // Where selected files are spooled until submitted
	RequestTimeout time.Duration // Bound on the processing request
	ResultsDelay   time.Duration // Pause between "complete" and switching to the results view
	SessionTTL     time.Duration // Lifetime of a login marker
	AllowRegister  bool          // Whether the register form is offered
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
