package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/lecturequiz/internal/handler/views"
	appI18n "github.com/pavelanni/lecturequiz/internal/i18n"
	"github.com/pavelanni/lecturequiz/internal/model"
	"github.com/pavelanni/lecturequiz/internal/notify"
	"github.com/pavelanni/lecturequiz/internal/store"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"

	minPasswordLen = 8
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cookiePath(),
		HttpOnly: httpOnly,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
}

// csrfMiddleware implements the double-submit cookie check. Safe methods get
// a token if they have none; unsafe methods must echo the cookie in the
// csrf_token form field or the X-CSRF-Token header. The token is kept for the
// cookie's lifetime so several forms on one page stay valid.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(csrfCookieName)
		hasCookie := err == nil && cookie.Value != ""

		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			token := ""
			if hasCookie {
				token = cookie.Value
			} else {
				token, err = generateCSRFToken()
				if err != nil {
					slog.Error("failed to generate CSRF token", "error", err)
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
				h.setCookie(w, csrfCookieName, token, false)
			}
			ctx := model.ContextWithCSRFToken(r.Context(), token)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if !hasCookie {
			slog.Warn("CSRF cookie missing", "path", r.URL.Path)
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}

		sent := r.Header.Get(csrfHeaderName)
		if sent == "" {
			if err := parseForm(r); err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					slog.Warn("request body too large", "path", r.URL.Path, "limit", tooLarge.Limit)
					h.renderError(w, r, http.StatusRequestEntityTooLarge, "RequestTooLarge")
					return
				}
				slog.Warn("failed to parse form", "path", r.URL.Path, "error", err)
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			// Handlers below share this form; its spilled files must not
			// outlive the request however it ends.
			if r.MultipartForm != nil {
				defer func() { _ = r.MultipartForm.RemoveAll() }()
			}
			sent = r.PostFormValue("csrf_token")
		}
		if sent == "" {
			slog.Warn("CSRF form token missing", "path", r.URL.Path)
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}
		if len(sent) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(sent), []byte(cookie.Value)) != 1 {
			slog.Warn("CSRF token mismatch", "path", r.URL.Path)
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}

		ctx := model.ContextWithCSRFToken(r.Context(), cookie.Value)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// parseForm reads an urlencoded or multipart body. Multipart files beyond
// the in-memory threshold spill to temporary files.
func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}

// limitBody caps every request body so an oversized upload fails early.
func (h *Handler) limitBody(next http.Handler) http.Handler {
	limit := h.config.MaxUploadBytes
	if limit <= 0 {
		return next
	}
	limit += uploadSlack
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth resolves the login marker to a user or sends the browser to
// the login page.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			h.redirectToLogin(w, r)
			return
		}

		user, err := h.store.UserForSession(cookie.Value)
		if err != nil {
			slog.Error("failed to resolve auth session", "error", err)
			h.redirectToLogin(w, r)
			return
		}
		if user == nil {
			h.redirectToLogin(w, r)
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	loginPath := h.path("/login")
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", loginPath)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

// BasePathMiddleware makes the configured URL prefix available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderAuth(w, r, http.StatusOK, views.LoginPage, views.AuthData{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	user, err := h.store.GetUserByUsername(username)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		h.renderAuth(w, r, http.StatusInternalServerError, views.LoginPage, views.AuthData{ErrorID: "ErrorTitle", Username: username})
		return
	}
	if user == nil || !user.Active {
		h.renderAuth(w, r, http.StatusUnauthorized, views.LoginPage, views.AuthData{ErrorID: "InvalidCredentials", Username: username})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		h.renderAuth(w, r, http.StatusUnauthorized, views.LoginPage, views.AuthData{ErrorID: "InvalidCredentials", Username: username})
		return
	}

	h.startSession(w, r, user)
}

func (h *Handler) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if !h.config.AllowRegister {
		h.renderError(w, r, http.StatusNotFound, "NotFound")
		return
	}
	h.renderAuth(w, r, http.StatusOK, views.RegisterPage, views.AuthData{})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !h.config.AllowRegister {
		h.renderError(w, r, http.StatusNotFound, "NotFound")
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	displayName := strings.TrimSpace(r.FormValue("display_name"))
	password := r.FormValue("password")

	fail := func(id string, data map[string]any) {
		h.renderAuth(w, r, http.StatusBadRequest, views.RegisterPage, views.AuthData{ErrorID: id, ErrorData: data, Username: username})
	}
	switch {
	case username == "":
		fail("UsernameRequired", nil)
		return
	case len(password) < minPasswordLen:
		fail("PasswordTooShort", map[string]any{"Min": minPasswordLen})
		return
	case password != r.FormValue("confirm_password"):
		fail("PasswordMismatch", nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if displayName == "" {
		displayName = username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Active:       true,
	})
	if errors.Is(err, store.ErrUsernameTaken) {
		fail("UsernameTaken", nil)
		return
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	user, err := h.store.GetUserByID(id)
	if err != nil || user == nil {
		slog.Error("failed to load new user", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.startSession(w, r, user)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *model.User) {
	token, err := h.store.CreateAuthSession(user.ID, h.config.SessionTTL)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.setCookie(w, sessionCookieName, token, true)
	slog.Info("user logged in", "user", user.Username)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := h.store.DeleteAuthSession(cookie.Value); err != nil {
			slog.Error("failed to delete auth session", "error", err)
		}
	}
	h.clearCookie(w, sessionCookieName)

	// The workspace goes with the login; the farewell toast rides on a fresh one.
	if ws := workspaceFrom(r.Context()); ws != nil {
		h.workspaces.Drop(ws.ID)
	}
	fresh := h.workspaces.Get("")
	fresh.Notifications.Notify(notify.Success(notify.MsgLoggedOut, nil))
	h.setCookie(w, workspaceCookieName, fresh.ID, true)

	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}

type authPage func(views.AuthData) templ.Component

// renderAuth renders a login or register page, showing any notifications
// waiting in the browser's workspace.
func (h *Handler) renderAuth(w http.ResponseWriter, r *http.Request, status int, page authPage, d views.AuthData) {
	if c, err := r.Cookie(workspaceCookieName); err == nil {
		if ws, ok := h.workspaces.Lookup(c.Value); ok {
			d.Notifications = ws.Notifications.Drain()
		}
	}
	d.Languages = appI18n.Languages()
	h.renderPage(w, r, status, page(d))
}
