package i18n

import "net/http"

// LangCookie holds a language the user picked explicitly.
const LangCookie = "lang"

// Middleware resolves the request language from the ?lang= parameter, the
// lang cookie and Accept-Language, in that order, and injects its localizer
// into the request context. A ?lang= choice is remembered in the cookie.
func Middleware(fallback string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cookie string
			if c, err := r.Cookie(LangCookie); err == nil {
				cookie = c.Value
			}
			lang := Match(r.URL.Query().Get("lang"), cookie, r.Header.Get("Accept-Language"), fallback)

			if q := r.URL.Query().Get("lang"); q != "" && q == lang && q != cookie {
				http.SetCookie(w, &http.Cookie{
					Name:     LangCookie,
					Value:    lang,
					Path:     "/",
					MaxAge:   365 * 24 * 3600,
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
