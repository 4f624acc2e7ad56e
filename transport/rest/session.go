package rest

import (
	"context"
	"net/http"

	"github.com/rocketscienceinc/tictactoe-sync/internal/pkg"
)

type sessionKey struct{}

// withSession - binds every request to a game session, issuing a cookie on first visit.
func (that *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := ""
		if cookie, err := r.Cookie(that.session.CookieName); err == nil && pkg.IsValidSessionID(cookie.Value) {
			sessionID = cookie.Value
		}

		if sessionID == "" {
			sessionID = pkg.GenerateNewSessionID()

			http.SetCookie(w, &http.Cookie{
				Name:     that.session.CookieName,
				Value:    sessionID,
				Path:     "/",
				MaxAge:   int(that.session.MaxAge.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sessionID)))
	})
}

func sessionFromContext(ctx context.Context) string {
	sessionID, _ := ctx.Value(sessionKey{}).(string)
	return sessionID
}
