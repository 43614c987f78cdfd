package web

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// LearnerCookie names the cookie holding the learner id.
const LearnerCookie = "kioku_learner"

type contextKey string

const learnerIDKey contextKey = "learnerID"

const learnerCookieMaxAge = 10 * 365 * 24 * time.Hour

// withLearner makes sure every request carries a learner id. Visitors without
// a valid id cookie get a new random one.
func withLearner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if cookie, err := r.Cookie(LearnerCookie); err == nil {
			if parsed, err := uuid.Parse(cookie.Value); err == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     LearnerCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(learnerCookieMaxAge.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := context.WithValue(r.Context(), learnerIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LearnerID returns the learner id stored by withLearner.
func LearnerID(ctx context.Context) string {
	id, _ := ctx.Value(learnerIDKey).(string)
	return id
}
