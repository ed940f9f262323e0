package http

import (
	"net/http"

	"github.com/droneops/facilityd/pkg/flashx"
	"github.com/droneops/facilityd/pkg/httpx"
	"github.com/droneops/facilityd/pkg/sessionx"
)

const (
	signInPath   = "/sign-in"
	registerPath = "/register"
	accountPath  = "/account"
)

// RequireUser rejects anonymous requests with a redirect to the sign-in page.
// It only establishes WHO is calling; every permission decision re-reads the
// caller's record downstream.
func RequireUser(sessions *sessionx.Manager) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := sessions.Load(r)
			if !s.Authenticated() {
				flashx.Write(w, flashx.Error("Please sign in first."))
				httpx.SeeOther(w, r, signInPath)
				return
			}

			ctx := httpx.ContextWithUserID(r.Context(), s.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// redirectBack sends the caller to the page they came from, or to fallback
// when the request carried no referer.
func redirectBack(w http.ResponseWriter, r *http.Request, fallback string) {
	target := r.Referer()
	if target == "" {
		target = fallback
	}
	httpx.SeeOther(w, r, target)
}
