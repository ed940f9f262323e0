package http

import (
	"errors"
	"net/http"

	"github.com/droneops/facilityd/internal/users/service"
	"github.com/droneops/facilityd/pkg/flashx"
	"github.com/droneops/facilityd/pkg/httpx"
	"github.com/droneops/facilityd/pkg/sessionx"
	"github.com/droneops/facilityd/pkg/slogx"
)

// RegisterHandler redeems an invitation key into a new account. The OAuth
// identity pair is popped from the pending session state, one-shot: it is
// gone after this request whether registration succeeds or not.
type RegisterHandler struct {
	Accounts *service.AccountService
	Sessions *sessionx.Manager
}

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	s := h.Sessions.Load(r)
	if s.Authenticated() {
		flashx.Write(w, flashx.Success("You are already signed in."))
		h.Sessions.Save(w, s)
		redirectBack(w, r, accountPath)
		return
	}

	// Pop the OAuth pair before any validation so a failed attempt cannot
	// replay the same pending identity.
	token, _ := s.Pop("oauth_token")
	server, _ := s.Pop("oauth_server")

	if err := r.ParseForm(); err != nil {
		flashx.Write(w, flashx.Error("Something went wrong with the form."))
		h.Sessions.Save(w, s)
		redirectBack(w, r, signInPath)
		return
	}

	user, existed, err := h.Accounts.RegisterWithKey(ctx, service.RegisterParams{
		FacilityID:  r.PostForm.Get("facility_id"),
		Key:         r.PostForm.Get("key"),
		Name:        r.PostForm.Get("name"),
		OAuthToken:  token,
		OAuthServer: server,
	})
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		flashx.Write(w, flashx.Error("Something went wrong. Please sign in again."))
		h.Sessions.Save(w, s)
		redirectBack(w, r, signInPath)
		return
	case errors.Is(err, service.ErrNoInvitation):
		flashx.Write(w, flashx.Error("No invitation is pending for this facility."))
		h.Sessions.Save(w, s)
		redirectBack(w, r, registerPath)
		return
	case errors.Is(err, service.ErrKeyInvalid):
		flashx.Write(w, flashx.Error("That invitation key is not valid."))
		h.Sessions.Save(w, s)
		redirectBack(w, r, registerPath)
		return
	case errors.Is(err, service.ErrKeyExpired):
		flashx.Write(w, flashx.Error("That invitation key has expired."))
		h.Sessions.Save(w, s)
		redirectBack(w, r, registerPath)
		return
	case err != nil:
		log.Error("registration failed", "error", err)
		flashx.Write(w, flashx.Error("Something went wrong. Please try again."))
		h.Sessions.Save(w, s)
		redirectBack(w, r, registerPath)
		return
	}

	s.Login(user.ID)
	h.Sessions.Save(w, s)

	if existed {
		flashx.Write(w, flashx.Success("Welcome back, "+user.Name+"."))
	} else {
		flashx.Write(w, flashx.Success("Welcome, "+user.Name+"."))
	}
	httpx.SeeOther(w, r, accountPath)
}
