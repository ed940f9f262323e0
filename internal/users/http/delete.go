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

// DeleteHandler removes an account. A self-delete also ends the caller's
// session and lands on the sign-in page; deleting another user leaves the
// caller signed in.
type DeleteHandler struct {
	Accounts *service.AccountService
	Sessions *sessionx.Manager
}

func (h *DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		flashx.Write(w, flashx.Error("Something went wrong with the form."))
		redirectBack(w, r, accountPath)
		return
	}

	callerID := httpx.UserIDFromContext(ctx)
	targetID := r.PostForm.Get("user_id")

	self, err := h.Accounts.DeleteUser(ctx, callerID, targetID)
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		flashx.Write(w, flashx.Error("You are not allowed to delete that account."))
		redirectBack(w, r, accountPath)
	case err != nil:
		log.Error("delete failed", "error", err)
		flashx.Write(w, flashx.Error("Something went wrong. Please try again."))
		redirectBack(w, r, accountPath)
	case self:
		s := h.Sessions.Load(r)
		s.Logout()
		h.Sessions.Save(w, s)
		flashx.Write(w, flashx.Success("Your account has been deleted."))
		httpx.SeeOther(w, r, signInPath)
	default:
		flashx.Write(w, flashx.Success("Account deleted."))
		redirectBack(w, r, accountPath)
	}
}
