package http

import (
	"errors"
	"net/http"

	"github.com/droneops/facilityd/internal/users/service"
	"github.com/droneops/facilityd/pkg/flashx"
	"github.com/droneops/facilityd/pkg/httpx"
	"github.com/droneops/facilityd/pkg/slogx"
)

// EditHandler applies a partial update to a user. Absent form fields are left
// untouched rather than cleared, so the form only ever sends what it intends
// to change.
type EditHandler struct {
	Accounts *service.AccountService
}

func (h *EditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		flashx.Write(w, flashx.Error("Something went wrong with the form."))
		redirectBack(w, r, accountPath)
		return
	}

	// Every field is optional here, but a grant value that is present and
	// unparsable is malformed input, and an empty name is treated as absent
	// rather than wiping the stored one.
	var changes service.UserChanges
	if name := r.PostForm.Get("name"); name != "" {
		changes.Name = &name
	}
	if r.PostForm.Has("can_manage_users") {
		v, err := parseGrant(r.PostForm.Get("can_manage_users"))
		if err != nil {
			flashx.Write(w, flashx.Error("Something went wrong with the form."))
			redirectBack(w, r, accountPath)
			return
		}
		changes.CanManageUsers = &v
	}
	if r.PostForm.Has("can_control_drone") {
		v, err := parseGrant(r.PostForm.Get("can_control_drone"))
		if err != nil {
			flashx.Write(w, flashx.Error("Something went wrong with the form."))
			redirectBack(w, r, accountPath)
			return
		}
		changes.CanControlDrone = &v
	}

	callerID := httpx.UserIDFromContext(ctx)
	targetID := r.PostForm.Get("user_id")

	err := h.Accounts.EditUser(ctx, callerID, targetID, changes)
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		flashx.Write(w, flashx.Error("You are not allowed to make that change."))
	case err != nil:
		log.Error("edit failed", "error", err)
		flashx.Write(w, flashx.Error("Something went wrong. Please try again."))
	default:
		flashx.Write(w, flashx.Success("Account updated."))
	}
	redirectBack(w, r, accountPath)
}
