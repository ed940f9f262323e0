package http

import (
	"errors"
	"net/http"

	"github.com/droneops/facilityd/internal/users/service"
	"github.com/droneops/facilityd/pkg/flashx"
	"github.com/droneops/facilityd/pkg/httpx"
	"github.com/droneops/facilityd/pkg/slogx"
)

// IssueKeyHandler mints a new invitation key for the caller's facility. The
// generated code is surfaced to the caller in the flash notice; there is no
// API response body.
type IssueKeyHandler struct {
	Accounts *service.AccountService
}

func (h *IssueKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		flashx.Write(w, flashx.Error("Something went wrong with the form."))
		redirectBack(w, r, accountPath)
		return
	}

	// Both grant fields are required; a missing or unparsable value is
	// malformed input and must not reach the store.
	canManage, manageErr := parseGrant(r.PostForm.Get("can_manage_users"))
	canControl, controlErr := parseGrant(r.PostForm.Get("can_control_drone"))
	if manageErr != nil || controlErr != nil {
		log.Warn("issue key with malformed grant fields",
			"can_manage_users", r.PostForm.Get("can_manage_users"),
			"can_control_drone", r.PostForm.Get("can_control_drone"),
		)
		flashx.Write(w, flashx.Error("Something went wrong with the form."))
		redirectBack(w, r, accountPath)
		return
	}

	callerID := httpx.UserIDFromContext(ctx)

	code, err := h.Accounts.IssueInvitationKey(ctx, callerID, canManage, canControl)
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		flashx.Write(w, flashx.Error("You are not allowed to issue invitation keys."))
	case err != nil:
		log.Error("issue key failed", "error", err)
		flashx.Write(w, flashx.Error("Something went wrong. Please try again."))
	default:
		flashx.Write(w, flashx.Success("New invitation key: "+code))
	}
	redirectBack(w, r, accountPath)
}
