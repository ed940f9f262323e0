package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/droneops/facilityd/internal/users/domain"
	"github.com/droneops/facilityd/internal/users/service"
	"github.com/droneops/facilityd/internal/users/store"
	"github.com/droneops/facilityd/internal/users/store/drivers/sqlite"
	"github.com/droneops/facilityd/pkg/flashx"
	"github.com/droneops/facilityd/pkg/idx"
	"github.com/droneops/facilityd/pkg/sessionx"
	"github.com/stretchr/testify/require"
)

var sessionSecret = []byte("0123456789abcdef0123456789abcdef")

type rig struct {
	router   *Router
	store    store.Store
	sessions *sessionx.Manager
	facility domain.Facility
	admin    domain.User
	member   domain.User
}

func newRig(t *testing.T) *rig {
	t.Helper()

	ctx := context.Background()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	facility := domain.Facility{ID: idx.New().String(), Name: "East Pad"}
	require.NoError(t, s.Facilities().CreateFacility(ctx, facility))

	admin := domain.User{
		ID:             idx.New().String(),
		FacilityID:     facility.ID,
		LoginID:        idx.New().String(),
		Name:           "Admin",
		OAuthServer:    "https://id.example",
		OAuthToken:     "tok-admin",
		CanManageUsers: true,
	}
	require.NoError(t, s.Users().CreateUser(ctx, admin))

	member := domain.User{
		ID:          idx.New().String(),
		FacilityID:  facility.ID,
		LoginID:     idx.New().String(),
		Name:        "Member",
		OAuthServer: "https://id.example",
		OAuthToken:  "tok-member",
	}
	require.NoError(t, s.Users().CreateUser(ctx, member))

	sessions := sessionx.NewManager(sessionSecret, time.Hour, false)

	router := NewRouter("test", s, sessions, slog.New(slog.DiscardHandler))
	router.AccountService = &service.AccountService{Store: s}
	router.ApplyRoutes()

	return &rig{
		router:   router,
		store:    s,
		sessions: sessions,
		facility: facility,
		admin:    admin,
		member:   member,
	}
}

// sessionCookie signs a session for the given user, mirroring what sign-in
// would have produced.
func (r *rig) sessionCookie(t *testing.T, userID string, values map[string]string) *http.Cookie {
	t.Helper()

	s := &sessionx.Session{}
	if userID != "" {
		s.Login(userID)
	}
	for k, v := range values {
		s.Set(k, v)
	}

	rec := httptest.NewRecorder()
	r.sessions.Save(rec, s)
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionx.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie written")
	return nil
}

func (r *rig) post(t *testing.T, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	r.router.ServeHTTP(rec, req)
	return rec
}

func flashOf(t *testing.T, rec *httptest.ResponseRecorder) flashx.Notice {
	t.Helper()

	for _, c := range rec.Result().Cookies() {
		if c.Name != flashx.CookieName || c.Value == "" {
			continue
		}
		decoded, err := base64.RawURLEncoding.DecodeString(c.Value)
		require.NoError(t, err)
		var notice flashx.Notice
		require.NoError(t, json.Unmarshal(decoded, &notice))
		return notice
	}
	t.Fatal("no flash cookie written")
	return flashx.Notice{}
}

func TestIssueKeyEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("admin receives code in flash", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/new_key", url.Values{
			"can_manage_users":  {"true"},
			"can_control_drone": {"false"},
		}, r.sessionCookie(t, r.admin.ID, nil))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		notice := flashOf(t, rec)
		require.Equal(t, flashx.KindSuccess, notice.Kind)
		require.Contains(t, notice.Message, "New invitation key: ")

		got, err := r.store.Facilities().GetFacilityByID(context.Background(), r.facility.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Invitation)
		require.True(t, got.Invitation.CanManageUsers)
	})

	t.Run("non-admin is denied", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/new_key", url.Values{
			"can_manage_users":  {"true"},
			"can_control_drone": {"true"},
		}, r.sessionCookie(t, r.member.ID, nil))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, flashx.KindError, flashOf(t, rec).Kind)

		got, err := r.store.Facilities().GetFacilityByID(context.Background(), r.facility.ID)
		require.NoError(t, err)
		require.Nil(t, got.Invitation)
	})

	t.Run("missing grant fields are rejected before minting", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/new_key", url.Values{},
			r.sessionCookie(t, r.admin.ID, nil))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, flashx.KindError, flashOf(t, rec).Kind)

		got, err := r.store.Facilities().GetFacilityByID(context.Background(), r.facility.ID)
		require.NoError(t, err)
		require.Nil(t, got.Invitation)
	})

	t.Run("unparsable grant value is rejected", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/new_key", url.Values{
			"can_manage_users":  {"yes please"},
			"can_control_drone": {"false"},
		}, r.sessionCookie(t, r.admin.ID, nil))

		require.Equal(t, flashx.KindError, flashOf(t, rec).Kind)

		got, err := r.store.Facilities().GetFacilityByID(context.Background(), r.facility.ID)
		require.NoError(t, err)
		require.Nil(t, got.Invitation)
	})

	t.Run("anonymous is redirected to sign-in", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/new_key", url.Values{})
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, signInPath, rec.Header().Get("Location"))
	})
}

func TestRegisterEndpoint(t *testing.T) {
	t.Parallel()

	issueKey := func(t *testing.T, r *rig) string {
		t.Helper()
		code, err := r.router.AccountService.IssueInvitationKey(
			context.Background(), r.admin.ID, false, true)
		require.NoError(t, err)
		return code
	}

	t.Run("valid key signs the new user in", func(t *testing.T) {
		r := newRig(t)
		code := issueKey(t, r)

		rec := r.post(t, "/users/new", url.Values{
			"name":        {"Charlie"},
			"key":         {code},
			"facility_id": {r.facility.ID},
		}, r.sessionCookie(t, "", map[string]string{
			"oauth_token":  "tok-charlie",
			"oauth_server": "https://id.example",
		}))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, accountPath, rec.Header().Get("Location"))
		require.Equal(t, flashx.KindSuccess, flashOf(t, rec).Kind)

		user, err := r.store.Users().GetUserByOAuth(
			context.Background(), "https://id.example", "tok-charlie")
		require.NoError(t, err)
		require.Equal(t, "Charlie", user.Name)
		require.True(t, user.CanControlDrone)

		// A fresh session cookie identifying the new user was issued.
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for _, c := range rec.Result().Cookies() {
			if c.Name == sessionx.CookieName {
				req.AddCookie(c)
			}
		}
		require.Equal(t, user.ID, r.sessions.Load(req).UserID())
	})

	t.Run("authenticated caller is bounced", func(t *testing.T) {
		r := newRig(t)
		code := issueKey(t, r)

		rec := r.post(t, "/users/new", url.Values{
			"name":        {"Sneaky"},
			"key":         {code},
			"facility_id": {r.facility.ID},
		}, r.sessionCookie(t, r.member.ID, nil))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		_, err := r.store.Users().GetUserByOAuth(
			context.Background(), "https://id.example", "tok-sneaky")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("wrong key leaves invitation pending", func(t *testing.T) {
		r := newRig(t)
		issueKey(t, r)

		rec := r.post(t, "/users/new", url.Values{
			"name":        {"Dana"},
			"key":         {"WRONG111"},
			"facility_id": {r.facility.ID},
		}, r.sessionCookie(t, "", map[string]string{
			"oauth_token":  "tok-dana",
			"oauth_server": "https://id.example",
		}))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		notice := flashOf(t, rec)
		require.Equal(t, flashx.KindError, notice.Kind)
		require.Contains(t, notice.Message, "not valid")

		// The pending OAuth pair was consumed even though registration
		// failed: the rewritten session no longer carries it.
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for _, c := range rec.Result().Cookies() {
			if c.Name == sessionx.CookieName && c.MaxAge >= 0 {
				req.AddCookie(c)
			}
		}
		require.Empty(t, r.sessions.Load(req).Get("oauth_token"))
	})

	t.Run("missing name creates no user", func(t *testing.T) {
		r := newRig(t)
		code := issueKey(t, r)

		rec := r.post(t, "/users/new", url.Values{
			"key":         {code},
			"facility_id": {r.facility.ID},
		}, r.sessionCookie(t, "", map[string]string{
			"oauth_token":  "tok-nameless",
			"oauth_server": "https://id.example",
		}))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, flashx.KindError, flashOf(t, rec).Kind)

		_, err := r.store.Users().GetUserByOAuth(
			context.Background(), "https://id.example", "tok-nameless")
		require.ErrorIs(t, err, store.ErrNotFound)

		// The invitation was never consumed.
		got, err := r.store.Facilities().GetFacilityByID(context.Background(), r.facility.ID)
		require.NoError(t, err)
		require.False(t, got.Invitation.Expired(time.Now()))
	})

	t.Run("missing session oauth pair fails fast", func(t *testing.T) {
		r := newRig(t)
		code := issueKey(t, r)

		rec := r.post(t, "/users/new", url.Values{
			"name":        {"Ghost"},
			"key":         {code},
			"facility_id": {r.facility.ID},
		})

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, flashx.KindError, flashOf(t, rec).Kind)
	})
}

func TestEditEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("self rename", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/edit", url.Values{
			"name": {"New Name"},
		}, r.sessionCookie(t, r.member.ID, nil))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, flashx.KindSuccess, flashOf(t, rec).Kind)

		got, err := r.store.Users().GetUserByID(context.Background(), r.member.ID)
		require.NoError(t, err)
		require.Equal(t, "New Name", got.Name)
	})

	t.Run("self escalation denied", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/edit", url.Values{
			"can_manage_users": {"true"},
		}, r.sessionCookie(t, r.member.ID, nil))

		require.Equal(t, flashx.KindError, flashOf(t, rec).Kind)

		got, err := r.store.Users().GetUserByID(context.Background(), r.member.ID)
		require.NoError(t, err)
		require.False(t, got.CanManageUsers)
	})

	t.Run("admin grants drone control", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/edit", url.Values{
			"user_id":           {r.member.ID},
			"can_control_drone": {"true"},
		}, r.sessionCookie(t, r.admin.ID, nil))

		require.Equal(t, flashx.KindSuccess, flashOf(t, rec).Kind)

		got, err := r.store.Users().GetUserByID(context.Background(), r.member.ID)
		require.NoError(t, err)
		require.True(t, got.CanControlDrone)
	})

	t.Run("unparsable grant value is rejected unchanged", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/edit", url.Values{
			"user_id":          {r.member.ID},
			"can_manage_users": {"on second thought"},
		}, r.sessionCookie(t, r.admin.ID, nil))

		require.Equal(t, flashx.KindError, flashOf(t, rec).Kind)

		got, err := r.store.Users().GetUserByID(context.Background(), r.member.ID)
		require.NoError(t, err)
		require.False(t, got.CanManageUsers)
	})

	t.Run("empty submitted name is ignored", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/edit", url.Values{
			"name": {""},
		}, r.sessionCookie(t, r.member.ID, nil))

		require.Equal(t, flashx.KindSuccess, flashOf(t, rec).Kind)

		got, err := r.store.Users().GetUserByID(context.Background(), r.member.ID)
		require.NoError(t, err)
		require.Equal(t, "Member", got.Name)
	})

	t.Run("absent fields stay untouched", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/edit", url.Values{},
			r.sessionCookie(t, r.member.ID, nil))

		require.Equal(t, flashx.KindSuccess, flashOf(t, rec).Kind)

		got, err := r.store.Users().GetUserByID(context.Background(), r.member.ID)
		require.NoError(t, err)
		require.Equal(t, "Member", got.Name)
	})
}

func TestDeleteEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("self delete ends session", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/delete", url.Values{},
			r.sessionCookie(t, r.member.ID, nil))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, signInPath, rec.Header().Get("Location"))

		var cleared bool
		for _, c := range rec.Result().Cookies() {
			if c.Name == sessionx.CookieName && c.MaxAge < 0 {
				cleared = true
			}
		}
		require.True(t, cleared)

		_, err := r.store.Users().GetUserByID(context.Background(), r.member.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("admin deletes another user and keeps session", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/delete", url.Values{
			"user_id": {r.member.ID},
		}, r.sessionCookie(t, r.admin.ID, nil))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.NotEqual(t, signInPath, rec.Header().Get("Location"))
		require.Equal(t, flashx.KindSuccess, flashOf(t, rec).Kind)
	})

	t.Run("deleting a ghost target still succeeds", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/delete", url.Values{
			"user_id": {idx.New().String()},
		}, r.sessionCookie(t, r.admin.ID, nil))

		require.Equal(t, flashx.KindSuccess, flashOf(t, rec).Kind)
	})

	t.Run("non-admin cannot delete others", func(t *testing.T) {
		r := newRig(t)

		rec := r.post(t, "/users/delete", url.Values{
			"user_id": {r.admin.ID},
		}, r.sessionCookie(t, r.member.ID, nil))

		require.Equal(t, flashx.KindError, flashOf(t, rec).Kind)

		_, err := r.store.Users().GetUserByID(context.Background(), r.admin.ID)
		require.NoError(t, err)
	})
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	r := newRig(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	rec := httptest.NewRecorder()
	r.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)

	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec = httptest.NewRecorder()
	r.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"database":"ok"`)
}
