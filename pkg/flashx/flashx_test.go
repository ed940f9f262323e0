package flashx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/droneops/facilityd/pkg/flashx"
	"github.com/stretchr/testify/require"
)

func cookieFromRecorder(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == flashx.CookieName {
			return c
		}
	}
	return nil
}

func TestWriteReadAndClear(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	flashx.Write(rec, flashx.Error("Permission denied."))

	cookie := cookieFromRecorder(t, rec)
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)

	rec2 := httptest.NewRecorder()
	notice, ok := flashx.ReadAndClear(rec2, req)
	require.True(t, ok)
	require.Equal(t, flashx.KindError, notice.Kind)
	require.Equal(t, "Permission denied.", notice.Message)

	// The read must expire the cookie.
	cleared := cookieFromRecorder(t, rec2)
	require.NotNil(t, cleared)
	require.Equal(t, -1, cleared.MaxAge)
}

func TestWriteDropsEmptyMessages(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	flashx.Write(rec, flashx.Success("   "))
	require.Nil(t, cookieFromRecorder(t, rec))
}

func TestReadAndClearGarbageCookie(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: flashx.CookieName, Value: "%%%not-base64"})

	rec := httptest.NewRecorder()
	_, ok := flashx.ReadAndClear(rec, req)
	require.False(t, ok)
}

func TestReadAndClearNoCookie(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	_, ok := flashx.ReadAndClear(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.False(t, ok)
}
