package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionBundle_RoundTrip(t *testing.T) {
	in := SessionBundle{Token: "aaa.bbb.ccc", UserID: "d0j8k3l1abc"}

	value, err := EncodeSessionBundle(in)
	require.NoError(t, err)
	assert.NotContains(t, value, `"`, "cookie value must not contain raw quotes")
	assert.NotContains(t, value, ",", "cookie value must not contain raw commas")

	out, err := DecodeSessionBundle(value)
	require.NoError(t, err)
	assert.Equal(t, in, *out)
}

func TestDecodeSessionBundle_AcceptsPercentEncodedJSON(t *testing.T) {
	// What a browser sends back after the server URL-encoded the JSON.
	value := url.QueryEscape(`{"token":"t.t.t","userId":"u1"}`)

	b, err := DecodeSessionBundle(value)
	require.NoError(t, err)
	assert.Equal(t, "t.t.t", b.Token)
	assert.Equal(t, "u1", b.UserID)
}

func TestDecodeSessionBundle_Malformed(t *testing.T) {
	for _, value := range []string{"%zz", "not-json", url.QueryEscape("[1,2]")} {
		_, err := DecodeSessionBundle(value)
		assert.ErrorIs(t, err, errMalformedBundle, "value %q", value)
	}
}

func TestSetSessionCookie_Attributes(t *testing.T) {
	rr := httptest.NewRecorder()

	err := SetSessionCookie(rr, SessionBundle{Token: "x.y.z", UserID: "u"}, CookieOptions{
		Secure: true,
		MaxAge: time.Hour,
	})
	require.NoError(t, err)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]

	assert.Equal(t, SessionCookieName, c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, 3600, c.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.True(t, strings.HasPrefix(c.Value, "%7B"), "value should be URL-encoded JSON, got %q", c.Value)
}

func TestClearSessionCookie(t *testing.T) {
	rr := httptest.NewRecorder()
	ClearSessionCookie(rr, CookieOptions{Secure: true})

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.Equal(t, "", cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}
