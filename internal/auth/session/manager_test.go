package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerSetAndRead(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager(UserCookieName, true)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	m.Set(c, "tok", time.Now().Add(time.Hour))

	header := rec.Header().Get("Set-Cookie")
	require.NotEmpty(t, header)
	assert.True(t, strings.HasPrefix(header, UserCookieName+"=tok"))
	assert.Contains(t, header, "HttpOnly")
	assert.Contains(t, header, "Secure")
	assert.Contains(t, header, "SameSite=Lax")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: UserCookieName, Value: "tok"})
	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = req
	token, ok := m.ReadToken(c2)
	assert.True(t, ok)
	assert.Equal(t, "tok", token)

	c3, _ := gin.CreateTestContext(httptest.NewRecorder())
	c3.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok = m.ReadToken(c3)
	assert.False(t, ok)
}
