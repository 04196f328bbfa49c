package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/invoicekit/internal/config"
)

const (
	UserCookieName  = "invoicekit_session"
	AdminCookieName = "invoicekit_admin_session"
)

// Manager reads and writes one session cookie.
type Manager struct {
	cookieName string
	secure     bool
	now        func() time.Time
}

// Managers holds the user and admin console cookie managers.
type Managers struct {
	User  *Manager
	Admin *Manager
}

func NewManagers(cfg config.Config) Managers {
	return Managers{
		User:  NewManager(UserCookieName, cfg.AuthCookieSecure),
		Admin: NewManager(AdminCookieName, cfg.AuthCookieSecure),
	}
}

func NewManager(cookieName string, secure bool) *Manager {
	return &Manager{
		cookieName: cookieName,
		secure:     secure,
		now:        time.Now,
	}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	token, err := c.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

func (m *Manager) Set(c *gin.Context, value string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(m.now()).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, value, maxAge, "/", "", m.secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}
