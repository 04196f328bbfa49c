package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	admindomain "github.com/smallbiznis/invoicekit/internal/admin/domain"
	adminrepo "github.com/smallbiznis/invoicekit/internal/admin/repository"
	adminservice "github.com/smallbiznis/invoicekit/internal/admin/service"
	auditrepo "github.com/smallbiznis/invoicekit/internal/audit/repository"
	auditservice "github.com/smallbiznis/invoicekit/internal/audit/service"
	authrepo "github.com/smallbiznis/invoicekit/internal/auth/repository"
	authservice "github.com/smallbiznis/invoicekit/internal/auth/service"
	"github.com/smallbiznis/invoicekit/internal/auth/session"
	"github.com/smallbiznis/invoicekit/internal/authorization"
	"github.com/smallbiznis/invoicekit/internal/clock"
	"github.com/smallbiznis/invoicekit/internal/config"
	customerrepo "github.com/smallbiznis/invoicekit/internal/customer/repository"
	customerservice "github.com/smallbiznis/invoicekit/internal/customer/service"
	dashboardservice "github.com/smallbiznis/invoicekit/internal/dashboard/service"
	invoicedomain "github.com/smallbiznis/invoicekit/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/invoicekit/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/invoicekit/internal/invoice/service"
	"github.com/smallbiznis/invoicekit/internal/migration"
	"github.com/smallbiznis/invoicekit/internal/observability"
	productservice "github.com/smallbiznis/invoicekit/internal/product/service"
	"github.com/smallbiznis/invoicekit/internal/seed"
	settingsservice "github.com/smallbiznis/invoicekit/internal/settings/service"
	"github.com/smallbiznis/invoicekit/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

const superAdminEmail = "root@invoicekit.test"

type fixture struct {
	server *Server
	clock  *clock.FakeClock
	// code of the seeded super-admin
	rootCode string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.Apply(conn))

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	fc := clock.NewFakeClock(epoch)
	log := zap.NewNop()
	cfg := config.Config{
		SessionTTL:      time.Hour,
		AdminSessionTTL: time.Hour,
	}

	authRepo, sessionRepo := authrepo.New(conn)
	authSvc := authservice.New(authservice.Params{
		Log: log, Repo: authRepo, SessionRepo: sessionRepo, GenID: node, Clock: fc, Cfg: cfg,
	})
	auditSvc := auditservice.NewService(auditservice.Params{
		DB: conn, Log: log, GenID: node, Repo: auditrepo.Provide(), Clock: fc,
	})
	adminSvc := adminservice.New(adminservice.Params{
		DB: conn, Log: log, GenID: node, Clock: fc, Repo: adminrepo.Provide(),
		Audit: auditSvc, Policy: admindomain.DefaultLockoutPolicy(),
	})
	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)

	res, err := seed.EnsureSuperAdmin(context.Background(), conn, node, fc, superAdminEmail)
	require.NoError(t, err)
	require.True(t, res.Created)

	srv := NewServer(ServerParams{
		Gin:      NewEngine(observability.Config{Environment: "test"}, nil),
		Cfg:      cfg,
		Log:      log,
		Sessions: session.NewManagers(cfg),
		Authsvc:  authSvc,
		AdminSvc: adminSvc,
		AuditSvc: auditSvc,
		AuthzSvc: authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer}),
		CustomerSvc: customerservice.New(customerservice.Params{
			DB: conn, Log: log, GenID: node, Repo: customerrepo.Provide(), Clock: fc,
		}),
		ProductSvc: productservice.New(productservice.Params{DB: conn, Log: log, GenID: node, Clock: fc}),
		InvoiceSvc: invoiceservice.NewService(invoiceservice.ServiceParam{
			DB: conn, Log: log, GenID: node, Clock: fc, Repo: invoicerepo.Provide(),
			Defaults: config.NewStaticInvoicingDefaults(config.DefaultInvoicingDefaults()),
		}),
		SettingsSvc:  settingsservice.New(settingsservice.Params{DB: conn, Log: log, GenID: node, Clock: fc}),
		DashboardSvc: dashboardservice.NewService(dashboardservice.Params{DB: conn, Log: log}),
	})

	return fixture{server: srv, clock: fc, rootCode: res.Code}
}

func (f fixture) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)
	return rec
}

func cookieNamed(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func (f fixture) userSession(t *testing.T, email string) *http.Cookie {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/register", map[string]any{
		"email": email, "password": "correct-horse", "company_name": "Muster GmbH",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/auth/login", map[string]any{"email": email, "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return cookieNamed(t, rec, session.UserCookieName)
}

func (f fixture) adminSession(t *testing.T, email, code string) *http.Cookie {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/admin/login", map[string]any{"email": email, "code": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return cookieNamed(t, rec, session.AdminCookieName)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIRequiresSession(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/customers", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/customers", nil, &http.Cookie{Name: session.UserCookieName, Value: "forged"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// an admin session is not a user session
	adminCookie := f.adminSession(t, superAdminEmail, f.rootCode)
	rec = f.do(t, http.MethodGet, "/api/customers", nil, &http.Cookie{Name: session.UserCookieName, Value: adminCookie.Value})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserLoginFailuresShareBody(t *testing.T) {
	f := newFixture(t)
	f.userSession(t, "anna@example.com")

	wrong := f.do(t, http.MethodPost, "/auth/login", map[string]any{"email": "anna@example.com", "password": "nope-nope"})
	unknown := f.do(t, http.MethodPost, "/auth/login", map[string]any{"email": "ghost@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())
	assert.NotContains(t, unknown.Body.String(), "ghost@example.com")
}

func TestInvoiceFlow(t *testing.T) {
	f := newFixture(t)
	cookie := f.userSession(t, "anna@example.com")

	rec := f.do(t, http.MethodPost, "/api/customers", map[string]any{
		"type": "business", "company_name": "ACME AG", "email": "billing@acme.example",
	}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var customer struct {
		ID snowflake.ID `json:"id"`
	}
	decodeData(t, rec, &customer)

	rec = f.do(t, http.MethodGet, "/api/invoices/next-number", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var next struct {
		InvoiceNumber string `json:"invoice_number"`
	}
	decodeData(t, rec, &next)
	assert.Equal(t, "2024-03-0001", next.InvoiceNumber)

	body := map[string]any{
		"customer_id":  customer.ID.String(),
		"invoice_date": "2024-03-15",
		"status":       "sent",
		"items": []map[string]any{
			{"description": "Beratung", "quantity": "2", "unit_price": "10.00", "tax_rate": "19"},
			{"description": "Fahrtkosten", "quantity": "1", "unit_price": "5.00", "tax_rate": "19"},
		},
	}
	rec = f.do(t, http.MethodPost, "/api/invoices", body, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID            snowflake.ID    `json:"id"`
		InvoiceNumber string          `json:"invoice_number"`
		Total         decimal.Decimal `json:"total"`
	}
	decodeData(t, rec, &created)
	assert.Equal(t, "2024-03-0001", created.InvoiceNumber)
	assert.Equal(t, "29.75", created.Total.StringFixed(2))

	rec = f.do(t, http.MethodGet, "/api/invoices/"+created.ID.String(), nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched struct {
		CustomerName string `json:"customer_name"`
		Items        []struct {
			Position int             `json:"position"`
			Total    decimal.Decimal `json:"total"`
		} `json:"items"`
	}
	decodeData(t, rec, &fetched)
	assert.Equal(t, "ACME AG", fetched.CustomerName)
	require.Len(t, fetched.Items, 2)
	assert.Equal(t, 1, fetched.Items[0].Position)
	assert.Equal(t, 2, fetched.Items[1].Position)
	assert.Equal(t, "23.80", fetched.Items[0].Total.StringFixed(2))

	body["invoice_number"] = created.InvoiceNumber
	rec = f.do(t, http.MethodPost, "/api/invoices", body, cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/invoices/"+created.ID.String()+"/payments", map[string]any{"amount": "20.00"}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var payment struct {
		Status invoicedomain.InvoiceStatus `json:"status"`
	}
	decodeData(t, rec, &payment)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, payment.Status)

	rec = f.do(t, http.MethodPost, "/api/invoices/"+created.ID.String()+"/payments", map[string]any{"amount": "9.75"}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	decodeData(t, rec, &payment)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, payment.Status)

	rec = f.do(t, http.MethodGet, "/api/invoices/"+created.ID.String()+"/payments", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var payments []map[string]any
	decodeData(t, rec, &payments)
	assert.Len(t, payments, 2)

	rec = f.do(t, http.MethodGet, "/api/dashboard", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	// another user sees nothing
	other := f.userSession(t, "bert@example.com")
	rec = f.do(t, http.MethodGet, "/api/invoices/"+created.ID.String(), nil, other)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvoiceValidationErrors(t *testing.T) {
	f := newFixture(t)
	cookie := f.userSession(t, "anna@example.com")

	rec := f.do(t, http.MethodPost, "/api/invoices", map[string]any{
		"customer_id":  "12345",
		"invoice_date": "15.03.2024",
		"items":        []map[string]any{},
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invoice_date")

	rec = f.do(t, http.MethodPost, "/api/invoices", map[string]any{
		"customer_id": "12345",
		"items":       []map[string]any{},
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"items"`)

	rec = f.do(t, http.MethodGet, "/api/invoices/not-a-number", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newFixture(t)
	cookie := f.userSession(t, "anna@example.com")

	rec := f.do(t, http.MethodPut, "/api/settings", map[string]any{"invoice.footer": "Danke!"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/settings", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var values map[string]any
	decodeData(t, rec, &values)
	assert.Equal(t, "Danke!", values["invoice.footer"])

	rec = f.do(t, http.MethodPut, "/api/settings", map[string]any{"9bad": true}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminLoginFailuresShareBodyThenLock(t *testing.T) {
	f := newFixture(t)

	unknown := f.do(t, http.MethodPost, "/admin/login", map[string]any{"email": "nobody@invoicekit.test", "code": "000000"})
	require.Equal(t, http.StatusUnauthorized, unknown.Code)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = f.do(t, http.MethodPost, "/admin/login", map[string]any{"email": superAdminEmail, "code": "000000x"})
		require.Equal(t, http.StatusUnauthorized, last.Code)
	}
	assert.JSONEq(t, unknown.Body.String(), last.Body.String())
	assert.NotContains(t, unknown.Body.String(), "nobody@invoicekit.test")

	rec := f.do(t, http.MethodPost, "/admin/login", map[string]any{"email": superAdminEmail, "code": f.rootCode})
	assert.Equal(t, http.StatusLocked, rec.Code)

	f.clock.Advance(5*time.Minute + time.Second)
	f.adminSession(t, superAdminEmail, f.rootCode)
}

func TestAdminConsole(t *testing.T) {
	f := newFixture(t)
	root := f.adminSession(t, superAdminEmail, f.rootCode)

	rec := f.do(t, http.MethodGet, "/admin/admins", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/admin/admins", map[string]any{"email": "ops@invoicekit.test"}, root)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Admin struct {
			ID   snowflake.ID `json:"id"`
			Role string       `json:"role"`
		} `json:"admin"`
		Code string `json:"code"`
	}
	decodeData(t, rec, &created)
	assert.Equal(t, admindomain.RoleAdmin, created.Admin.Role)
	assert.Len(t, created.Code, admindomain.CodeLength)
	assert.NotContains(t, rec.Body.String(), "code_hash")

	rec = f.do(t, http.MethodPost, "/admin/admins", map[string]any{"email": "ops@invoicekit.test"}, root)
	assert.Equal(t, http.StatusConflict, rec.Code)

	ops := f.adminSession(t, "ops@invoicekit.test", created.Code)

	rec = f.do(t, http.MethodGet, "/admin/admins", nil, root)
	require.Equal(t, http.StatusOK, rec.Code)
	var admins []map[string]any
	decodeData(t, rec, &admins)
	assert.Len(t, admins, 2)

	// a plain admin may rotate only its own code
	var rootID snowflake.ID
	for _, a := range admins {
		if a["email"] == superAdminEmail {
			rootID, _ = snowflake.ParseString(a["id"].(string))
		}
	}
	require.NotZero(t, rootID)
	rec = f.do(t, http.MethodPost, "/admin/admins/"+rootID.String()+"/code", map[string]any{"code": "123456"}, ops)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodPost, "/admin/admins/"+created.Admin.ID.String()+"/code", map[string]any{"code": "654321"}, ops)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodPost, "/admin/admins/"+created.Admin.ID.String()+"/code", map[string]any{"code": "111"}, root)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/admin/admins/"+rootID.String(), nil, ops)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/dashboard", nil, ops)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/admin/users", nil, ops)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/admin/admins/"+created.Admin.ID.String(), nil, root)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// the deleted admin's session no longer works
	rec = f.do(t, http.MethodGet, "/admin/dashboard", nil, ops)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/activities?action=delete_admin", nil, root)
	require.Equal(t, http.StatusOK, rec.Code)
	var activities []struct {
		Action     string `json:"action"`
		AdminEmail string `json:"admin_email"`
	}
	decodeData(t, rec, &activities)
	require.Len(t, activities, 1)
	assert.Equal(t, superAdminEmail, activities[0].AdminEmail)

	rec = f.do(t, http.MethodPost, "/admin/logout", nil, root)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/admin/admins", nil, root)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{admindomain.ErrLockedOut, http.StatusLocked},
		{admindomain.ErrInvalidCredential, http.StatusUnauthorized},
		{invoicedomain.ErrDuplicateInvoiceNumber, http.StatusConflict},
		{invoicedomain.Invalid("items", "must not be empty"), http.StatusBadRequest},
		{invoicedomain.ErrInvoiceNotFound, http.StatusNotFound},
		{invoicedomain.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{authorization.ErrForbidden, http.StatusForbidden},
		{ErrRateLimited, http.StatusTooManyRequests},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestParseOptionalDateKeepsWrittenDay(t *testing.T) {
	got, err := parseOptionalDate("2024-03-20T00:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), got)

	got, err = parseOptionalDate("2024-03-20")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), got)

	got, err = parseOptionalDate(" ")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseOptionalDate("20.03.2024")
	assert.Error(t, err)
}
