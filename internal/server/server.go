package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/invoicekit/internal/admin"
	admindomain "github.com/smallbiznis/invoicekit/internal/admin/domain"
	"github.com/smallbiznis/invoicekit/internal/audit"
	auditdomain "github.com/smallbiznis/invoicekit/internal/audit/domain"
	"github.com/smallbiznis/invoicekit/internal/auth"
	authdomain "github.com/smallbiznis/invoicekit/internal/auth/domain"
	"github.com/smallbiznis/invoicekit/internal/auth/session"
	"github.com/smallbiznis/invoicekit/internal/authorization"
	"github.com/smallbiznis/invoicekit/internal/config"
	"github.com/smallbiznis/invoicekit/internal/customer"
	customerdomain "github.com/smallbiznis/invoicekit/internal/customer/domain"
	"github.com/smallbiznis/invoicekit/internal/dashboard"
	dashboarddomain "github.com/smallbiznis/invoicekit/internal/dashboard/domain"
	"github.com/smallbiznis/invoicekit/internal/invoice"
	invoicedomain "github.com/smallbiznis/invoicekit/internal/invoice/domain"
	"github.com/smallbiznis/invoicekit/internal/observability"
	obslogger "github.com/smallbiznis/invoicekit/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/invoicekit/internal/observability/metrics"
	obstracing "github.com/smallbiznis/invoicekit/internal/observability/tracing"
	"github.com/smallbiznis/invoicekit/internal/product"
	productdomain "github.com/smallbiznis/invoicekit/internal/product/domain"
	"github.com/smallbiznis/invoicekit/internal/ratelimit"
	"github.com/smallbiznis/invoicekit/internal/settings"
	settingsdomain "github.com/smallbiznis/invoicekit/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	authorization.Module,
	audit.Module,
	auth.Module,
	admin.Module,
	customer.Module,
	product.Module,
	invoice.Module,
	settings.Module,
	dashboard.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	sessions     session.Managers
	authsvc      authdomain.Service
	adminSvc     admindomain.Service
	auditSvc     auditdomain.Service
	authzSvc     authorization.Service
	customerSvc  customerdomain.Service
	productSvc   productdomain.Service
	invoiceSvc   invoicedomain.Service
	settingsSvc  settingsdomain.Service
	dashboardSvc dashboarddomain.Service
	loginLimiter *ratelimit.LoginLimiter
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Sessions     session.Managers
	Authsvc      authdomain.Service
	AdminSvc     admindomain.Service
	AuditSvc     auditdomain.Service
	AuthzSvc     authorization.Service
	CustomerSvc  customerdomain.Service
	ProductSvc   productdomain.Service
	InvoiceSvc   invoicedomain.Service
	SettingsSvc  settingsdomain.Service
	DashboardSvc dashboarddomain.Service
	LoginLimiter *ratelimit.LoginLimiter `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics     `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		sessions:     p.Sessions,
		authsvc:      p.Authsvc,
		adminSvc:     p.AdminSvc,
		auditSvc:     p.AuditSvc,
		authzSvc:     p.AuthzSvc,
		customerSvc:  p.CustomerSvc,
		productSvc:   p.ProductSvc,
		invoiceSvc:   p.InvoiceSvc,
		settingsSvc:  p.SettingsSvc,
		dashboardSvc: p.DashboardSvc,
		loginLimiter: p.LoginLimiter,
		obsMetrics:   p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/register", s.Register)
	auth.POST("/login", s.LoginRateLimit(ratelimit.ScopeUserLogin), s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.UserAuthRequired(), s.Me)
	auth.PATCH("/profile", s.UserAuthRequired(), s.UpdateProfile)
	auth.POST("/change-password", s.UserAuthRequired(), s.ChangePassword)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.UserAuthRequired())

	// -------- Customers --------
	api.GET("/customers", s.ListCustomers)
	api.POST("/customers", s.CreateCustomer)
	api.GET("/customers/:id", s.GetCustomerByID)
	api.PATCH("/customers/:id", s.UpdateCustomer)
	api.DELETE("/customers/:id", s.DeleteCustomer)

	// -------- Products --------
	api.GET("/products", s.ListProducts)
	api.POST("/products", s.CreateProduct)
	api.GET("/products/:id", s.GetProductByID)
	api.PATCH("/products/:id", s.UpdateProduct)
	api.DELETE("/products/:id", s.DeleteProduct)

	// -------- Invoices --------
	api.GET("/invoices", s.ListInvoices)
	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices/next-number", s.NextInvoiceNumber)
	api.GET("/invoices/reminders", s.ListInvoiceReminders)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.PUT("/invoices/:id", s.UpdateInvoice)
	api.DELETE("/invoices/:id", s.DeleteInvoice)
	api.PATCH("/invoices/:id/status", s.UpdateInvoiceStatus)
	api.GET("/invoices/:id/payments", s.ListInvoicePayments)
	api.POST("/invoices/:id/payments", s.RecordInvoicePayment)

	// -------- Settings & dashboard --------
	api.GET("/settings", s.GetSettings)
	api.PUT("/settings", s.SaveSettings)
	api.GET("/dashboard", s.GetUserDashboard)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/login", s.LoginRateLimit(ratelimit.ScopeAdminLogin), s.AdminLogin)

	console := admin.Group("", s.AdminAuthRequired())
	console.POST("/logout", s.AdminLogout)

	console.GET("/admins", s.authorize(authorization.ObjectAdmin, authorization.ActionAdminView), s.ListAdmins)
	console.POST("/admins", s.authorize(authorization.ObjectAdmin, authorization.ActionAdminCreate), s.CreateAdmin)
	console.DELETE("/admins/:id", s.authorize(authorization.ObjectAdmin, authorization.ActionAdminDelete), s.DeleteAdmin)
	// Own vs. any code rotation is decided inside the handler.
	console.POST("/admins/:id/code", s.ChangeAdminCode)

	console.GET("/activities", s.authorize(authorization.ObjectActivity, authorization.ActionActivityView), s.ListActivities)
	console.GET("/users", s.authorize(authorization.ObjectUser, authorization.ActionUserView), s.ListUsers)
	console.GET("/dashboard", s.authorize(authorization.ObjectDashboard, authorization.ActionDashboardView), s.GetAdminDashboard)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
