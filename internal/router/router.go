package router

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/bookhub-api/api/swagger"
	"github.com/noah-isme/bookhub-api/internal/handler"
	"github.com/noah-isme/bookhub-api/internal/middleware"
	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/internal/service"
	"github.com/noah-isme/bookhub-api/pkg/config"
	"github.com/noah-isme/bookhub-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/bookhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/bookhub-api/pkg/middleware/requestid"
)

// Verifier turns a bearer token into a principal.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*models.Principal, error)
}

// Authorizer answers access requests.
type Authorizer interface {
	Authorize(ctx context.Context, req models.AccessRequest) error
}

// ActivityRecorder stamps user activity.
type ActivityRecorder interface {
	TouchLastActive(ctx context.Context, id string, ts time.Time) error
}

// SessionToucher slides remember-me sessions.
type SessionToucher interface {
	Touch(ctx context.Context, rawKey string) (models.SessionLookup, error)
}

// AuditWriter persists audit entries.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Handlers groups the HTTP handlers mounted by New.
type Handlers struct {
	Auth    *handler.AuthHandler
	Users   *handler.UserHandler
	Catalog *handler.CatalogHandler
	Orders  *handler.OrderHandler
	Reviews *handler.ReviewHandler
	RBAC    *handler.RBACHandler
	Audit   *handler.AuditHandler
	Metrics *handler.MetricsHandler
}

// Options configures the engine.
type Options struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *service.MetricsService
	Verifier   Verifier
	Authorizer Authorizer
	Activity   ActivityRecorder
	Sessions   SessionToucher
	AuditLog   AuditWriter
	Handlers   Handlers
}

// New builds the gin engine with every route of the API. Each route names
// its business element; object routes finish the check in the handler once
// the target is loaded.
func New(opts Options) *gin.Engine {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := opts.Handlers

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", h.Metrics.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	optional := middleware.OptionalAuth(opts.Verifier)
	required := middleware.Authenticate(opts.Verifier)
	perm := func(element string, o ...middleware.PermissionOption) gin.HandlerFunc {
		return middleware.RequirePermission(opts.Authorizer, element, o...)
	}
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(opts.AuditLog, log, action, resource)
	}
	publicList := []middleware.PermissionOption{middleware.PublicRead(), middleware.ListAction()}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.SessionActivity(opts.Sessions, cfg.Auth.SessionCookie, log))
	api.Use(middleware.TrackActivity(opts.Activity, log))

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/password/reset", h.Auth.RequestPasswordReset)
		auth.POST("/password/reset/confirm", h.Auth.ConfirmPasswordReset)
		auth.POST("/verify-email", h.Auth.VerifyEmail)

		authed := auth.Group("", required)
		authed.POST("/logout", h.Auth.Logout)
		authed.POST("/password/change", h.Auth.ChangePassword)
		authed.POST("/verify-email/resend", h.Auth.ResendVerification)
		authed.GET("/me", h.Auth.Me)
		authed.GET("/sessions", h.Auth.Sessions)
		authed.DELETE("/sessions/:id", h.Auth.RevokeSession)
	}

	users := api.Group("/users", required)
	{
		users.GET("", perm(models.ElementUser, middleware.ListAction()), h.Users.List)
		users.GET("/:id", perm(models.ElementUser), h.Users.Get)
		users.PATCH("/:id", perm(models.ElementUser), h.Users.Update)
		users.DELETE("/:id", perm(models.ElementUser), h.Users.Delete)
		users.POST("/:id/restore", perm(models.ElementUser, middleware.RequireAll()), h.Users.Restore)
	}

	api.GET("/categories", optional, perm(models.ElementCategory, publicList...), h.Catalog.ListCategories)
	api.GET("/categories/:id", optional, perm(models.ElementCategory, middleware.PublicRead()), h.Catalog.GetCategory)
	api.POST("/categories", required, perm(models.ElementCategory),
		audit(models.AuditActionCatalogWrite, "category"), h.Catalog.CreateCategory)
	api.PUT("/categories/:id", required, perm(models.ElementCategory, middleware.RequireAll()),
		audit(models.AuditActionCatalogWrite, "category"), h.Catalog.UpdateCategory)
	api.DELETE("/categories/:id", required, perm(models.ElementCategory, middleware.RequireAll()),
		audit(models.AuditActionCatalogDelete, "category"), h.Catalog.DeleteCategory)

	api.GET("/products", optional, perm(models.ElementProduct, publicList...), h.Catalog.ListProducts)
	api.GET("/products/:id", optional, perm(models.ElementProduct, middleware.PublicRead()), h.Catalog.GetProduct)
	api.POST("/products", required, perm(models.ElementProduct),
		audit(models.AuditActionCatalogWrite, "product"), h.Catalog.CreateProduct)
	api.PUT("/products/:id", required, perm(models.ElementProduct),
		audit(models.AuditActionCatalogWrite, "product"), h.Catalog.UpdateProduct)
	api.DELETE("/products/:id", required, perm(models.ElementProduct),
		audit(models.AuditActionCatalogDelete, "product"), h.Catalog.DeleteProduct)

	api.GET("/products/:id/reviews", optional, perm(models.ElementReview, publicList...), h.Reviews.List)
	api.POST("/products/:id/reviews", required, perm(models.ElementReview), h.Reviews.Create)
	api.PUT("/reviews/:id", required, perm(models.ElementReview), h.Reviews.Update)
	api.DELETE("/reviews/:id", required, perm(models.ElementReview), h.Reviews.Delete)

	cart := api.Group("/cart", required)
	{
		cart.GET("", perm(models.ElementCart), h.Orders.Cart)
		cart.POST("/items", perm(models.ElementCart), h.Orders.AddToCart)
		cart.PATCH("/items/:id", perm(models.ElementCart), h.Orders.UpdateCartItem)
		cart.DELETE("/items/:id", perm(models.ElementCart), h.Orders.RemoveCartItem)
		cart.POST("/checkout", perm(models.ElementOrder), h.Orders.Checkout)
	}

	orders := api.Group("/orders", required)
	{
		orders.GET("", perm(models.ElementOrder), h.Orders.ListOrders)
		orders.POST("", perm(models.ElementOrder), h.Orders.Checkout)
		orders.GET("/:id", perm(models.ElementOrder), h.Orders.GetOrder)
		orders.PATCH("/:id/status", perm(models.ElementOrder),
			audit(models.AuditActionOrderUpdate, "order"), h.Orders.UpdateOrderStatus)
		orders.DELETE("/:id", perm(models.ElementOrder),
			audit(models.AuditActionOrderUpdate, "order"), h.Orders.DeleteOrder)
	}

	admin := api.Group("/admin", required)
	rbac := admin.Group("/rbac", perm(models.ElementPermission, middleware.RequireAll()))
	{
		rbac.GET("/roles", h.RBAC.ListRoles)
		rbac.POST("/roles", h.RBAC.CreateRole)
		rbac.PUT("/roles/:id", h.RBAC.UpdateRole)
		rbac.DELETE("/roles/:id", h.RBAC.DeleteRole)
		rbac.GET("/elements", h.RBAC.ListElements)
		rbac.POST("/elements", h.RBAC.CreateElement)
		rbac.PUT("/elements/:id", h.RBAC.UpdateElement)
		rbac.DELETE("/elements/:id", h.RBAC.DeleteElement)
		rbac.GET("/rules", h.RBAC.ListRules)
		rbac.PUT("/rules", h.RBAC.PutRule)
		rbac.DELETE("/rules/:id", h.RBAC.DeleteRule)
		rbac.GET("/summary", h.RBAC.Summary)
		rbac.GET("/users/:id/roles", h.RBAC.UserRoles)
		rbac.POST("/users/:id/roles", h.RBAC.AssignRole)
		rbac.DELETE("/users/:id/roles/:roleId", h.RBAC.RevokeRole)
	}
	admin.GET("/audit/login-attempts/export", perm(models.ElementUser, middleware.RequireAll()), h.Audit.ExportLoginAttempts)

	return r
}
