package router

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/handler"
	"github.com/noah-isme/bookhub-api/internal/repository"
	"github.com/noah-isme/bookhub-api/internal/service"
	"github.com/noah-isme/bookhub-api/pkg/broker"
	"github.com/noah-isme/bookhub-api/pkg/config"
)

// Publisher delivers auth events to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg broker.Message) error
}

// Container holds the wired services behind the HTTP surface.
type Container struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *service.MetricsService
	PolicyCache   *service.PolicyCache
	Evaluator     *service.PermissionEvaluator
	Tokens        *service.TokenIssuer
	Sessions      *service.SessionService
	Auth          *service.AuthService
	Users         *service.UserService
	Policy        *service.PolicyService
	Seeder        *service.PolicySeeder
	Notifications *service.NotificationService
	Maintenance   *service.MaintenanceService

	userRepo  *repository.UserRepository
	auditRepo *repository.AuditRepository
	handlers  Handlers
}

// NewContainer wires repositories, services and handlers over db. cache and
// publisher may be nil, which disables policy caching and event delivery.
func NewContainer(cfg *config.Config, db *sqlx.DB, cache service.CacheRepository, publisher Publisher, logger *zap.Logger) *Container {
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	oneTimeRepo := repository.NewOneTimeTokenRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attemptRepo := repository.NewLoginAttemptRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	reviewRepo := repository.NewReviewRepository(db)

	policyCache := service.NewPolicyCache(policyRepo, cache, metrics, cfg.Policy.CacheTTL, logger)
	evaluator := service.NewPermissionEvaluator(policyRepo, policyCache, metrics, logger, cfg.Policy.GuestRole)

	credentials := service.NewCredentialStore(cfg.Auth.BcryptCost)
	tokens := service.NewTokenIssuer(tokenRepo, userRepo, credentials, metrics, logger, service.TokenConfig{
		Secret:              cfg.JWT.Secret,
		Issuer:              cfg.JWT.Issuer,
		AccessTTL:           cfg.JWT.AccessTTL,
		RefreshTTL:          cfg.JWT.RefreshTTL,
		PersistAccessTokens: cfg.Auth.PersistAccessTokens,
	})
	guard := service.NewLoginGuard(attemptRepo, metrics, logger, service.LoginGuardConfig{
		MaxAttempts: cfg.Auth.LoginMaxAttempts,
		Window:      cfg.Auth.LoginWindow,
	})
	sessions := service.NewSessionService(sessionRepo, logger, cfg.Auth.SessionTTL)

	notifications := service.NewNotificationService(publisher, metrics, logger, service.NotificationConfig{
		Workers:    cfg.Broker.Workers,
		MaxRetries: cfg.Broker.MaxRetries,
		RetryDelay: cfg.Broker.RetryDelay,
	})

	auth := service.NewAuthService(service.AuthDeps{
		Users:       userRepo,
		Roles:       policyRepo,
		OneTime:     oneTimeRepo,
		Credentials: credentials,
		Tokens:      tokens,
		Guard:       guard,
		Sessions:    sessions,
		Notifier:    notifications,
		Audit:       auditRepo,
	}, validate, logger, service.AuthConfig{
		DefaultRole:      cfg.Policy.DefaultRole,
		VerificationTTL:  cfg.Auth.VerificationTTL,
		PasswordResetTTL: cfg.Auth.PasswordResetTTL,
	})
	users := service.NewUserService(userRepo, policyRepo, tokens, sessions, auditRepo, validate, logger)
	policy := service.NewPolicyService(policyRepo, userRepo, policyCache, auditRepo, validate, logger, cfg.Policy.GuestRole)
	catalog := service.NewCatalogService(catalogRepo, validate, logger)
	orders := service.NewOrderService(orderRepo, catalogRepo, validate, logger)
	reviews := service.NewReviewService(reviewRepo, catalogRepo, validate, logger)
	exports := service.NewAuditExportService(attemptRepo, auditRepo, logger)

	checks := map[string]handler.Pinger{"database": db}
	if pinger, ok := cache.(handler.Pinger); ok {
		checks["redis"] = pinger
	}

	return &Container{
		Config:        cfg,
		Logger:        logger,
		Metrics:       metrics,
		PolicyCache:   policyCache,
		Evaluator:     evaluator,
		Tokens:        tokens,
		Sessions:      sessions,
		Auth:          auth,
		Users:         users,
		Policy:        policy,
		Seeder:        service.NewPolicySeeder(policyRepo, policyCache, logger),
		Notifications: notifications,
		Maintenance:   service.NewMaintenanceService(tokenRepo, sessions, attemptRepo, logger, service.MaintenanceConfig{}),
		userRepo:      userRepo,
		auditRepo:     auditRepo,
		handlers: Handlers{
			Auth: handler.NewAuthHandler(auth, sessions, handler.SessionCookie{
				Name:   cfg.Auth.SessionCookie,
				Secure: cfg.Env == config.EnvProduction,
			}),
			Users:   handler.NewUserHandler(users, evaluator),
			Catalog: handler.NewCatalogHandler(catalog, evaluator),
			Orders:  handler.NewOrderHandler(orders, evaluator),
			Reviews: handler.NewReviewHandler(reviews, evaluator),
			RBAC:    handler.NewRBACHandler(policy),
			Audit:   handler.NewAuditHandler(exports),
			Metrics: handler.NewMetricsHandler(metrics, checks),
		},
	}
}

// Engine builds the HTTP engine over the container's services.
func (c *Container) Engine() *gin.Engine {
	return New(Options{
		Config:     c.Config,
		Logger:     c.Logger,
		Metrics:    c.Metrics,
		Verifier:   c.Tokens,
		Authorizer: c.Evaluator,
		Activity:   c.userRepo,
		Sessions:   c.Sessions,
		AuditLog:   c.auditRepo,
		Handlers:   c.handlers,
	})
}
