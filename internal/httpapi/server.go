// Package httpapi exposes the wallet and plan lifecycle over HTTP+JSON.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/menuwallet/internal/observability"
	"github.com/MarkoPoloResearchLab/menuwallet/internal/plansync"
	"github.com/MarkoPoloResearchLab/menuwallet/pkg/wallet"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

var errMissingDependency = errors.New("httpapi: service, hook and logger are required")

// WalletService is the domain surface the handlers call.
type WalletService interface {
	Plan() wallet.PlanConfig
	WalletSummary(ctx context.Context, userID wallet.UserID) (wallet.Balance, error)
	ListTransactions(ctx context.Context, userID wallet.UserID, limit int) ([]wallet.Transaction, error)
	PlanMeta(ctx context.Context, userID wallet.UserID) (wallet.PlanMeta, error)
	LatestRequest(ctx context.Context, userID wallet.UserID) (wallet.UpgradeRequest, bool, error)
	CreateRequest(ctx context.Context, identity wallet.Identity, displayName string) (wallet.UpgradeRequest, error)
	ListRequests(ctx context.Context, limit int) ([]wallet.EnrichedRequest, error)
	ResolveRequest(ctx context.Context, requestID wallet.RequestID, action wallet.RequestAction, message string) (wallet.Resolution, error)
	SelfServeUpgrade(ctx context.Context, userID wallet.UserID) (wallet.Balance, error)
	GrantPro(ctx context.Context, adminEmail string, targetUserID wallet.UserID) (wallet.Balance, error)
	Overview(ctx context.Context, limit int) (wallet.Overview, error)
	RestaurantBySlug(ctx context.Context, slug string) (wallet.Restaurant, error)
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config, service WalletService, hook *plansync.Hook, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	router, err := NewRouter(cfg, service, hook, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("wallet api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter wires middleware and routes. cfg must already be validated.
func NewRouter(cfg Config, service WalletService, hook *plansync.Hook, logger *zap.Logger) (*gin.Engine, error) {
	if service == nil || hook == nil || logger == nil {
		return nil, errMissingDependency
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return nil, err
	}
	handler := &httpHandler{
		logger:  logger,
		service: service,
		hook:    hook,
		admins:  wallet.NewAdminGate(cfg.AdminEmails),
		claims:  newClaimLimiter(cfg.ClaimsPerMinute, cfg.ClaimBurst, claimLimiterVisitorTTL),
		cfg:     cfg,
	}
	return setupRouter(cfg, handler, validator), nil
}

func setupRouter(cfg Config, handler *httpHandler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.GinMetrics())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/public/restaurants/:slug/plan", handler.handlePublicPlan)

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(plansync.ClaimsContextKey))
	api.Use(handler.hook.GinMiddleware())

	api.GET("/session", handler.handleSession)
	api.GET("/wallet", handler.handleWallet)
	api.POST("/wallet/upgrade", handler.handleSelfUpgrade)
	api.POST("/upgrade-requests", handler.handleCreateRequest)

	admin := api.Group("")
	admin.Use(handler.requireAdmin(http.StatusForbidden))
	admin.GET("/upgrade-requests", handler.handleListRequests)
	admin.PATCH("/upgrade-requests", handler.handleResolveRequest)
	admin.GET("/admin/users", handler.handleOverview)

	// grant-pro reports a non-admin caller as unauthenticated.
	api.POST("/admin/users/grant-pro", handler.requireAdmin(http.StatusUnauthorized), handler.handleGrantPro)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service WalletService
	hook    *plansync.Hook
	admins  wallet.AdminGate
	claims  *claimLimiter
	cfg     Config
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) requireAdmin(deniedStatus int) gin.HandlerFunc {
	deniedCode := errorCodeForbidden
	if deniedStatus == http.StatusUnauthorized {
		deniedCode = errorCodeUnauthorized
	}
	return func(ctx *gin.Context) {
		identity, ok := plansync.IdentityFromContext(ctx)
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, messageMissingSession))
			return
		}
		if !handler.admins.IsAdmin(identity.Email) {
			ctx.AbortWithStatusJSON(deniedStatus, errorResponse(deniedCode, messageAdminRequired))
			return
		}
		ctx.Next()
	}
}

func (handler *httpHandler) handleSession(ctx *gin.Context) {
	identity, ok := plansync.IdentityFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, messageMissingSession))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	meta, err := handler.service.PlanMeta(requestCtx, identity.UserID)
	if err != nil {
		handler.respondError(ctx, "session plan lookup", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":  identity.UserID.String(),
		"email":    identity.Email,
		"display":  identity.DisplayName,
		"is_admin": handler.admins.IsAdmin(identity.Email),
		"plan":     toPlanPayload(meta),
	})
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	identity, ok := plansync.IdentityFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, messageMissingSession))
		return
	}
	handler.respondWithWallet(ctx, identity.UserID, false)
}

func (handler *httpHandler) handleSelfUpgrade(ctx *gin.Context) {
	identity, ok := plansync.IdentityFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, messageMissingSession))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if _, err := handler.service.SelfServeUpgrade(requestCtx, identity.UserID); err != nil {
		handler.respondError(ctx, "self upgrade", err)
		return
	}
	handler.respondWithWallet(ctx, identity.UserID, true)
}

func (handler *httpHandler) handleCreateRequest(ctx *gin.Context) {
	identity, ok := plansync.IdentityFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, messageMissingSession))
		return
	}
	var payload createRequestPayload
	if err := ctx.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, messageExpectedJSONBody))
		return
	}
	if !handler.claims.Allow(identity.UserID.String()) {
		ctx.JSON(http.StatusTooManyRequests, errorResponse(errorCodeRateLimited, messageTooManyClaims))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	request, err := handler.service.CreateRequest(requestCtx, identity, payload.DisplayName)
	if err != nil {
		handler.respondError(ctx, "create upgrade request", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "request": toRequestPayload(request)})
}

func (handler *httpHandler) handleListRequests(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	requests, err := handler.service.ListRequests(requestCtx, queryLimit(ctx))
	if err != nil {
		handler.respondError(ctx, "list upgrade requests", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"requests": toEnrichedPayloads(requests)})
}

func (handler *httpHandler) handleResolveRequest(ctx *gin.Context) {
	var payload resolveRequestPayload
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, messageExpectedJSONBody))
		return
	}
	requestID, err := wallet.NewRequestID(payload.ID)
	if err != nil {
		handler.respondError(ctx, "resolve upgrade request", err)
		return
	}
	action, err := wallet.ParseRequestAction(payload.Action)
	if err != nil {
		handler.respondError(ctx, "resolve upgrade request", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	resolution, err := handler.service.ResolveRequest(requestCtx, requestID, action, payload.Message)
	if err != nil {
		handler.respondError(ctx, "resolve upgrade request", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success":         true,
		"request":         toRequestPayload(resolution.Request),
		"upgrade_applied": resolution.UpgradeApplied,
	})
}

func (handler *httpHandler) handleGrantPro(ctx *gin.Context) {
	identity, _ := plansync.IdentityFromContext(ctx)
	var payload grantProPayload
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, messageExpectedJSONBody))
		return
	}
	targetUserID, err := wallet.NewUserID(payload.UserID)
	if err != nil {
		handler.respondError(ctx, "grant pro", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	balance, err := handler.service.GrantPro(requestCtx, identity.Email, targetUserID)
	if err != nil {
		handler.respondError(ctx, "grant pro", err)
		return
	}
	meta, err := handler.service.PlanMeta(requestCtx, targetUserID)
	if err != nil {
		handler.respondError(ctx, "grant pro", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user_id": targetUserID.String(),
		"balance": toBalancePayload(balance),
		"plan":    toPlanPayload(meta),
	})
}

func (handler *httpHandler) handleOverview(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	overview, err := handler.service.Overview(requestCtx, queryLimit(ctx))
	if err != nil {
		handler.respondError(ctx, "admin overview", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"total_users": overview.Counts.Total,
		"pro_users":   overview.Counts.Pro,
		"users":       toUserPayloads(overview.Users),
	})
}

func (handler *httpHandler) handlePublicPlan(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	slug := ctx.Param("slug")
	restaurant, err := handler.service.RestaurantBySlug(requestCtx, slug)
	if err != nil {
		handler.respondError(ctx, "public plan lookup", err)
		return
	}
	if handler.hook.Sync(requestCtx, restaurant.OwnerID) != wallet.SyncOutcomeUnchanged {
		refreshed, refreshErr := handler.service.RestaurantBySlug(requestCtx, slug)
		if refreshErr != nil {
			handler.respondError(ctx, "public plan lookup", refreshErr)
			return
		}
		restaurant = refreshed
	}
	ctx.JSON(http.StatusOK, gin.H{
		"slug":      restaurant.Slug,
		"name":      restaurant.Name,
		"plan_tier": restaurant.PlanTier.String(),
		"pro":       restaurant.PlanTier == wallet.PlanTierPro,
	})
}

// respondWithWallet writes the wallet view; mutated marks the response of a state-changing call.
func (handler *httpHandler) respondWithWallet(ctx *gin.Context, userID wallet.UserID, mutated bool) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	balance, err := handler.service.WalletSummary(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "wallet summary", err)
		return
	}
	meta, err := handler.service.PlanMeta(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "wallet plan lookup", err)
		return
	}
	transactions, err := handler.service.ListTransactions(requestCtx, userID, defaultTransactionsLimit)
	if err != nil {
		handler.respondError(ctx, "wallet transactions", err)
		return
	}
	latest, found, err := handler.service.LatestRequest(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "latest upgrade request", err)
		return
	}
	price := handler.service.Plan().PriceCents.ToAmountCents()
	response := walletResponse{
		Balance:       toBalancePayload(balance),
		Plan:          toPlanPayload(meta),
		ProPriceCents: price.Int64(),
		ProPrice:      price.Units(),
		Transactions:  toTransactionPayloads(transactions),
	}
	if found {
		payload := toRequestPayload(latest)
		response.LatestRequest = &payload
	}
	body := gin.H{"wallet": response}
	if mutated {
		body["success"] = true
	}
	ctx.JSON(http.StatusOK, body)
}

// queryLimit reads ?limit=; the service clamps it, zero means its default.
func queryLimit(ctx *gin.Context) int {
	limit, err := strconv.Atoi(ctx.Query("limit"))
	if err != nil {
		return 0
	}
	return limit
}
