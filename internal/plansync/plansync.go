// Package plansync reconciles a user's Pro plan whenever the user or their
// public menu is accessed.
package plansync

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/menuwallet/pkg/wallet"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

// ClaimsContextKey is where the session validator stores claims on the gin context.
const ClaimsContextKey = "auth_claims"

var errMissingService = errors.New("plansync: service is required")

// PlanSyncer is the part of the wallet service the hook depends on.
type PlanSyncer interface {
	EnsureUser(ctx context.Context, identity wallet.Identity) error
	EnsurePlanStatus(ctx context.Context, userID wallet.UserID) (wallet.SyncOutcome, error)
}

// Hook runs plan reconciliation on a best-effort basis.
type Hook struct {
	service PlanSyncer
	logger  *zap.Logger
}

// NewHook builds a Hook; a nil logger is replaced by a no-op one.
func NewHook(service PlanSyncer, logger *zap.Logger) (*Hook, error) {
	if service == nil {
		return nil, errMissingService
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hook{service: service, logger: logger}, nil
}

// Sync reconciles the user's plan. Failures are logged and never surface to the caller.
func (hook *Hook) Sync(ctx context.Context, userID wallet.UserID) wallet.SyncOutcome {
	if userID.IsZero() {
		return wallet.SyncOutcomeUnchanged
	}
	outcome, err := hook.service.EnsurePlanStatus(ctx, userID)
	if err != nil {
		hook.logger.Warn("plan sync failed", zap.String("user_id", userID.String()), zap.Error(err))
		return wallet.SyncOutcomeUnchanged
	}
	if outcome != wallet.SyncOutcomeUnchanged {
		hook.logger.Info("plan reconciled", zap.String("user_id", userID.String()), zap.String("outcome", string(outcome)))
	}
	return outcome
}

// SyncIdentity records the authenticated user and then reconciles their plan.
func (hook *Hook) SyncIdentity(ctx context.Context, identity wallet.Identity) wallet.SyncOutcome {
	if identity.UserID.IsZero() {
		return wallet.SyncOutcomeUnchanged
	}
	if err := hook.service.EnsureUser(ctx, identity); err != nil {
		hook.logger.Warn("user upsert failed", zap.String("user_id", identity.UserID.String()), zap.Error(err))
	}
	return hook.Sync(ctx, identity.UserID)
}

// GinMiddleware must be mounted after the session validator middleware.
// Requests without claims pass through untouched.
func (hook *Hook) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if identity, ok := IdentityFromContext(ctx); ok {
			hook.SyncIdentity(ctx.Request.Context(), identity)
		}
		ctx.Next()
	}
}

// IdentityFromContext converts validated session claims into a wallet identity.
func IdentityFromContext(ctx *gin.Context) (wallet.Identity, bool) {
	claimsValue, ok := ctx.Get(ClaimsContextKey)
	if !ok {
		return wallet.Identity{}, false
	}
	claims, ok := claimsValue.(*sessionvalidator.Claims)
	if !ok || claims == nil {
		return wallet.Identity{}, false
	}
	userID, err := wallet.NewUserID(claims.GetUserID())
	if err != nil {
		return wallet.Identity{}, false
	}
	return wallet.Identity{
		UserID:      userID,
		Email:       claims.GetUserEmail(),
		DisplayName: claims.GetUserDisplayName(),
	}, true
}
