package wallet

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ApplyProUpgrade debits the Pro price and extends or starts the Pro period.
func (service *Service) ApplyProUpgrade(ctx context.Context, userID UserID, options UpgradeOptions) (Balance, error) {
	var balance Balance
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		upgraded, err := service.applyUpgradeWithin(ctx, transactionStore, userID, options)
		if err != nil {
			return err
		}
		balance = upgraded
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: OperationUpgrade,
		UserID:    userID,
		Amount:    service.plan.PriceCents.Negated(),
		Reference: options.Reference,
		Error:     operationError,
	})
	if operationError != nil {
		return Balance{}, operationError
	}
	return balance, nil
}

// SelfServeUpgrade spends the caller's own balance on a Pro period.
func (service *Service) SelfServeUpgrade(ctx context.Context, userID UserID) (Balance, error) {
	return service.ApplyProUpgrade(ctx, userID, UpgradeOptions{Reference: ReferenceSelfUpgrade, StartFromExpiry: true})
}

// GrantPro credits the Pro price on behalf of an admin and immediately spends it.
func (service *Service) GrantPro(ctx context.Context, adminEmail string, targetUserID UserID) (Balance, error) {
	var balance Balance
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.LockPlanMeta(ctx, targetUserID); err != nil {
			return err
		}
		metadata := MetadataFromMap(map[string]string{"granted_by": adminEmail})
		if _, err := service.creditWithin(ctx, transactionStore, targetUserID, service.plan.PriceCents, ReferenceAdminGrant, metadata); err != nil {
			return err
		}
		upgraded, err := service.applyUpgradeWithin(ctx, transactionStore, targetUserID, UpgradeOptions{
			Reference:       ReferenceAdminGrant,
			StartFromExpiry: true,
		})
		if err != nil {
			return err
		}
		balance = upgraded
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: OperationGrant,
		UserID:    targetUserID,
		Amount:    service.plan.PriceCents.ToAmountCents(),
		Reference: ReferenceAdminGrant,
		Error:     operationError,
	})
	if operationError != nil {
		return Balance{}, operationError
	}
	return balance, nil
}

// DowngradeUserToFree clears Pro access for the user and every restaurant they own.
func (service *Service) DowngradeUserToFree(ctx context.Context, userID UserID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		return service.downgradeWithin(ctx, transactionStore, userID)
	})
	service.logOperation(ctx, OperationLog{
		Operation: OperationDowngrade,
		UserID:    userID,
		Error:     operationError,
	})
	return operationError
}

// EnsurePlanStatus renews, repairs or downgrades a Pro user whose period has lapsed.
// Users that are unknown or on the free tier are left alone.
func (service *Service) EnsurePlanStatus(ctx context.Context, userID UserID) (SyncOutcome, error) {
	meta, err := service.store.GetPlanMeta(ctx, userID)
	if errors.Is(err, ErrUnknownUser) {
		return SyncOutcomeUnchanged, nil
	}
	if err != nil {
		return SyncOutcomeUnchanged, err
	}
	if !needsReconcile(meta, service.nowFn()) {
		return SyncOutcomeUnchanged, nil
	}
	outcome := SyncOutcomeUnchanged
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		outcome = SyncOutcomeUnchanged
		locked, err := transactionStore.LockPlanMeta(ctx, userID)
		if err != nil {
			return err
		}
		// another caller may have reconciled between the read and the lock
		if !needsReconcile(locked, service.nowFn()) {
			return nil
		}
		options := UpgradeOptions{Reference: ReferenceAutoRenew, StartFromExpiry: true}
		success := SyncOutcomeRenewed
		if locked.ProExpiresAt == nil {
			options = UpgradeOptions{Reference: ReferenceMissingExpiry}
			success = SyncOutcomeRepaired
		}
		_, upgradeErr := service.applyUpgradeWithin(ctx, transactionStore, userID, options)
		if upgradeErr == nil {
			outcome = success
			return nil
		}
		if !errors.Is(upgradeErr, ErrInsufficientBalance) {
			return upgradeErr
		}
		if err := service.downgradeWithin(ctx, transactionStore, userID); err != nil {
			return err
		}
		outcome = SyncOutcomeDowngraded
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: OperationEnsurePlan,
		UserID:    userID,
		Outcome:   string(outcome),
		Error:     operationError,
	})
	if operationError != nil {
		return SyncOutcomeUnchanged, operationError
	}
	return outcome, nil
}

// PlanMeta returns the user's plan, free for users that have never signed in.
func (service *Service) PlanMeta(ctx context.Context, userID UserID) (PlanMeta, error) {
	meta, err := service.store.GetPlanMeta(ctx, userID)
	if errors.Is(err, ErrUnknownUser) {
		return FreePlanMeta(), nil
	}
	if err != nil {
		return PlanMeta{}, err
	}
	return meta, nil
}

// EnsureUser records the identity on first contact and refreshes email and name afterwards.
func (service *Service) EnsureUser(ctx context.Context, identity Identity) error {
	if identity.UserID.IsZero() {
		return ErrInvalidUserID
	}
	return service.store.UpsertUser(ctx, identity, service.nowFn())
}

// RestaurantBySlug resolves a public menu slug to its restaurant.
func (service *Service) RestaurantBySlug(ctx context.Context, slug string) (Restaurant, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return Restaurant{}, ErrUnknownRestaurant
	}
	return service.store.GetRestaurantBySlug(ctx, trimmed)
}

// Overview returns user totals and the most recent users for the admin dashboard.
func (service *Service) Overview(ctx context.Context, limit int) (Overview, error) {
	counts, err := service.store.CountUsers(ctx)
	if err != nil {
		return Overview{}, err
	}
	users, err := service.store.ListRecentUsers(ctx, clampLimit(limit, defaultUsersLimit))
	if err != nil {
		return Overview{}, err
	}
	return Overview{Counts: counts, Users: users}, nil
}

// ProUsersDue lists Pro users whose period has ended or was never set.
func (service *Service) ProUsersDue(ctx context.Context, limit int) ([]UserID, error) {
	return service.store.ListProUsersDue(ctx, service.nowFn(), clampLimit(limit, maxListLimit))
}

func (service *Service) applyUpgradeWithin(ctx context.Context, transactionStore Store, userID UserID, options UpgradeOptions) (Balance, error) {
	meta, err := transactionStore.LockPlanMeta(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	now := service.nowFn()
	price := service.plan.PriceCents
	newBalance, err := transactionStore.DecrementBalance(ctx, userID, price, now)
	if err != nil {
		return Balance{}, err
	}
	if err := transactionStore.InsertTransaction(ctx, TransactionInput{
		UserID:      userID,
		AmountCents: price.Negated(),
		Type:        TransactionDebitUpgrade,
		Reference:   options.Reference,
		Metadata:    options.Metadata,
		CreatedAt:   now,
	}); err != nil {
		return Balance{}, err
	}
	expiresAt := service.nextExpiry(meta, now, options)
	if err := transactionStore.UpdatePlanMeta(ctx, userID, PlanMeta{
		Tier:         PlanTierPro,
		Status:       PlanStatusActive,
		ProExpiresAt: &expiresAt,
	}); err != nil {
		return Balance{}, err
	}
	restaurants, err := transactionStore.ListRestaurantsByOwners(ctx, []UserID{userID})
	if err != nil {
		return Balance{}, err
	}
	if err := transactionStore.SetRestaurantsPlanTier(ctx, userID, PlanTierPro); err != nil {
		return Balance{}, err
	}
	for _, restaurant := range restaurants {
		if err := transactionStore.UpsertSubscription(ctx, Subscription{
			RestaurantID: restaurant.ID,
			UserID:       userID,
			PlanTier:     PlanTierPro,
			Status:       PlanStatusActive,
		}); err != nil {
			return Balance{}, err
		}
	}
	return Balance{BalanceCents: newBalance}, nil
}

func (service *Service) downgradeWithin(ctx context.Context, transactionStore Store, userID UserID) error {
	if err := transactionStore.UpdatePlanMeta(ctx, userID, FreePlanMeta()); err != nil {
		return err
	}
	if err := transactionStore.SetRestaurantsPlanTier(ctx, userID, PlanTierFree); err != nil {
		return err
	}
	return transactionStore.SetSubscriptionsPlan(ctx, userID, PlanTierFree, PlanStatusInactive)
}

func (service *Service) nextExpiry(meta PlanMeta, now time.Time, options UpgradeOptions) time.Time {
	durationDays := options.DurationDays
	if durationDays <= 0 {
		durationDays = service.plan.DurationDays
	}
	base := now
	if options.StartFromExpiry && meta.ProExpiresAt != nil && meta.ProExpiresAt.After(now) {
		base = *meta.ProExpiresAt
	}
	return base.Add(time.Duration(durationDays) * hoursPerDay * time.Hour)
}

func needsReconcile(meta PlanMeta, now time.Time) bool {
	if meta.Tier != PlanTierPro {
		return false
	}
	return meta.ProExpiresAt == nil || !meta.ProExpiresAt.After(now)
}
