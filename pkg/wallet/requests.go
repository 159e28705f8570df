package wallet

import (
	"context"
	"errors"
	"strings"
)

// CreateRequest files a manual payment claim for the Pro price.
func (service *Service) CreateRequest(ctx context.Context, identity Identity, displayName string) (UpgradeRequest, error) {
	request := UpgradeRequest{
		ID:          RequestID{value: service.newID()},
		UserID:      identity.UserID,
		DisplayName: effectiveDisplayName(displayName, identity),
		AmountCents: service.plan.PriceCents.ToAmountCents(),
		Status:      RequestStatusPending,
		CreatedAt:   service.nowFn(),
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		latest, err := transactionStore.LatestRequest(ctx, identity.UserID)
		switch {
		case err == nil && latest.Status == RequestStatusPending:
			return ErrDuplicatePendingRequest
		case err != nil && !errors.Is(err, ErrUnknownRequest):
			return err
		}
		return transactionStore.InsertRequest(ctx, request)
	})
	service.logOperation(ctx, OperationLog{
		Operation: OperationCreateRequest,
		UserID:    identity.UserID,
		RequestID: request.ID,
		Amount:    request.AmountCents,
		Error:     operationError,
	})
	if operationError != nil {
		return UpgradeRequest{}, operationError
	}
	return request, nil
}

// LatestRequest returns the user's newest request of any status.
func (service *Service) LatestRequest(ctx context.Context, userID UserID) (UpgradeRequest, bool, error) {
	request, err := service.store.LatestRequest(ctx, userID)
	if errors.Is(err, ErrUnknownRequest) {
		return UpgradeRequest{}, false, nil
	}
	if err != nil {
		return UpgradeRequest{}, false, err
	}
	return request, true, nil
}

// ListRequests returns the newest requests with requester context for reviewers.
func (service *Service) ListRequests(ctx context.Context, limit int) ([]EnrichedRequest, error) {
	requests, err := service.store.ListRequests(ctx, clampLimit(limit, defaultRequestsLimit))
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return []EnrichedRequest{}, nil
	}
	seen := make(map[UserID]struct{}, len(requests))
	userIDs := make([]UserID, 0, len(requests))
	for _, request := range requests {
		if _, ok := seen[request.UserID]; ok {
			continue
		}
		seen[request.UserID] = struct{}{}
		userIDs = append(userIDs, request.UserID)
	}
	profiles, err := service.store.ListUserProfiles(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	profilesByUser := make(map[UserID]UserProfile, len(profiles))
	for _, profile := range profiles {
		profilesByUser[profile.UserID] = profile
	}
	restaurants, err := service.store.ListRestaurantsByOwners(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	firstRestaurant := make(map[UserID]string, len(restaurants))
	for _, restaurant := range restaurants {
		if _, ok := firstRestaurant[restaurant.OwnerID]; !ok {
			firstRestaurant[restaurant.OwnerID] = restaurant.Name
		}
	}
	enriched := make([]EnrichedRequest, 0, len(requests))
	for _, request := range requests {
		item := EnrichedRequest{UpgradeRequest: request, Mode: RequestModeUpgrade}
		if profile, ok := profilesByUser[request.UserID]; ok {
			if profile.Email != "" {
				email := profile.Email
				item.UserEmail = &email
			}
			if profile.Plan.Tier == PlanTierPro {
				item.Mode = RequestModeExtend
			}
		}
		if name, ok := firstRestaurant[request.UserID]; ok {
			restaurantName := name
			item.RestaurantName = &restaurantName
		}
		enriched = append(enriched, item)
	}
	return enriched, nil
}

// ResolveRequest approves or rejects a pending request.
// Approval credits the claimed amount and activates Pro in the same transaction as the status change.
func (service *Service) ResolveRequest(ctx context.Context, requestID RequestID, action RequestAction, message string) (Resolution, error) {
	var resolution Resolution
	var userID UserID
	var amount AmountCents
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		request, err := transactionStore.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		userID = request.UserID
		if request.Status.IsTerminal() {
			return ErrRequestProcessed
		}
		now := service.nowFn()
		transition := RequestTransition{ID: requestID, From: RequestStatusPending, ResolvedAt: now}
		upgradeApplied := false
		switch action {
		case RequestActionReject:
			transition.To = RequestStatusRejected
			transition.Message = messageOrDefault(message, defaultRejectMessage)
		case RequestActionApprove:
			transition.To = RequestStatusApproved
			if _, err := transactionStore.LockPlanMeta(ctx, request.UserID); err != nil && !errors.Is(err, ErrUnknownUser) {
				return err
			}
			claimed, err := NewPositiveAmountCents(request.AmountCents.Int64())
			if err != nil {
				return err
			}
			reference := referenceUpgradePrefix + requestID.String()
			metadata := MetadataFromMap(map[string]string{"request_id": requestID.String()})
			if _, err := service.creditWithin(ctx, transactionStore, request.UserID, claimed, reference, metadata); err != nil {
				return err
			}
			amount = claimed.ToAmountCents()
			_, upgradeErr := service.applyUpgradeWithin(ctx, transactionStore, request.UserID, UpgradeOptions{
				Reference:       reference,
				StartFromExpiry: true,
				Metadata:        metadata,
			})
			switch {
			case upgradeErr == nil:
				upgradeApplied = true
				transition.Message = messageOrDefault(message, defaultApproveMessage)
			case IsBusinessError(upgradeErr):
				transition.Message = partialApprovePrefix + BusinessErrorReason(upgradeErr)
			default:
				return upgradeErr
			}
		default:
			return ErrInvalidRequestAction
		}
		if err := transactionStore.TransitionRequest(ctx, transition); err != nil {
			return err
		}
		resolvedAt := transition.ResolvedAt
		request.Status = transition.To
		request.StatusMessage = transition.Message
		request.ResolvedAt = &resolvedAt
		resolution = Resolution{Request: request, UpgradeApplied: upgradeApplied}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: OperationResolve,
		UserID:    userID,
		RequestID: requestID,
		Amount:    amount,
		Outcome:   string(action),
		Error:     operationError,
	})
	if operationError != nil {
		return Resolution{}, operationError
	}
	return resolution, nil
}

func effectiveDisplayName(supplied string, identity Identity) string {
	for _, candidate := range []string{supplied, identity.DisplayName, identity.Email} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return defaultDisplayName
}

func messageOrDefault(message string, fallback string) string {
	if trimmed := strings.TrimSpace(message); trimmed != "" {
		return trimmed
	}
	return fallback
}
