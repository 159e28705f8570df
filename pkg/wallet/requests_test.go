package wallet

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCreateRequestDisplayNamePrecedence(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		supplied string
		identity Identity
		expected string
	}{
		{name: "supplied wins", supplied: "  Chef Ana  ", identity: Identity{DisplayName: "Ana", Email: "ana@example.com"}, expected: "Chef Ana"},
		{name: "identity name", supplied: "   ", identity: Identity{DisplayName: "Ana", Email: "ana@example.com"}, expected: "Ana"},
		{name: "email", identity: Identity{Email: "ana@example.com"}, expected: "ana@example.com"},
		{name: "fallback", identity: Identity{}, expected: "MenuByte Owner"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore()
			service := mustNewService(test, store, newTestClock())
			identity := testCase.identity
			identity.UserID = mustUserID(test, "requester")

			request, err := service.CreateRequest(context.Background(), identity, testCase.supplied)
			if err != nil {
				test.Fatalf("create: %v", err)
			}
			if request.DisplayName != testCase.expected {
				test.Fatalf("expected %q, got %q", testCase.expected, request.DisplayName)
			}
			if request.Status != RequestStatusPending || request.AmountCents != 1000 {
				test.Fatalf("unexpected request: %+v", request)
			}
		})
	}
}

func TestCreateRequestRejectsSecondPending(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store, newTestClock())
	identity := Identity{UserID: mustUserID(test, "eager"), Email: "eager@example.com"}

	if _, err := service.CreateRequest(context.Background(), identity, ""); err != nil {
		test.Fatalf("first create: %v", err)
	}
	_, err := service.CreateRequest(context.Background(), identity, "")
	if !errors.Is(err, ErrDuplicatePendingRequest) {
		test.Fatalf("expected ErrDuplicatePendingRequest, got %v", err)
	}
	if len(store.requests) != 1 {
		test.Fatalf("expected a single request, got %d", len(store.requests))
	}
}

func TestCreateRequestAllowedAfterResolution(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store, newTestClock())
	identity := Identity{UserID: mustUserID(test, "retry"), Email: "retry@example.com"}

	first, err := service.CreateRequest(context.Background(), identity, "")
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	if _, err := service.ResolveRequest(context.Background(), first.ID, RequestActionReject, ""); err != nil {
		test.Fatalf("reject: %v", err)
	}
	if _, err := service.CreateRequest(context.Background(), identity, ""); err != nil {
		test.Fatalf("expected new request after rejection, got %v", err)
	}
}

func TestLatestRequest(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store, newTestClock())
	userID := mustUserID(test, "latest")

	_, found, err := service.LatestRequest(context.Background(), userID)
	if err != nil || found {
		test.Fatalf("expected no request, got found=%v err=%v", found, err)
	}
	created, err := service.CreateRequest(context.Background(), Identity{UserID: userID}, "")
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	latest, found, err := service.LatestRequest(context.Background(), userID)
	if err != nil || !found || latest.ID != created.ID {
		test.Fatalf("expected latest %s, got %+v found=%v err=%v", created.ID, latest, found, err)
	}
}

func TestResolveRequestScenarioApproveFromZeroBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	clock := newTestClock()
	service := mustNewService(test, store, clock)
	userID := mustUserID(test, "scenario-a")
	store.seedUser(userID, "a@example.com", FreePlanMeta())
	store.seedRestaurant("rest-a", userID, "Taqueria", clock.Now())

	request, err := service.CreateRequest(context.Background(), Identity{UserID: userID, Email: "a@example.com"}, "")
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	clock.Advance(time.Hour)
	resolution, err := service.ResolveRequest(context.Background(), request.ID, RequestActionApprove, "")
	if err != nil {
		test.Fatalf("approve: %v", err)
	}
	if !resolution.UpgradeApplied {
		test.Fatalf("expected upgrade applied")
	}
	if resolution.Request.Status != RequestStatusApproved || resolution.Request.StatusMessage != "Payment confirmed and Pro activated." {
		test.Fatalf("unexpected resolution: %+v", resolution.Request)
	}
	if store.balance(userID) != 0 {
		test.Fatalf("expected balance 0, got %d", store.balance(userID))
	}
	meta := store.users[userID].Plan
	expected := clock.Now().Add(30 * day)
	if meta.Tier != PlanTierPro || meta.ProExpiresAt == nil || !meta.ProExpiresAt.Equal(expected) {
		test.Fatalf("expected pro until %v, got %+v", expected, meta)
	}
	if len(store.transactions) != 2 {
		test.Fatalf("expected credit and debit, got %d", len(store.transactions))
	}
	credit := store.transactions[0]
	if credit.Reference != "upgrade:"+request.ID.String() || credit.AmountCents != 1000 {
		test.Fatalf("unexpected credit: %+v", credit)
	}
	stored, _ := store.GetRequest(context.Background(), request.ID)
	if stored.Status != RequestStatusApproved || stored.ResolvedAt == nil || !stored.ResolvedAt.Equal(clock.Now()) {
		test.Fatalf("unexpected stored request: %+v", stored)
	}
	if store.balance(userID) != store.transactionSum(userID) {
		test.Fatalf("balance diverged from transactions")
	}
}

func TestResolveRequestScenarioRejectWithMessage(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store, newTestClock())
	userID := mustUserID(test, "scenario-c")
	store.seedUser(userID, "c@example.com", FreePlanMeta())
	store.wallets[userID] = Wallet{UserID: userID, BalanceCents: 300}

	request, err := service.CreateRequest(context.Background(), Identity{UserID: userID}, "")
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	resolution, err := service.ResolveRequest(context.Background(), request.ID, RequestActionReject, "Could not find transfer")
	if err != nil {
		test.Fatalf("reject: %v", err)
	}
	if resolution.UpgradeApplied {
		test.Fatalf("reject must not apply upgrade")
	}
	if resolution.Request.Status != RequestStatusRejected || resolution.Request.StatusMessage != "Could not find transfer" {
		test.Fatalf("unexpected resolution: %+v", resolution.Request)
	}
	if store.balance(userID) != 300 || len(store.transactions) != 0 {
		test.Fatalf("expected wallet unchanged")
	}
}

func TestResolveRequestRejectDefaultMessage(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store, newTestClock())
	request, err := service.CreateRequest(context.Background(), Identity{UserID: mustUserID(test, "reject-default")}, "")
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	resolution, err := service.ResolveRequest(context.Background(), request.ID, RequestActionReject, "  ")
	if err != nil {
		test.Fatalf("reject: %v", err)
	}
	if resolution.Request.StatusMessage != "Payment not confirmed" {
		test.Fatalf("expected default message, got %q", resolution.Request.StatusMessage)
	}
}

func TestResolveRequestTerminalStatesAreFinal(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name   string
		first  RequestAction
		second RequestAction
	}{
		{name: "approve twice", first: RequestActionApprove, second: RequestActionApprove},
		{name: "reject after approve", first: RequestActionApprove, second: RequestActionReject},
		{name: "approve after reject", first: RequestActionReject, second: RequestActionApprove},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore()
			service := mustNewService(test, store, newTestClock())
			userID := mustUserID(test, "terminal")
			store.seedUser(userID, "t@example.com", FreePlanMeta())
			request, err := service.CreateRequest(context.Background(), Identity{UserID: userID}, "")
			if err != nil {
				test.Fatalf("create: %v", err)
			}
			first, err := service.ResolveRequest(context.Background(), request.ID, testCase.first, "")
			if err != nil {
				test.Fatalf("first resolve: %v", err)
			}
			balanceAfterFirst := store.balance(userID)
			transactionsAfterFirst := len(store.transactions)

			_, err = service.ResolveRequest(context.Background(), request.ID, testCase.second, "")
			if !errors.Is(err, ErrRequestProcessed) {
				test.Fatalf("expected ErrRequestProcessed, got %v", err)
			}
			stored, _ := store.GetRequest(context.Background(), request.ID)
			if stored.Status != first.Request.Status {
				test.Fatalf("expected status %s to stick, got %s", first.Request.Status, stored.Status)
			}
			if store.balance(userID) != balanceAfterFirst || len(store.transactions) != transactionsAfterFirst {
				test.Fatalf("second resolve must not touch the ledger")
			}
		})
	}
}

func TestResolveRequestLosingConcurrentApprovalRollsBackCredit(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store, newTestClock())
	userID := mustUserID(test, "racer")
	store.seedUser(userID, "r@example.com", FreePlanMeta())
	request, err := service.CreateRequest(context.Background(), Identity{UserID: userID}, "")
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	// the conditional status write loses against a transition committed by another approver
	store.failOn("TransitionRequest", ErrRequestProcessed)

	_, err = service.ResolveRequest(context.Background(), request.ID, RequestActionApprove, "")
	if !errors.Is(err, ErrRequestProcessed) {
		test.Fatalf("expected ErrRequestProcessed, got %v", err)
	}
	if store.balance(userID) != 0 || len(store.transactions) != 0 {
		test.Fatalf("expected credit to roll back, balance %d", store.balance(userID))
	}
	if store.users[userID].Plan.Tier != PlanTierFree {
		test.Fatalf("expected plan unchanged")
	}
}

func TestResolveRequestStoreFailureLeavesRequestPending(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store, newTestClock())
	userID := mustUserID(test, "flaky")
	store.seedUser(userID, "f@example.com", FreePlanMeta())
	request, err := service.CreateRequest(context.Background(), Identity{UserID: userID}, "")
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	store.failOn("UpdatePlanMeta", errStoreFailure)

	_, err = service.ResolveRequest(context.Background(), request.ID, RequestActionApprove, "")
	if !errors.Is(err, errStoreFailure) {
		test.Fatalf("expected store error, got %v", err)
	}
	stored, _ := store.GetRequest(context.Background(), request.ID)
	if stored.Status != RequestStatusPending {
		test.Fatalf("expected request still pending, got %s", stored.Status)
	}
	if store.balance(userID) != 0 || len(store.transactions) != 0 {
		test.Fatalf("expected ledger untouched")
	}
}

func TestResolveRequestPartialApprovalForUnknownUser(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store, newTestClock())
	userID := mustUserID(test, "no-profile")
	request, err := service.CreateRequest(context.Background(), Identity{UserID: userID}, "")
	if err != nil {
		test.Fatalf("create: %v", err)
	}

	resolution, err := service.ResolveRequest(context.Background(), request.ID, RequestActionApprove, "ok")
	if err != nil {
		test.Fatalf("approve: %v", err)
	}
	if resolution.UpgradeApplied {
		test.Fatalf("expected upgrade not applied")
	}
	if resolution.Request.Status != RequestStatusApproved {
		test.Fatalf("expected approved, got %s", resolution.Request.Status)
	}
	if resolution.Request.StatusMessage != "Wallet credited but upgrade pending: Unknown user" {
		test.Fatalf("unexpected message %q", resolution.Request.StatusMessage)
	}
	if store.balance(userID) != 1000 {
		test.Fatalf("expected credit kept, got %d", store.balance(userID))
	}
}

// wrappingStore reports store failures the way the database backends do.
type wrappingStore struct {
	*stubStore
	decrementErr error
}

func (store *wrappingStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return store.stubStore.WithTx(ctx, func(ctx context.Context, _ Store) error {
		return fn(ctx, store)
	})
}

func (store *wrappingStore) LockPlanMeta(ctx context.Context, userID UserID) (PlanMeta, error) {
	meta, err := store.stubStore.LockPlanMeta(ctx, userID)
	return meta, WrapError("store", "user", "lock", err)
}

func (store *wrappingStore) DecrementBalance(ctx context.Context, userID UserID, amount PositiveAmountCents, at time.Time) (AmountCents, error) {
	if store.decrementErr != nil {
		return 0, WrapError("store", "wallet", "decrement", store.decrementErr)
	}
	balance, err := store.stubStore.DecrementBalance(ctx, userID, amount, at)
	return balance, WrapError("store", "wallet", "decrement", err)
}

func TestResolveRequestPartialApprovalHidesStoreCodes(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name            string
		seedProfile     bool
		decrementErr    error
		expectedMessage string
	}{
		{
			name:            "unknown user",
			expectedMessage: "Wallet credited but upgrade pending: Unknown user",
		},
		{
			name:            "insufficient balance",
			seedProfile:     true,
			decrementErr:    ErrInsufficientBalance,
			expectedMessage: "Wallet credited but upgrade pending: Insufficient wallet balance",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := &wrappingStore{stubStore: newStubStore(), decrementErr: testCase.decrementErr}
			service := mustNewService(test, store, newTestClock())
			userID := mustUserID(test, "wrapped-owner")
			if testCase.seedProfile {
				store.seedUser(userID, "owner@example.com", FreePlanMeta())
			}
			request, err := service.CreateRequest(context.Background(), Identity{UserID: userID}, "")
			if err != nil {
				test.Fatalf("create: %v", err)
			}

			resolution, err := service.ResolveRequest(context.Background(), request.ID, RequestActionApprove, "")
			if err != nil {
				test.Fatalf("approve: %v", err)
			}
			if resolution.UpgradeApplied {
				test.Fatalf("expected upgrade not applied")
			}
			if resolution.Request.StatusMessage != testCase.expectedMessage {
				test.Fatalf("unexpected message %q", resolution.Request.StatusMessage)
			}
			if strings.Contains(resolution.Request.StatusMessage, "store.") {
				test.Fatalf("status message leaks store code: %q", resolution.Request.StatusMessage)
			}
		})
	}
}

func TestResolveRequestRejectsTerminalRequests(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store, newTestClock())
	request, err := service.CreateRequest(context.Background(), Identity{UserID: mustUserID(test, "terminal")}, "")
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	if _, err := service.ResolveRequest(context.Background(), request.ID, RequestActionReject, ""); err != nil {
		test.Fatalf("reject: %v", err)
	}
	for _, action := range []RequestAction{RequestActionApprove, RequestActionReject} {
		if _, err := service.ResolveRequest(context.Background(), request.ID, action, ""); !errors.Is(err, ErrRequestProcessed) {
			test.Fatalf("%s: expected ErrRequestProcessed, got %v", action, err)
		}
	}
}

func TestResolveRequestErrors(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store, newTestClock())
	request, err := service.CreateRequest(context.Background(), Identity{UserID: mustUserID(test, "errs")}, "")
	if err != nil {
		test.Fatalf("create: %v", err)
	}

	if _, err := service.ResolveRequest(context.Background(), mustRequestID(test, "missing"), RequestActionApprove, ""); !errors.Is(err, ErrUnknownRequest) {
		test.Fatalf("expected ErrUnknownRequest, got %v", err)
	}
	if _, err := service.ResolveRequest(context.Background(), request.ID, RequestAction("escalate"), ""); !errors.Is(err, ErrInvalidRequestAction) {
		test.Fatalf("expected ErrInvalidRequestAction, got %v", err)
	}
}

func TestListRequestsEnrichesRows(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	clock := newTestClock()
	service := mustNewService(test, store, clock)
	proUser := mustUserID(test, "pro-owner")
	freeUser := mustUserID(test, "free-owner")
	ghost := mustUserID(test, "ghost")
	store.seedUser(proUser, "pro@example.com", proUntil(clock.Now().Add(day)))
	store.seedUser(freeUser, "free@example.com", FreePlanMeta())
	store.seedRestaurant("second", proUser, "Second Place", clock.Now().Add(time.Hour))
	store.seedRestaurant("first", proUser, "First Place", clock.Now())
	for _, userID := range []UserID{proUser, freeUser, ghost} {
		if _, err := service.CreateRequest(context.Background(), Identity{UserID: userID}, ""); err != nil {
			test.Fatalf("create: %v", err)
		}
	}

	enriched, err := service.ListRequests(context.Background(), 0)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(enriched) != 3 {
		test.Fatalf("expected 3 rows, got %d", len(enriched))
	}
	byUser := map[UserID]EnrichedRequest{}
	for _, item := range enriched {
		byUser[item.UserID] = item
	}
	pro := byUser[proUser]
	if pro.Mode != RequestModeExtend || pro.RestaurantName == nil || *pro.RestaurantName != "First Place" || pro.UserEmail == nil || *pro.UserEmail != "pro@example.com" {
		test.Fatalf("unexpected pro row: %+v", pro)
	}
	free := byUser[freeUser]
	if free.Mode != RequestModeUpgrade || free.RestaurantName != nil {
		test.Fatalf("unexpected free row: %+v", free)
	}
	unknown := byUser[ghost]
	if unknown.UserEmail != nil || unknown.RestaurantName != nil || unknown.Mode != RequestModeUpgrade {
		test.Fatalf("unexpected ghost row: %+v", unknown)
	}
	if enriched[0].UserID != ghost {
		test.Fatalf("expected newest first, got %s", enriched[0].UserID)
	}
}

func TestListRequestsEmpty(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore(), newTestClock())
	enriched, err := service.ListRequests(context.Background(), 10)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if enriched == nil || len(enriched) != 0 {
		test.Fatalf("expected empty non-nil slice, got %#v", enriched)
	}
}
