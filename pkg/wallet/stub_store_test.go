package wallet

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"
	"time"
)

var errStoreFailure = errors.New("store error")

type stubState struct {
	wallets       map[UserID]Wallet
	transactions  []Transaction
	users         map[UserID]UserProfile
	restaurants   []Restaurant
	subscriptions map[string]Subscription
	requests      []UpgradeRequest
}

func (state stubState) clone() stubState {
	cloned := stubState{
		wallets:       make(map[UserID]Wallet, len(state.wallets)),
		transactions:  append([]Transaction(nil), state.transactions...),
		users:         make(map[UserID]UserProfile, len(state.users)),
		restaurants:   append([]Restaurant(nil), state.restaurants...),
		subscriptions: make(map[string]Subscription, len(state.subscriptions)),
		requests:      append([]UpgradeRequest(nil), state.requests...),
	}
	for key, value := range state.wallets {
		cloned.wallets[key] = value
	}
	for key, value := range state.users {
		cloned.users[key] = value
	}
	for key, value := range state.subscriptions {
		cloned.subscriptions[key] = value
	}
	return cloned
}

// stubStore keeps everything in memory and rolls back the whole state when a transaction fails.
type stubStore struct {
	stubState
	failures map[string]error
	calls    []string
}

func newStubStore() *stubStore {
	return &stubStore{
		stubState: stubState{
			wallets:       map[UserID]Wallet{},
			users:         map[UserID]UserProfile{},
			subscriptions: map[string]Subscription{},
		},
		failures: map[string]error{},
	}
}

func (store *stubStore) failOn(method string, err error) {
	store.failures[method] = err
}

func (store *stubStore) record(method string) error {
	store.calls = append(store.calls, method)
	return store.failures[method]
}

func (store *stubStore) seedUser(userID UserID, email string, meta PlanMeta) {
	store.users[userID] = UserProfile{UserID: userID, Email: email, Name: email, Plan: meta, CreatedAt: time.Unix(0, 0).UTC()}
}

func (store *stubStore) seedRestaurant(id string, ownerID UserID, name string, createdAt time.Time) {
	store.restaurants = append(store.restaurants, Restaurant{
		ID:        id,
		OwnerID:   ownerID,
		Name:      name,
		Slug:      id,
		PlanTier:  PlanTierFree,
		CreatedAt: createdAt,
	})
}

func (store *stubStore) balance(userID UserID) AmountCents {
	return store.wallets[userID].BalanceCents
}

func (store *stubStore) transactionSum(userID UserID) AmountCents {
	var sum AmountCents
	for _, transaction := range store.transactions {
		if transaction.UserID == userID {
			sum += transaction.AmountCents
		}
	}
	return sum
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if err := store.record("WithTx"); err != nil {
		return err
	}
	snapshot := store.stubState.clone()
	if err := fn(ctx, store); err != nil {
		store.stubState = snapshot
		return err
	}
	return nil
}

func (store *stubStore) GetWallet(ctx context.Context, userID UserID) (Wallet, error) {
	if err := store.record("GetWallet"); err != nil {
		return Wallet{}, err
	}
	wallet, ok := store.wallets[userID]
	if !ok {
		return Wallet{}, ErrUnknownWallet
	}
	return wallet, nil
}

func (store *stubStore) IncrementBalance(ctx context.Context, userID UserID, amount PositiveAmountCents, at time.Time) (AmountCents, error) {
	if err := store.record("IncrementBalance"); err != nil {
		return 0, err
	}
	wallet := store.wallets[userID]
	wallet.UserID = userID
	wallet.BalanceCents += amount.ToAmountCents()
	wallet.UpdatedAt = at
	store.wallets[userID] = wallet
	return wallet.BalanceCents, nil
}

func (store *stubStore) DecrementBalance(ctx context.Context, userID UserID, amount PositiveAmountCents, at time.Time) (AmountCents, error) {
	if err := store.record("DecrementBalance"); err != nil {
		return 0, err
	}
	wallet, ok := store.wallets[userID]
	if !ok || wallet.BalanceCents < amount.ToAmountCents() {
		return 0, ErrInsufficientBalance
	}
	wallet.BalanceCents -= amount.ToAmountCents()
	wallet.UpdatedAt = at
	store.wallets[userID] = wallet
	return wallet.BalanceCents, nil
}

func (store *stubStore) InsertTransaction(ctx context.Context, transaction TransactionInput) error {
	if err := store.record("InsertTransaction"); err != nil {
		return err
	}
	store.transactions = append(store.transactions, Transaction{
		ID:          "tx-" + strconv.Itoa(len(store.transactions)+1),
		UserID:      transaction.UserID,
		AmountCents: transaction.AmountCents,
		Type:        transaction.Type,
		Reference:   transaction.Reference,
		Metadata:    transaction.Metadata,
		CreatedAt:   transaction.CreatedAt,
	})
	return nil
}

func (store *stubStore) ListTransactions(ctx context.Context, userID UserID, limit int) ([]Transaction, error) {
	if err := store.record("ListTransactions"); err != nil {
		return nil, err
	}
	var result []Transaction
	for index := len(store.transactions) - 1; index >= 0 && len(result) < limit; index-- {
		if store.transactions[index].UserID == userID {
			result = append(result, store.transactions[index])
		}
	}
	return result, nil
}

func (store *stubStore) UpsertUser(ctx context.Context, identity Identity, at time.Time) error {
	if err := store.record("UpsertUser"); err != nil {
		return err
	}
	profile, ok := store.users[identity.UserID]
	if !ok {
		profile = UserProfile{UserID: identity.UserID, Plan: FreePlanMeta(), CreatedAt: at}
	}
	profile.Email = identity.Email
	profile.Name = identity.DisplayName
	store.users[identity.UserID] = profile
	return nil
}

func (store *stubStore) GetPlanMeta(ctx context.Context, userID UserID) (PlanMeta, error) {
	if err := store.record("GetPlanMeta"); err != nil {
		return PlanMeta{}, err
	}
	profile, ok := store.users[userID]
	if !ok {
		return PlanMeta{}, ErrUnknownUser
	}
	return profile.Plan, nil
}

func (store *stubStore) LockPlanMeta(ctx context.Context, userID UserID) (PlanMeta, error) {
	if err := store.record("LockPlanMeta"); err != nil {
		return PlanMeta{}, err
	}
	profile, ok := store.users[userID]
	if !ok {
		return PlanMeta{}, ErrUnknownUser
	}
	return profile.Plan, nil
}

func (store *stubStore) UpdatePlanMeta(ctx context.Context, userID UserID, meta PlanMeta) error {
	if err := store.record("UpdatePlanMeta"); err != nil {
		return err
	}
	profile, ok := store.users[userID]
	if !ok {
		return ErrUnknownUser
	}
	profile.Plan = meta
	store.users[userID] = profile
	return nil
}

func (store *stubStore) ListUserProfiles(ctx context.Context, userIDs []UserID) ([]UserProfile, error) {
	if err := store.record("ListUserProfiles"); err != nil {
		return nil, err
	}
	var result []UserProfile
	for _, userID := range userIDs {
		if profile, ok := store.users[userID]; ok {
			result = append(result, profile)
		}
	}
	return result, nil
}

func (store *stubStore) ListRecentUsers(ctx context.Context, limit int) ([]UserProfile, error) {
	if err := store.record("ListRecentUsers"); err != nil {
		return nil, err
	}
	result := make([]UserProfile, 0, len(store.users))
	for _, profile := range store.users {
		result = append(result, profile)
	}
	sort.Slice(result, func(left, right int) bool {
		return result[left].CreatedAt.After(result[right].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (store *stubStore) CountUsers(ctx context.Context) (UserCounts, error) {
	if err := store.record("CountUsers"); err != nil {
		return UserCounts{}, err
	}
	counts := UserCounts{Total: int64(len(store.users))}
	for _, profile := range store.users {
		if profile.Plan.Tier == PlanTierPro {
			counts.Pro++
		}
	}
	return counts, nil
}

func (store *stubStore) ListProUsersDue(ctx context.Context, at time.Time, limit int) ([]UserID, error) {
	if err := store.record("ListProUsersDue"); err != nil {
		return nil, err
	}
	var result []UserID
	for userID, profile := range store.users {
		if needsReconcile(profile.Plan, at) && len(result) < limit {
			result = append(result, userID)
		}
	}
	return result, nil
}

func (store *stubStore) ListRestaurantsByOwners(ctx context.Context, ownerIDs []UserID) ([]Restaurant, error) {
	if err := store.record("ListRestaurantsByOwners"); err != nil {
		return nil, err
	}
	owners := make(map[UserID]struct{}, len(ownerIDs))
	for _, ownerID := range ownerIDs {
		owners[ownerID] = struct{}{}
	}
	var result []Restaurant
	for _, restaurant := range store.restaurants {
		if _, ok := owners[restaurant.OwnerID]; ok {
			result = append(result, restaurant)
		}
	}
	sort.SliceStable(result, func(left, right int) bool {
		return result[left].CreatedAt.Before(result[right].CreatedAt)
	})
	return result, nil
}

func (store *stubStore) GetRestaurantBySlug(ctx context.Context, slug string) (Restaurant, error) {
	if err := store.record("GetRestaurantBySlug"); err != nil {
		return Restaurant{}, err
	}
	for _, restaurant := range store.restaurants {
		if restaurant.Slug == slug {
			return restaurant, nil
		}
	}
	return Restaurant{}, ErrUnknownRestaurant
}

func (store *stubStore) SetRestaurantsPlanTier(ctx context.Context, ownerID UserID, tier PlanTier) error {
	if err := store.record("SetRestaurantsPlanTier"); err != nil {
		return err
	}
	for index := range store.restaurants {
		if store.restaurants[index].OwnerID == ownerID {
			store.restaurants[index].PlanTier = tier
		}
	}
	return nil
}

func (store *stubStore) UpsertSubscription(ctx context.Context, subscription Subscription) error {
	if err := store.record("UpsertSubscription"); err != nil {
		return err
	}
	store.subscriptions[subscription.RestaurantID] = subscription
	return nil
}

func (store *stubStore) SetSubscriptionsPlan(ctx context.Context, userID UserID, tier PlanTier, status PlanStatus) error {
	if err := store.record("SetSubscriptionsPlan"); err != nil {
		return err
	}
	for key, subscription := range store.subscriptions {
		if subscription.UserID == userID {
			subscription.PlanTier = tier
			subscription.Status = status
			store.subscriptions[key] = subscription
		}
	}
	return nil
}

func (store *stubStore) InsertRequest(ctx context.Context, request UpgradeRequest) error {
	if err := store.record("InsertRequest"); err != nil {
		return err
	}
	for _, existing := range store.requests {
		if existing.UserID == request.UserID && existing.Status == RequestStatusPending {
			return ErrDuplicatePendingRequest
		}
	}
	store.requests = append(store.requests, request)
	return nil
}

func (store *stubStore) GetRequest(ctx context.Context, requestID RequestID) (UpgradeRequest, error) {
	if err := store.record("GetRequest"); err != nil {
		return UpgradeRequest{}, err
	}
	for _, request := range store.requests {
		if request.ID == requestID {
			return request, nil
		}
	}
	return UpgradeRequest{}, ErrUnknownRequest
}

func (store *stubStore) LatestRequest(ctx context.Context, userID UserID) (UpgradeRequest, error) {
	if err := store.record("LatestRequest"); err != nil {
		return UpgradeRequest{}, err
	}
	for index := len(store.requests) - 1; index >= 0; index-- {
		if store.requests[index].UserID == userID {
			return store.requests[index], nil
		}
	}
	return UpgradeRequest{}, ErrUnknownRequest
}

func (store *stubStore) ListRequests(ctx context.Context, limit int) ([]UpgradeRequest, error) {
	if err := store.record("ListRequests"); err != nil {
		return nil, err
	}
	var result []UpgradeRequest
	for index := len(store.requests) - 1; index >= 0 && len(result) < limit; index-- {
		result = append(result, store.requests[index])
	}
	return result, nil
}

func (store *stubStore) TransitionRequest(ctx context.Context, transition RequestTransition) error {
	if err := store.record("TransitionRequest"); err != nil {
		return err
	}
	for index := range store.requests {
		if store.requests[index].ID != transition.ID {
			continue
		}
		if store.requests[index].Status != transition.From {
			return ErrRequestProcessed
		}
		resolvedAt := transition.ResolvedAt
		store.requests[index].Status = transition.To
		store.requests[index].StatusMessage = transition.Message
		store.requests[index].ResolvedAt = &resolvedAt
		return nil
	}
	return ErrRequestProcessed
}

type testClock struct {
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (clock *testClock) Now() time.Time {
	return clock.current
}

func (clock *testClock) Advance(duration time.Duration) {
	clock.current = clock.current.Add(duration)
}

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func mustNewService(test *testing.T, store Store, clock *testClock, options ...ServiceOption) *Service {
	test.Helper()
	sequence := 0
	options = append([]ServiceOption{WithIDGenerator(func() string {
		sequence++
		return "req-" + strconv.Itoa(sequence)
	})}, options...)
	service, err := NewService(store, clock.Now, DefaultPlanConfig(), options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustRequestID(test *testing.T, raw string) RequestID {
	test.Helper()
	requestID, err := NewRequestID(raw)
	if err != nil {
		test.Fatalf("request id: %v", err)
	}
	return requestID
}

func mustPositiveAmount(test *testing.T, raw int64) PositiveAmountCents {
	test.Helper()
	amount, err := NewPositiveAmountCents(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return amount
}

func proUntil(expiresAt time.Time) PlanMeta {
	return PlanMeta{Tier: PlanTierPro, Status: PlanStatusActive, ProExpiresAt: &expiresAt}
}

const day = hoursPerDay * time.Hour
