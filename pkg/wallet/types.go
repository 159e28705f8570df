package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const centsExponent = -2

// AmountCents is a signed integer currency amount in cents.
type AmountCents int64

// Int64 returns the raw cents value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Units formats the amount in whole currency units with two decimals.
func (amount AmountCents) Units() string {
	return decimal.New(int64(amount), centsExponent).StringFixed(2)
}

// PositiveAmountCents is a strictly positive amount in cents.
type PositiveAmountCents int64

// NewPositiveAmountCents validates that raw is greater than zero.
func NewPositiveAmountCents(raw int64) (PositiveAmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return PositiveAmountCents(raw), nil
}

var maxAmountCents = decimal.NewFromInt(math.MaxInt64)

// ParsePositiveUnits parses a decimal amount such as "10" or "9.99" into cents.
func ParsePositiveUnits(raw string) (PositiveAmountCents, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal", ErrInvalidAmount, raw)
	}
	cents := parsed.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has sub-cent precision", ErrInvalidAmount, raw)
	}
	if cents.GreaterThan(maxAmountCents) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, raw)
	}
	return NewPositiveAmountCents(cents.IntPart())
}

// Int64 returns the raw cents value.
func (amount PositiveAmountCents) Int64() int64 {
	return int64(amount)
}

// ToAmountCents widens to a signed amount.
func (amount PositiveAmountCents) ToAmountCents() AmountCents {
	return AmountCents(amount)
}

// Negated returns the signed debit for this amount.
func (amount PositiveAmountCents) Negated() AmountCents {
	return AmountCents(-int64(amount))
}

// UserID identifies an account owner as supplied by the identity provider.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// RequestID identifies an upgrade request.
type RequestID struct {
	value string
}

// NewRequestID validates and normalizes a request id.
func NewRequestID(raw string) (RequestID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RequestID{}, fmt.Errorf("%w: empty value", ErrInvalidRequestID)
	}
	return RequestID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id RequestID) String() string {
	return id.value
}

// MetadataJSON stores opaque key/value metadata attached to transactions.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// MetadataFromMap encodes string pairs as metadata.
func MetadataFromMap(values map[string]string) MetadataJSON {
	if len(values) == 0 {
		return MetadataJSON{value: "{}"}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return MetadataJSON{value: "{}"}
	}
	return MetadataJSON{value: string(encoded)}
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// TransactionType enumerates wallet transaction kinds.
type TransactionType string

const (
	TransactionCreditWhish  TransactionType = "credit_whish"
	TransactionDebitUpgrade TransactionType = "debit_upgrade"
)

// ParseTransactionType validates a stored transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(strings.TrimSpace(raw)) {
	case TransactionCreditWhish:
		return TransactionCreditWhish, nil
	case TransactionDebitUpgrade:
		return TransactionDebitUpgrade, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
}

// String returns the stored form.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// RequestStatus defines the upgrade request lifecycle.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// ParseRequestStatus validates a stored request status.
func ParseRequestStatus(raw string) (RequestStatus, error) {
	switch RequestStatus(strings.TrimSpace(raw)) {
	case RequestStatusPending:
		return RequestStatusPending, nil
	case RequestStatusApproved:
		return RequestStatusApproved, nil
	case RequestStatusRejected:
		return RequestStatusRejected, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRequestStatus, raw)
}

// String returns the stored form.
func (status RequestStatus) String() string {
	return string(status)
}

// IsTerminal reports whether no further transitions are allowed.
func (status RequestStatus) IsTerminal() bool {
	return status == RequestStatusApproved || status == RequestStatusRejected
}

// RequestAction is an admin decision on a pending request.
type RequestAction string

const (
	RequestActionApprove RequestAction = "approve"
	RequestActionReject  RequestAction = "reject"
)

// ParseRequestAction validates an admin decision.
func ParseRequestAction(raw string) (RequestAction, error) {
	switch RequestAction(strings.ToLower(strings.TrimSpace(raw))) {
	case RequestActionApprove:
		return RequestActionApprove, nil
	case RequestActionReject:
		return RequestActionReject, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRequestAction, raw)
}

// RequestMode tells reviewers whether a claim is a first upgrade or a renewal.
type RequestMode string

const (
	RequestModeUpgrade RequestMode = "upgrade"
	RequestModeExtend  RequestMode = "extend"
)

// PlanTier is the subscription tier of a user or restaurant.
type PlanTier string

const (
	PlanTierFree PlanTier = "free"
	PlanTierPro  PlanTier = "pro"
)

// ParsePlanTier validates a stored tier.
func ParsePlanTier(raw string) (PlanTier, error) {
	switch PlanTier(strings.TrimSpace(raw)) {
	case PlanTierFree:
		return PlanTierFree, nil
	case PlanTierPro:
		return PlanTierPro, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPlanTier, raw)
}

// String returns the stored form.
func (tier PlanTier) String() string {
	return string(tier)
}

// PlanStatus marks whether the current tier is paid through.
type PlanStatus string

const (
	PlanStatusActive   PlanStatus = "active"
	PlanStatusInactive PlanStatus = "inactive"
)

// ParsePlanStatus validates a stored plan status.
func ParsePlanStatus(raw string) (PlanStatus, error) {
	switch PlanStatus(strings.TrimSpace(raw)) {
	case PlanStatusActive:
		return PlanStatusActive, nil
	case PlanStatusInactive:
		return PlanStatusInactive, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPlanStatus, raw)
}

// String returns the stored form.
func (status PlanStatus) String() string {
	return string(status)
}

// SyncOutcome reports what EnsurePlanStatus did.
type SyncOutcome string

const (
	SyncOutcomeUnchanged  SyncOutcome = "unchanged"
	SyncOutcomeRenewed    SyncOutcome = "renewed"
	SyncOutcomeRepaired   SyncOutcome = "repaired"
	SyncOutcomeDowngraded SyncOutcome = "downgraded"
)

// Balance is the wallet view returned to callers.
type Balance struct {
	BalanceCents AmountCents
}

// Wallet mirrors the stored wallet row.
type Wallet struct {
	UserID       UserID
	BalanceCents AmountCents
	UpdatedAt    time.Time
}

// TransactionInput is an append-only ledger line before it is stored.
type TransactionInput struct {
	UserID      UserID
	AmountCents AmountCents
	Type        TransactionType
	Reference   string
	Metadata    MetadataJSON
	CreatedAt   time.Time
}

// Transaction is a stored, immutable ledger line.
type Transaction struct {
	ID          string
	UserID      UserID
	AmountCents AmountCents
	Type        TransactionType
	Reference   string
	Metadata    MetadataJSON
	CreatedAt   time.Time
}

// UpgradeRequest is a manual payment claim.
type UpgradeRequest struct {
	ID            RequestID
	UserID        UserID
	DisplayName   string
	AmountCents   AmountCents
	Status        RequestStatus
	StatusMessage string
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}

// EnrichedRequest carries reviewer context next to a request.
type EnrichedRequest struct {
	UpgradeRequest
	UserEmail      *string
	RestaurantName *string
	Mode           RequestMode
}

// RequestTransition moves a request out of From; it fails when the stored status differs.
type RequestTransition struct {
	ID         RequestID
	From       RequestStatus
	To         RequestStatus
	Message    string
	ResolvedAt time.Time
}

// Resolution is the result of an admin decision.
type Resolution struct {
	Request        UpgradeRequest
	UpgradeApplied bool
}

// PlanMeta is the per-user subscription projection.
type PlanMeta struct {
	Tier         PlanTier
	Status       PlanStatus
	ProExpiresAt *time.Time
}

// FreePlanMeta is the state of a user without paid access.
func FreePlanMeta() PlanMeta {
	return PlanMeta{Tier: PlanTierFree, Status: PlanStatusInactive}
}

// IsExpired reports whether a pro expiry is at or before at.
func (meta PlanMeta) IsExpired(at time.Time) bool {
	return meta.ProExpiresAt != nil && !meta.ProExpiresAt.After(at)
}

// Identity is what the identity provider tells us about the caller.
type Identity struct {
	UserID      UserID
	Email       string
	DisplayName string
}

// UserProfile is a stored user with plan metadata.
type UserProfile struct {
	UserID    UserID
	Email     string
	Name      string
	Plan      PlanMeta
	CreatedAt time.Time
}

// UserCounts aggregates the admin overview.
type UserCounts struct {
	Total int64
	Pro   int64
}

// Overview is the admin dashboard payload.
type Overview struct {
	Counts UserCounts
	Users  []UserProfile
}

// Restaurant is the subset of restaurant data the plan manager needs.
type Restaurant struct {
	ID        string
	OwnerID   UserID
	Name      string
	Slug      string
	PlanTier  PlanTier
	CreatedAt time.Time
}

// Subscription is the per-restaurant plan row.
type Subscription struct {
	RestaurantID string
	UserID       UserID
	PlanTier     PlanTier
	Status       PlanStatus
}

// UpgradeOptions tune ApplyProUpgrade.
type UpgradeOptions struct {
	Reference       string
	DurationDays    int
	StartFromExpiry bool
	Metadata        MetadataJSON
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	GetWallet(ctx context.Context, userID UserID) (Wallet, error)
	IncrementBalance(ctx context.Context, userID UserID, amount PositiveAmountCents, at time.Time) (AmountCents, error)
	DecrementBalance(ctx context.Context, userID UserID, amount PositiveAmountCents, at time.Time) (AmountCents, error)
	InsertTransaction(ctx context.Context, transaction TransactionInput) error
	ListTransactions(ctx context.Context, userID UserID, limit int) ([]Transaction, error)

	UpsertUser(ctx context.Context, identity Identity, at time.Time) error
	GetPlanMeta(ctx context.Context, userID UserID) (PlanMeta, error)
	LockPlanMeta(ctx context.Context, userID UserID) (PlanMeta, error)
	UpdatePlanMeta(ctx context.Context, userID UserID, meta PlanMeta) error
	ListUserProfiles(ctx context.Context, userIDs []UserID) ([]UserProfile, error)
	ListRecentUsers(ctx context.Context, limit int) ([]UserProfile, error)
	CountUsers(ctx context.Context) (UserCounts, error)
	ListProUsersDue(ctx context.Context, at time.Time, limit int) ([]UserID, error)

	ListRestaurantsByOwners(ctx context.Context, ownerIDs []UserID) ([]Restaurant, error)
	GetRestaurantBySlug(ctx context.Context, slug string) (Restaurant, error)
	SetRestaurantsPlanTier(ctx context.Context, ownerID UserID, tier PlanTier) error
	UpsertSubscription(ctx context.Context, subscription Subscription) error
	SetSubscriptionsPlan(ctx context.Context, userID UserID, tier PlanTier, status PlanStatus) error

	InsertRequest(ctx context.Context, request UpgradeRequest) error
	GetRequest(ctx context.Context, requestID RequestID) (UpgradeRequest, error)
	LatestRequest(ctx context.Context, userID UserID) (UpgradeRequest, error)
	ListRequests(ctx context.Context, limit int) ([]UpgradeRequest, error)
	TransitionRequest(ctx context.Context, transition RequestTransition) error
}
