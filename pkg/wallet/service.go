package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlanConfig holds the Pro plan price and period.
type PlanConfig struct {
	PriceCents   PositiveAmountCents
	DurationDays int
}

// DefaultPlanConfig is 10.00 for 30 days.
func DefaultPlanConfig() PlanConfig {
	return PlanConfig{PriceCents: 1000, DurationDays: 30}
}

// Validate checks that the plan can be sold.
func (config PlanConfig) Validate() error {
	if config.PriceCents <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidPlanConfig)
	}
	if config.DurationDays <= 0 {
		return fmt.Errorf("%w: duration days must be positive", ErrInvalidPlanConfig)
	}
	return nil
}

// Service contains the wallet and plan lifecycle logic over a Store.
type Service struct {
	store  Store
	nowFn  func() time.Time
	plan   PlanConfig
	logger OperationLogger
	newID  func() string
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, plan PlanConfig, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceConfig, err)
	}
	service := &Service{store: store, nowFn: now, plan: plan, newID: uuid.NewString}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Plan returns the configured Pro plan.
func (service *Service) Plan() PlanConfig {
	return service.plan
}

// CreditWallet adds funds and records a credit_whish transaction.
func (service *Service) CreditWallet(ctx context.Context, userID UserID, amount PositiveAmountCents, reference string, metadata MetadataJSON) (Balance, error) {
	var balance Balance
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		credited, err := service.creditWithin(ctx, transactionStore, userID, amount, reference, metadata)
		if err != nil {
			return err
		}
		balance = credited
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: OperationCredit,
		UserID:    userID,
		Amount:    amount.ToAmountCents(),
		Reference: reference,
		Error:     operationError,
	})
	if operationError != nil {
		return Balance{}, operationError
	}
	return balance, nil
}

// WalletSummary returns the balance, zero when the user has never been credited.
func (service *Service) WalletSummary(ctx context.Context, userID UserID) (Balance, error) {
	wallet, err := service.store.GetWallet(ctx, userID)
	if errors.Is(err, ErrUnknownWallet) {
		return Balance{}, nil
	}
	if err != nil {
		return Balance{}, err
	}
	return Balance{BalanceCents: wallet.BalanceCents}, nil
}

// ListTransactions returns the newest transactions first.
func (service *Service) ListTransactions(ctx context.Context, userID UserID, limit int) ([]Transaction, error) {
	return service.store.ListTransactions(ctx, userID, clampLimit(limit, defaultTransactionsLimit))
}

func (service *Service) creditWithin(ctx context.Context, transactionStore Store, userID UserID, amount PositiveAmountCents, reference string, metadata MetadataJSON) (Balance, error) {
	now := service.nowFn()
	newBalance, err := transactionStore.IncrementBalance(ctx, userID, amount, now)
	if err != nil {
		return Balance{}, err
	}
	if err := transactionStore.InsertTransaction(ctx, TransactionInput{
		UserID:      userID,
		AmountCents: amount.ToAmountCents(),
		Type:        TransactionCreditWhish,
		Reference:   strings.TrimSpace(reference),
		Metadata:    metadata,
		CreatedAt:   now,
	}); err != nil {
		return Balance{}, err
	}
	return Balance{BalanceCents: newBalance}, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func clampLimit(limit int, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
