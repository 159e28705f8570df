package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/menuwallet/pkg/wallet"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintPendingRequest = "uniq_upgrade_requests_pending_user"
	defaultMetadataJSON      = "{}"
	pgUniqueViolationCode    = "23505"
	sqliteConstraintUnique   = 2067
	errorOperationStore      = "store"
	errorSubjectWallet       = "wallet"
	errorSubjectTransaction  = "transaction"
	errorSubjectUser         = "user"
	errorSubjectRestaurant   = "restaurant"
	errorSubjectSubscription = "subscription"
	errorSubjectRequest      = "request"
	errorCodeCount           = "count"
	errorCodeCredit          = "credit"
	errorCodeDebit           = "debit"
	errorCodeDuplicate       = "duplicate"
	errorCodeGet             = "get"
	errorCodeInsert          = "insert"
	errorCodeInvalid         = "invalid"
	errorCodeList            = "list"
	errorCodeLock            = "lock"
	errorCodeUpdate          = "update"
	errorCodeUpdateStatus    = "update_status"
	errorCodeUpsert          = "upsert"
)

// Store implements wallet.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetWallet(ctx context.Context, userID wallet.UserID) (wallet.Wallet, error) {
	var model Wallet
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, wallet.ErrUnknownWallet)
	}
	if err != nil {
		return wallet.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	return wallet.Wallet{
		UserID:       userID,
		BalanceCents: wallet.AmountCents(model.BalanceCents),
		UpdatedAt:    model.UpdatedAt,
	}, nil
}

// IncrementBalance adds amount in a single upsert so concurrent credits never overwrite each other.
func (store *Store) IncrementBalance(ctx context.Context, userID wallet.UserID, amount wallet.PositiveAmountCents, at time.Time) (wallet.AmountCents, error) {
	model := Wallet{UserID: userID.String(), BalanceCents: amount.Int64(), UpdatedAt: at.UTC()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"balance_cents": gorm.Expr("wallets.balance_cents + excluded.balance_cents"),
				"updated_at":    gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(&model).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectWallet, errorCodeCredit, err)
	}
	return store.readBalance(ctx, userID, errorCodeCredit)
}

// DecrementBalance subtracts amount only when the balance covers it.
func (store *Store) DecrementBalance(ctx context.Context, userID wallet.UserID, amount wallet.PositiveAmountCents, at time.Time) (wallet.AmountCents, error) {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("user_id = ? AND balance_cents >= ?", userID.String(), amount.Int64()).
		Updates(map[string]interface{}{
			"balance_cents": gorm.Expr("balance_cents - ?", amount.Int64()),
			"updated_at":    at.UTC(),
		})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectWallet, errorCodeDebit, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, wrapStoreError(errorSubjectWallet, errorCodeDebit, wallet.ErrInsufficientBalance)
	}
	return store.readBalance(ctx, userID, errorCodeDebit)
}

func (store *Store) InsertTransaction(ctx context.Context, transaction wallet.TransactionInput) error {
	createdAt := transaction.CreatedAt.UTC()
	if transaction.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := WalletTransaction{
		UserID:      transaction.UserID.String(),
		AmountCents: transaction.AmountCents.Int64(),
		Type:        transaction.Type.String(),
		Reference:   transaction.Reference,
		Metadata:    datatypesJSON(transaction.Metadata.String()),
		CreatedAt:   createdAt,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, userID wallet.UserID, limit int) ([]wallet.Transaction, error) {
	var rows []WalletTransaction
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	transactions := make([]wallet.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

// UpsertUser creates the user as free on first contact; later calls only refresh email and name.
func (store *Store) UpsertUser(ctx context.Context, identity wallet.Identity, at time.Time) error {
	model := User{
		ID:         identity.UserID.String(),
		Email:      identity.Email,
		Name:       identity.DisplayName,
		PlanTier:   wallet.PlanTierFree.String(),
		PlanStatus: wallet.PlanStatusInactive.String(),
		CreatedAt:  at.UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "name"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectUser, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) GetPlanMeta(ctx context.Context, userID wallet.UserID) (wallet.PlanMeta, error) {
	return store.planMeta(store.db.WithContext(ctx), userID, errorCodeGet)
}

// LockPlanMeta reads plan columns with SELECT ... FOR UPDATE where the dialect supports it.
func (store *Store) LockPlanMeta(ctx context.Context, userID wallet.UserID) (wallet.PlanMeta, error) {
	return store.planMeta(store.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID, errorCodeLock)
}

func (store *Store) UpdatePlanMeta(ctx context.Context, userID wallet.UserID, meta wallet.PlanMeta) error {
	var expiresAt *time.Time
	if meta.ProExpiresAt != nil {
		value := meta.ProExpiresAt.UTC()
		expiresAt = &value
	}
	result := store.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID.String()).
		Updates(map[string]interface{}{
			"plan_tier":      meta.Tier.String(),
			"plan_status":    meta.Status.String(),
			"pro_expires_at": expiresAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, wallet.ErrUnknownUser)
	}
	return nil
}

func (store *Store) ListUserProfiles(ctx context.Context, userIDs []wallet.UserID) ([]wallet.UserProfile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var rows []User
	if err := store.db.WithContext(ctx).Where("id IN ?", userIDStrings(userIDs)).Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
	}
	return mapUsers(rows)
}

func (store *Store) ListRecentUsers(ctx context.Context, limit int) ([]wallet.UserProfile, error) {
	var rows []User
	if err := store.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
	}
	return mapUsers(rows)
}

func (store *Store) CountUsers(ctx context.Context) (wallet.UserCounts, error) {
	var counts wallet.UserCounts
	if err := store.db.WithContext(ctx).Model(&User{}).Count(&counts.Total).Error; err != nil {
		return wallet.UserCounts{}, wrapStoreError(errorSubjectUser, errorCodeCount, err)
	}
	err := store.db.WithContext(ctx).
		Model(&User{}).
		Where("plan_tier = ?", wallet.PlanTierPro.String()).
		Count(&counts.Pro).Error
	if err != nil {
		return wallet.UserCounts{}, wrapStoreError(errorSubjectUser, errorCodeCount, err)
	}
	return counts, nil
}

// ListProUsersDue returns Pro users whose expiry is missing or not after at.
func (store *Store) ListProUsersDue(ctx context.Context, at time.Time, limit int) ([]wallet.UserID, error) {
	var ids []string
	err := store.db.WithContext(ctx).
		Model(&User{}).
		Where("plan_tier = ? AND (pro_expires_at IS NULL OR pro_expires_at <= ?)", wallet.PlanTierPro.String(), at.UTC()).
		Order("pro_expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
	}
	return parseUserIDs(ids)
}

// ListRestaurantsByOwners returns restaurants oldest first.
func (store *Store) ListRestaurantsByOwners(ctx context.Context, ownerIDs []wallet.UserID) ([]wallet.Restaurant, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	var rows []Restaurant
	err := store.db.WithContext(ctx).
		Where("owner_id IN ?", userIDStrings(ownerIDs)).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectRestaurant, errorCodeList, err)
	}
	restaurants := make([]wallet.Restaurant, 0, len(rows))
	for _, row := range rows {
		restaurant, err := mapRestaurant(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectRestaurant, errorCodeInvalid, err)
		}
		restaurants = append(restaurants, restaurant)
	}
	return restaurants, nil
}

func (store *Store) GetRestaurantBySlug(ctx context.Context, slug string) (wallet.Restaurant, error) {
	var row Restaurant
	err := store.db.WithContext(ctx).Where("slug = ?", slug).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Restaurant{}, wrapStoreError(errorSubjectRestaurant, errorCodeGet, wallet.ErrUnknownRestaurant)
	}
	if err != nil {
		return wallet.Restaurant{}, wrapStoreError(errorSubjectRestaurant, errorCodeGet, err)
	}
	restaurant, err := mapRestaurant(row)
	if err != nil {
		return wallet.Restaurant{}, wrapStoreError(errorSubjectRestaurant, errorCodeInvalid, err)
	}
	return restaurant, nil
}

func (store *Store) SetRestaurantsPlanTier(ctx context.Context, ownerID wallet.UserID, tier wallet.PlanTier) error {
	err := store.db.WithContext(ctx).
		Model(&Restaurant{}).
		Where("owner_id = ?", ownerID.String()).
		Update("plan_tier", tier.String()).Error
	if err != nil {
		return wrapStoreError(errorSubjectRestaurant, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) UpsertSubscription(ctx context.Context, subscription wallet.Subscription) error {
	model := Subscription{
		UserID:       subscription.UserID.String(),
		RestaurantID: subscription.RestaurantID,
		PlanTier:     subscription.PlanTier.String(),
		Status:       subscription.Status.String(),
		UpdatedAt:    time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "restaurant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "plan_tier", "status", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectSubscription, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) SetSubscriptionsPlan(ctx context.Context, userID wallet.UserID, tier wallet.PlanTier, status wallet.PlanStatus) error {
	err := store.db.WithContext(ctx).
		Model(&Subscription{}).
		Where("user_id = ?", userID.String()).
		Updates(map[string]interface{}{
			"plan_tier":  tier.String(),
			"status":     status.String(),
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectSubscription, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) InsertRequest(ctx context.Context, request wallet.UpgradeRequest) error {
	model := UpgradeRequest{
		ID:          request.ID.String(),
		UserID:      request.UserID.String(),
		DisplayName: request.DisplayName,
		AmountCents: request.AmountCents.Int64(),
		Status:      request.Status.String(),
		CreatedAt:   request.CreatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isPendingRequestConflict(err) {
		return wrapStoreError(errorSubjectRequest, errorCodeDuplicate, wallet.ErrDuplicatePendingRequest)
	}
	if err != nil {
		return wrapStoreError(errorSubjectRequest, errorCodeInsert, err)
	}
	return nil
}

// GetRequest locks the request row so concurrent resolutions serialize.
func (store *Store) GetRequest(ctx context.Context, requestID wallet.RequestID) (wallet.UpgradeRequest, error) {
	var row UpgradeRequest
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", requestID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.UpgradeRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, wallet.ErrUnknownRequest)
	}
	if err != nil {
		return wallet.UpgradeRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, err)
	}
	request, err := mapRequest(row)
	if err != nil {
		return wallet.UpgradeRequest{}, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
	}
	return request, nil
}

func (store *Store) LatestRequest(ctx context.Context, userID wallet.UserID) (wallet.UpgradeRequest, error) {
	var row UpgradeRequest
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.UpgradeRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, wallet.ErrUnknownRequest)
	}
	if err != nil {
		return wallet.UpgradeRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, err)
	}
	request, err := mapRequest(row)
	if err != nil {
		return wallet.UpgradeRequest{}, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
	}
	return request, nil
}

func (store *Store) ListRequests(ctx context.Context, limit int) ([]wallet.UpgradeRequest, error) {
	var rows []UpgradeRequest
	if err := store.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectRequest, errorCodeList, err)
	}
	requests := make([]wallet.UpgradeRequest, 0, len(rows))
	for _, row := range rows {
		request, err := mapRequest(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
		}
		requests = append(requests, request)
	}
	return requests, nil
}

// TransitionRequest updates the status only while it still equals transition.From.
func (store *Store) TransitionRequest(ctx context.Context, transition wallet.RequestTransition) error {
	resolvedAt := transition.ResolvedAt.UTC()
	result := store.db.WithContext(ctx).
		Model(&UpgradeRequest{}).
		Where("id = ? AND status = ?", transition.ID.String(), transition.From.String()).
		Updates(map[string]interface{}{
			"status":         transition.To.String(),
			"status_message": transition.Message,
			"resolved_at":    resolvedAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectRequest, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectRequest, errorCodeUpdateStatus, wallet.ErrRequestProcessed)
	}
	return nil
}

func (store *Store) readBalance(ctx context.Context, userID wallet.UserID, code string) (wallet.AmountCents, error) {
	var model Wallet
	if err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error; err != nil {
		return 0, wrapStoreError(errorSubjectWallet, code, err)
	}
	return wallet.AmountCents(model.BalanceCents), nil
}

func (store *Store) planMeta(db *gorm.DB, userID wallet.UserID, code string) (wallet.PlanMeta, error) {
	var row User
	err := db.Where("id = ?", userID.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.PlanMeta{}, wrapStoreError(errorSubjectUser, code, wallet.ErrUnknownUser)
	}
	if err != nil {
		return wallet.PlanMeta{}, wrapStoreError(errorSubjectUser, code, err)
	}
	meta, err := mapPlanMeta(row)
	if err != nil {
		return wallet.PlanMeta{}, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
	}
	return meta, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return wallet.WrapError(errorOperationStore, subject, code, err)
}

func mapTransaction(row WalletTransaction) (wallet.Transaction, error) {
	userID, err := wallet.NewUserID(row.UserID)
	if err != nil {
		return wallet.Transaction{}, err
	}
	transactionType, err := wallet.ParseTransactionType(row.Type)
	if err != nil {
		return wallet.Transaction{}, err
	}
	metadata, err := wallet.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return wallet.Transaction{}, err
	}
	return wallet.Transaction{
		ID:          row.ID,
		UserID:      userID,
		AmountCents: wallet.AmountCents(row.AmountCents),
		Type:        transactionType,
		Reference:   row.Reference,
		Metadata:    metadata,
		CreatedAt:   row.CreatedAt.UTC(),
	}, nil
}

func mapPlanMeta(row User) (wallet.PlanMeta, error) {
	tier, err := wallet.ParsePlanTier(row.PlanTier)
	if err != nil {
		return wallet.PlanMeta{}, err
	}
	status, err := wallet.ParsePlanStatus(row.PlanStatus)
	if err != nil {
		return wallet.PlanMeta{}, err
	}
	meta := wallet.PlanMeta{Tier: tier, Status: status}
	if row.ProExpiresAt != nil {
		expiresAt := row.ProExpiresAt.UTC()
		meta.ProExpiresAt = &expiresAt
	}
	return meta, nil
}

func mapUsers(rows []User) ([]wallet.UserProfile, error) {
	profiles := make([]wallet.UserProfile, 0, len(rows))
	for _, row := range rows {
		userID, err := wallet.NewUserID(row.ID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
		}
		meta, err := mapPlanMeta(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
		}
		profiles = append(profiles, wallet.UserProfile{
			UserID:    userID,
			Email:     row.Email,
			Name:      row.Name,
			Plan:      meta,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return profiles, nil
}

func mapRestaurant(row Restaurant) (wallet.Restaurant, error) {
	ownerID, err := wallet.NewUserID(row.OwnerID)
	if err != nil {
		return wallet.Restaurant{}, err
	}
	tier, err := wallet.ParsePlanTier(row.PlanTier)
	if err != nil {
		return wallet.Restaurant{}, err
	}
	return wallet.Restaurant{
		ID:        row.ID,
		OwnerID:   ownerID,
		Name:      row.Name,
		Slug:      row.Slug,
		PlanTier:  tier,
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}

func mapRequest(row UpgradeRequest) (wallet.UpgradeRequest, error) {
	requestID, err := wallet.NewRequestID(row.ID)
	if err != nil {
		return wallet.UpgradeRequest{}, err
	}
	userID, err := wallet.NewUserID(row.UserID)
	if err != nil {
		return wallet.UpgradeRequest{}, err
	}
	status, err := wallet.ParseRequestStatus(row.Status)
	if err != nil {
		return wallet.UpgradeRequest{}, err
	}
	request := wallet.UpgradeRequest{
		ID:          requestID,
		UserID:      userID,
		DisplayName: row.DisplayName,
		AmountCents: wallet.AmountCents(row.AmountCents),
		Status:      status,
		CreatedAt:   row.CreatedAt.UTC(),
	}
	if row.StatusMessage != nil {
		request.StatusMessage = *row.StatusMessage
	}
	if row.ResolvedAt != nil {
		resolvedAt := row.ResolvedAt.UTC()
		request.ResolvedAt = &resolvedAt
	}
	return request, nil
}

func userIDStrings(userIDs []wallet.UserID) []string {
	values := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		values = append(values, userID.String())
	}
	return values
}

func parseUserIDs(values []string) ([]wallet.UserID, error) {
	userIDs := make([]wallet.UserID, 0, len(values))
	for _, value := range values {
		userID, err := wallet.NewUserID(value)
		if err != nil {
			return nil, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isPendingRequestConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintPendingRequest
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqliteConstraintUnique
	}
	return false
}
