package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/menuwallet/pkg/wallet"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintPendingRequest = "uniq_upgrade_requests_pending_user"
	pgUniqueViolationCode    = "23505"
	errorOperationStore      = "store"
	errorSubjectWallet       = "wallet"
	errorSubjectTransaction  = "transaction"
	errorSubjectUser         = "user"
	errorSubjectRestaurant   = "restaurant"
	errorSubjectSubscription = "subscription"
	errorSubjectRequest      = "request"
	errorSubjectDatabase     = "database"
	errorCodeBegin           = "begin"
	errorCodeCommit          = "commit"
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

	sqlIncrementBalance = `
		insert into wallets(user_id, balance_cents, updated_at) values($1, $2, $3)
		on conflict (user_id) do update
		set balance_cents = wallets.balance_cents + excluded.balance_cents, updated_at = excluded.updated_at
		returning balance_cents
	`

	sqlDecrementBalance = `
		update wallets
		set balance_cents = balance_cents - $2, updated_at = $3
		where user_id = $1 and balance_cents >= $2
		returning balance_cents
	`

	sqlSelectWallet = `
		select balance_cents, updated_at from wallets where user_id = $1
	`

	sqlInsertTransaction = `
		insert into wallet_transactions(id, user_id, amount_cents, type, reference, metadata, created_at)
		values($1, $2, $3, $4, $5, coalesce(nullif($6,''),'{}')::jsonb, $7)
	`

	sqlListTransactions = `
		select id::text, user_id, amount_cents, type, reference, coalesce(metadata::text,'{}'), created_at
		from wallet_transactions
		where user_id = $1
		order by created_at desc, id desc
		limit $2
	`

	sqlUpsertUser = `
		insert into users(id, email, name, plan_tier, plan_status, created_at)
		values($1, $2, $3, 'free', 'inactive', $4)
		on conflict (id) do update set email = excluded.email, name = excluded.name
	`

	sqlSelectPlanMeta = `
		select plan_tier, plan_status, pro_expires_at from users where id = $1
	`

	sqlLockPlanMeta = sqlSelectPlanMeta + ` for update`

	sqlUpdatePlanMeta = `
		update users set plan_tier = $2, plan_status = $3, pro_expires_at = $4 where id = $1
	`

	sqlSelectUsersByID = `
		select id, email, name, plan_tier, plan_status, pro_expires_at, created_at
		from users where id = any($1)
	`

	sqlSelectRecentUsers = `
		select id, email, name, plan_tier, plan_status, pro_expires_at, created_at
		from users order by created_at desc limit $1
	`

	sqlCountUsers = `
		select count(*), count(*) filter (where plan_tier = 'pro') from users
	`

	sqlSelectProUsersDue = `
		select id from users
		where plan_tier = 'pro' and (pro_expires_at is null or pro_expires_at <= $1)
		order by pro_expires_at asc nulls first
		limit $2
	`

	sqlSelectRestaurantsByOwners = `
		select id::text, owner_id, name, slug, plan_tier, created_at
		from restaurants where owner_id = any($1)
		order by created_at asc
	`

	sqlSelectRestaurantBySlug = `
		select id::text, owner_id, name, slug, plan_tier, created_at
		from restaurants where slug = $1
	`

	sqlUpdateRestaurantsPlanTier = `
		update restaurants set plan_tier = $2 where owner_id = $1
	`

	sqlUpsertSubscription = `
		insert into subscriptions(id, user_id, restaurant_id, plan_tier, status, updated_at)
		values($1, $2, $3, $4, $5, now())
		on conflict (restaurant_id) do update
		set user_id = excluded.user_id, plan_tier = excluded.plan_tier, status = excluded.status, updated_at = now()
	`

	sqlUpdateSubscriptionsPlan = `
		update subscriptions set plan_tier = $2, status = $3, updated_at = now() where user_id = $1
	`

	sqlInsertRequest = `
		insert into upgrade_requests(id, user_id, display_name, amount_cents, status, created_at)
		values($1, $2, $3, $4, $5, $6)
	`

	sqlRequestColumns = `
		select id, user_id, display_name, amount_cents, status, coalesce(status_message,''), created_at, resolved_at
		from upgrade_requests
	`

	sqlSelectRequestForUpdate = sqlRequestColumns + ` where id = $1 for update`

	sqlSelectLatestRequest = sqlRequestColumns + ` where user_id = $1 order by created_at desc limit 1`

	sqlListRequests = sqlRequestColumns + ` order by created_at desc limit $1`

	sqlTransitionRequest = `
		update upgrade_requests
		set status = $3, status_message = $4, resolved_at = $5
		where id = $1 and status = $2
	`
)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type transactor interface {
	querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Store implements wallet.Store using a pgx connection pool or an open transaction.
type Store struct {
	pool transactor
	db   querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return newStore(pool)
}

func newStore(pool transactor) *Store {
	return &Store{pool: pool, db: pool}
}

// WithTx runs fn in a transaction; a Store already bound to a transaction reuses it.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	if store.pool == nil {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectDatabase, errorCodeBegin, err)
	}
	if err := fn(ctx, &Store{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectDatabase, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) GetWallet(ctx context.Context, userID wallet.UserID) (wallet.Wallet, error) {
	var balance int64
	var updatedAt time.Time
	err := store.db.QueryRow(ctx, sqlSelectWallet, userID.String()).Scan(&balance, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, wallet.ErrUnknownWallet)
	}
	if err != nil {
		return wallet.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	return wallet.Wallet{UserID: userID, BalanceCents: wallet.AmountCents(balance), UpdatedAt: updatedAt.UTC()}, nil
}

func (store *Store) IncrementBalance(ctx context.Context, userID wallet.UserID, amount wallet.PositiveAmountCents, at time.Time) (wallet.AmountCents, error) {
	var balance int64
	if err := store.db.QueryRow(ctx, sqlIncrementBalance, userID.String(), amount.Int64(), at.UTC()).Scan(&balance); err != nil {
		return 0, wrapStoreError(errorSubjectWallet, errorCodeCredit, err)
	}
	return wallet.AmountCents(balance), nil
}

func (store *Store) DecrementBalance(ctx context.Context, userID wallet.UserID, amount wallet.PositiveAmountCents, at time.Time) (wallet.AmountCents, error) {
	var balance int64
	err := store.db.QueryRow(ctx, sqlDecrementBalance, userID.String(), amount.Int64(), at.UTC()).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, wrapStoreError(errorSubjectWallet, errorCodeDebit, wallet.ErrInsufficientBalance)
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectWallet, errorCodeDebit, err)
	}
	return wallet.AmountCents(balance), nil
}

func (store *Store) InsertTransaction(ctx context.Context, transaction wallet.TransactionInput) error {
	createdAt := transaction.CreatedAt.UTC()
	if transaction.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := store.db.Exec(ctx, sqlInsertTransaction,
		uuid.NewString(),
		transaction.UserID.String(),
		transaction.AmountCents.Int64(),
		transaction.Type.String(),
		transaction.Reference,
		transaction.Metadata.String(),
		createdAt,
	)
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, userID wallet.UserID, limit int) ([]wallet.Transaction, error) {
	rows, err := store.db.Query(ctx, sqlListTransactions, userID.String(), limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	defer rows.Close()

	var transactions []wallet.Transaction
	for rows.Next() {
		var (
			id          string
			rawUserID   string
			amountCents int64
			rawType     string
			reference   string
			rawMetadata string
			createdAt   time.Time
		)
		if err := rows.Scan(&id, &rawUserID, &amountCents, &rawType, &reference, &rawMetadata, &createdAt); err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
		}
		transactionUserID, err := wallet.NewUserID(rawUserID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactionType, err := wallet.ParseTransactionType(rawType)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		metadata, err := wallet.NewMetadataJSON(rawMetadata)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, wallet.Transaction{
			ID:          id,
			UserID:      transactionUserID,
			AmountCents: wallet.AmountCents(amountCents),
			Type:        transactionType,
			Reference:   reference,
			Metadata:    metadata,
			CreatedAt:   createdAt.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	return transactions, nil
}

func (store *Store) UpsertUser(ctx context.Context, identity wallet.Identity, at time.Time) error {
	if _, err := store.db.Exec(ctx, sqlUpsertUser, identity.UserID.String(), identity.Email, identity.DisplayName, at.UTC()); err != nil {
		return wrapStoreError(errorSubjectUser, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) GetPlanMeta(ctx context.Context, userID wallet.UserID) (wallet.PlanMeta, error) {
	return store.planMeta(ctx, sqlSelectPlanMeta, userID, errorCodeGet)
}

func (store *Store) LockPlanMeta(ctx context.Context, userID wallet.UserID) (wallet.PlanMeta, error) {
	return store.planMeta(ctx, sqlLockPlanMeta, userID, errorCodeLock)
}

func (store *Store) UpdatePlanMeta(ctx context.Context, userID wallet.UserID, meta wallet.PlanMeta) error {
	var expiresAt *time.Time
	if meta.ProExpiresAt != nil {
		value := meta.ProExpiresAt.UTC()
		expiresAt = &value
	}
	tag, err := store.db.Exec(ctx, sqlUpdatePlanMeta, userID.String(), meta.Tier.String(), meta.Status.String(), expiresAt)
	if err != nil {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, wallet.ErrUnknownUser)
	}
	return nil
}

func (store *Store) ListUserProfiles(ctx context.Context, userIDs []wallet.UserID) ([]wallet.UserProfile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return store.queryUsers(ctx, sqlSelectUsersByID, userIDStrings(userIDs))
}

func (store *Store) ListRecentUsers(ctx context.Context, limit int) ([]wallet.UserProfile, error) {
	return store.queryUsers(ctx, sqlSelectRecentUsers, limit)
}

func (store *Store) CountUsers(ctx context.Context) (wallet.UserCounts, error) {
	var counts wallet.UserCounts
	if err := store.db.QueryRow(ctx, sqlCountUsers).Scan(&counts.Total, &counts.Pro); err != nil {
		return wallet.UserCounts{}, wrapStoreError(errorSubjectUser, errorCodeCount, err)
	}
	return counts, nil
}

func (store *Store) ListProUsersDue(ctx context.Context, at time.Time, limit int) ([]wallet.UserID, error) {
	rows, err := store.db.Query(ctx, sqlSelectProUsersDue, at.UTC(), limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
	}
	defer rows.Close()

	var userIDs []wallet.UserID
	for rows.Next() {
		var rawUserID string
		if err := rows.Scan(&rawUserID); err != nil {
			return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
		}
		userID, err := wallet.NewUserID(rawUserID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
		}
		userIDs = append(userIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
	}
	return userIDs, nil
}

func (store *Store) ListRestaurantsByOwners(ctx context.Context, ownerIDs []wallet.UserID) ([]wallet.Restaurant, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	rows, err := store.db.Query(ctx, sqlSelectRestaurantsByOwners, userIDStrings(ownerIDs))
	if err != nil {
		return nil, wrapStoreError(errorSubjectRestaurant, errorCodeList, err)
	}
	defer rows.Close()

	var restaurants []wallet.Restaurant
	for rows.Next() {
		restaurant, err := scanRestaurant(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectRestaurant, errorCodeInvalid, err)
		}
		restaurants = append(restaurants, restaurant)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectRestaurant, errorCodeList, err)
	}
	return restaurants, nil
}

func (store *Store) GetRestaurantBySlug(ctx context.Context, slug string) (wallet.Restaurant, error) {
	restaurant, err := scanRestaurant(store.db.QueryRow(ctx, sqlSelectRestaurantBySlug, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.Restaurant{}, wrapStoreError(errorSubjectRestaurant, errorCodeGet, wallet.ErrUnknownRestaurant)
	}
	if err != nil {
		return wallet.Restaurant{}, wrapStoreError(errorSubjectRestaurant, errorCodeGet, err)
	}
	return restaurant, nil
}

func (store *Store) SetRestaurantsPlanTier(ctx context.Context, ownerID wallet.UserID, tier wallet.PlanTier) error {
	if _, err := store.db.Exec(ctx, sqlUpdateRestaurantsPlanTier, ownerID.String(), tier.String()); err != nil {
		return wrapStoreError(errorSubjectRestaurant, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) UpsertSubscription(ctx context.Context, subscription wallet.Subscription) error {
	_, err := store.db.Exec(ctx, sqlUpsertSubscription,
		uuid.NewString(),
		subscription.UserID.String(),
		subscription.RestaurantID,
		subscription.PlanTier.String(),
		subscription.Status.String(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectSubscription, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) SetSubscriptionsPlan(ctx context.Context, userID wallet.UserID, tier wallet.PlanTier, status wallet.PlanStatus) error {
	if _, err := store.db.Exec(ctx, sqlUpdateSubscriptionsPlan, userID.String(), tier.String(), status.String()); err != nil {
		return wrapStoreError(errorSubjectSubscription, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) InsertRequest(ctx context.Context, request wallet.UpgradeRequest) error {
	_, err := store.db.Exec(ctx, sqlInsertRequest,
		request.ID.String(),
		request.UserID.String(),
		request.DisplayName,
		request.AmountCents.Int64(),
		request.Status.String(),
		request.CreatedAt.UTC(),
	)
	if isPendingRequestConflict(err) {
		return wrapStoreError(errorSubjectRequest, errorCodeDuplicate, wallet.ErrDuplicatePendingRequest)
	}
	if err != nil {
		return wrapStoreError(errorSubjectRequest, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetRequest(ctx context.Context, requestID wallet.RequestID) (wallet.UpgradeRequest, error) {
	return store.singleRequest(ctx, sqlSelectRequestForUpdate, requestID.String())
}

func (store *Store) LatestRequest(ctx context.Context, userID wallet.UserID) (wallet.UpgradeRequest, error) {
	return store.singleRequest(ctx, sqlSelectLatestRequest, userID.String())
}

func (store *Store) ListRequests(ctx context.Context, limit int) ([]wallet.UpgradeRequest, error) {
	rows, err := store.db.Query(ctx, sqlListRequests, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectRequest, errorCodeList, err)
	}
	defer rows.Close()

	var requests []wallet.UpgradeRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectRequest, errorCodeList, err)
	}
	return requests, nil
}

func (store *Store) TransitionRequest(ctx context.Context, transition wallet.RequestTransition) error {
	tag, err := store.db.Exec(ctx, sqlTransitionRequest,
		transition.ID.String(),
		transition.From.String(),
		transition.To.String(),
		transition.Message,
		transition.ResolvedAt.UTC(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectRequest, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectRequest, errorCodeUpdateStatus, wallet.ErrRequestProcessed)
	}
	return nil
}

func (store *Store) planMeta(ctx context.Context, query string, userID wallet.UserID, code string) (wallet.PlanMeta, error) {
	var (
		rawTier      string
		rawStatus    string
		proExpiresAt *time.Time
	)
	err := store.db.QueryRow(ctx, query, userID.String()).Scan(&rawTier, &rawStatus, &proExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.PlanMeta{}, wrapStoreError(errorSubjectUser, code, wallet.ErrUnknownUser)
	}
	if err != nil {
		return wallet.PlanMeta{}, wrapStoreError(errorSubjectUser, code, err)
	}
	meta, err := buildPlanMeta(rawTier, rawStatus, proExpiresAt)
	if err != nil {
		return wallet.PlanMeta{}, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
	}
	return meta, nil
}

func (store *Store) queryUsers(ctx context.Context, query string, args ...any) ([]wallet.UserProfile, error) {
	rows, err := store.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
	}
	defer rows.Close()

	var profiles []wallet.UserProfile
	for rows.Next() {
		var (
			rawUserID    string
			email        string
			name         string
			rawTier      string
			rawStatus    string
			proExpiresAt *time.Time
			createdAt    time.Time
		)
		if err := rows.Scan(&rawUserID, &email, &name, &rawTier, &rawStatus, &proExpiresAt, &createdAt); err != nil {
			return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
		}
		userID, err := wallet.NewUserID(rawUserID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
		}
		meta, err := buildPlanMeta(rawTier, rawStatus, proExpiresAt)
		if err != nil {
			return nil, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
		}
		profiles = append(profiles, wallet.UserProfile{
			UserID:    userID,
			Email:     email,
			Name:      name,
			Plan:      meta,
			CreatedAt: createdAt.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
	}
	return profiles, nil
}

func (store *Store) singleRequest(ctx context.Context, query string, argument string) (wallet.UpgradeRequest, error) {
	request, err := scanRequest(store.db.QueryRow(ctx, query, argument))
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.UpgradeRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, wallet.ErrUnknownRequest)
	}
	if err != nil {
		return wallet.UpgradeRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, err)
	}
	return request, nil
}

func scanRestaurant(row rowScanner) (wallet.Restaurant, error) {
	var (
		id         string
		rawOwnerID string
		name       string
		slug       string
		rawTier    string
		createdAt  time.Time
	)
	if err := row.Scan(&id, &rawOwnerID, &name, &slug, &rawTier, &createdAt); err != nil {
		return wallet.Restaurant{}, err
	}
	ownerID, err := wallet.NewUserID(rawOwnerID)
	if err != nil {
		return wallet.Restaurant{}, err
	}
	tier, err := wallet.ParsePlanTier(rawTier)
	if err != nil {
		return wallet.Restaurant{}, err
	}
	return wallet.Restaurant{
		ID:        id,
		OwnerID:   ownerID,
		Name:      name,
		Slug:      slug,
		PlanTier:  tier,
		CreatedAt: createdAt.UTC(),
	}, nil
}

func scanRequest(row rowScanner) (wallet.UpgradeRequest, error) {
	var (
		rawID         string
		rawUserID     string
		displayName   string
		amountCents   int64
		rawStatus     string
		statusMessage string
		createdAt     time.Time
		resolvedAt    *time.Time
	)
	if err := row.Scan(&rawID, &rawUserID, &displayName, &amountCents, &rawStatus, &statusMessage, &createdAt, &resolvedAt); err != nil {
		return wallet.UpgradeRequest{}, err
	}
	requestID, err := wallet.NewRequestID(rawID)
	if err != nil {
		return wallet.UpgradeRequest{}, err
	}
	userID, err := wallet.NewUserID(rawUserID)
	if err != nil {
		return wallet.UpgradeRequest{}, err
	}
	status, err := wallet.ParseRequestStatus(rawStatus)
	if err != nil {
		return wallet.UpgradeRequest{}, err
	}
	request := wallet.UpgradeRequest{
		ID:            requestID,
		UserID:        userID,
		DisplayName:   displayName,
		AmountCents:   wallet.AmountCents(amountCents),
		Status:        status,
		StatusMessage: statusMessage,
		CreatedAt:     createdAt.UTC(),
	}
	if resolvedAt != nil {
		value := resolvedAt.UTC()
		request.ResolvedAt = &value
	}
	return request, nil
}

func buildPlanMeta(rawTier string, rawStatus string, proExpiresAt *time.Time) (wallet.PlanMeta, error) {
	tier, err := wallet.ParsePlanTier(rawTier)
	if err != nil {
		return wallet.PlanMeta{}, err
	}
	status, err := wallet.ParsePlanStatus(rawStatus)
	if err != nil {
		return wallet.PlanMeta{}, err
	}
	meta := wallet.PlanMeta{Tier: tier, Status: status}
	if proExpiresAt != nil {
		value := proExpiresAt.UTC()
		meta.ProExpiresAt = &value
	}
	return meta, nil
}

func userIDStrings(userIDs []wallet.UserID) []string {
	values := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		values = append(values, userID.String())
	}
	return values
}

func wrapStoreError(subject string, code string, err error) error {
	return wallet.WrapError(errorOperationStore, subject, code, err)
}

func isPendingRequestConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintPendingRequest
	}
	return false
}
