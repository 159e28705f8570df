package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Wallet mirrors the wallets table.
type Wallet struct {
	UserID       string    `gorm:"primaryKey"`
	BalanceCents int64     `gorm:"not null;default:0"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (Wallet) TableName() string { return "wallets" }

// WalletTransaction mirrors the append-only wallet_transactions table.
type WalletTransaction struct {
	ID          string         `gorm:"type:uuid;primaryKey"`
	UserID      string         `gorm:"not null;index:idx_wallet_transactions_user_created,priority:1"`
	AmountCents int64          `gorm:"not null"`
	Type        string         `gorm:"not null"`
	Reference   string         `gorm:"not null;default:''"`
	Metadata    datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_wallet_transactions_user_created,priority:2"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

func (transaction *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.ID == "" {
		transaction.ID = uuid.NewString()
	}
	return nil
}

// UpgradeRequest mirrors the upgrade_requests table.
// The partial unique index allows one pending row per user.
type UpgradeRequest struct {
	ID            string     `gorm:"primaryKey"`
	UserID        string     `gorm:"not null;index:idx_upgrade_requests_user_created,priority:1;index:uniq_upgrade_requests_pending_user,unique,where:status = 'pending'"`
	DisplayName   string     `gorm:"not null"`
	AmountCents   int64      `gorm:"not null"`
	Status        string     `gorm:"not null;default:'pending'"`
	StatusMessage *string    `gorm:""`
	CreatedAt     time.Time  `gorm:"not null;index:idx_upgrade_requests_user_created,priority:2;index:idx_upgrade_requests_created"`
	ResolvedAt    *time.Time `gorm:""`
}

func (UpgradeRequest) TableName() string { return "upgrade_requests" }

// User mirrors the users table with its plan columns.
type User struct {
	ID           string     `gorm:"primaryKey"`
	Email        string     `gorm:"not null;default:''"`
	Name         string     `gorm:"not null;default:''"`
	PlanTier     string     `gorm:"not null;default:'free';index:idx_users_plan_expiry,priority:1"`
	PlanStatus   string     `gorm:"not null;default:'inactive'"`
	ProExpiresAt *time.Time `gorm:"index:idx_users_plan_expiry,priority:2"`
	CreatedAt    time.Time  `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// Restaurant mirrors the columns of the restaurants table this service reads and updates.
type Restaurant struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	OwnerID   string    `gorm:"not null;index"`
	Name      string    `gorm:"not null"`
	Slug      string    `gorm:"not null;uniqueIndex"`
	PlanTier  string    `gorm:"not null;default:'free'"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Restaurant) TableName() string { return "restaurants" }

func (restaurant *Restaurant) BeforeCreate(tx *gorm.DB) error {
	if restaurant.ID == "" {
		restaurant.ID = uuid.NewString()
	}
	return nil
}

// Subscription mirrors the subscriptions table, one row per restaurant.
type Subscription struct {
	ID           string    `gorm:"type:uuid;primaryKey"`
	UserID       string    `gorm:"not null;index"`
	RestaurantID string    `gorm:"not null;uniqueIndex"`
	PlanTier     string    `gorm:"not null"`
	Status       string    `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

func (subscription *Subscription) BeforeCreate(tx *gorm.DB) error {
	if subscription.ID == "" {
		subscription.ID = uuid.NewString()
	}
	return nil
}

// Models lists every table for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&Wallet{},
		&WalletTransaction{},
		&UpgradeRequest{},
		&User{},
		&Restaurant{},
		&Subscription{},
	}
}
