package payment

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrProfileNotFound is returned for users without a profile row.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is a row of the profiles table that holds the user's credits.
type Profile struct {
	ID            string `gorm:"column:id;primaryKey"`
	Email         string `gorm:"column:email"`
	CreditBalance int64  `gorm:"column:credit_balance;not null;default:0"`
}

// TableName pins the table name used by the auth provider.
func (Profile) TableName() string {
	return "profiles"
}

// BalanceStore reads a user's credit balance.
type BalanceStore interface {
	Balance(ctx context.Context, userID string) (int64, error)
}

// GormBalanceStore keeps profiles in a SQL database.
type GormBalanceStore struct {
	db *gorm.DB
}

// OpenDatabase opens the sqlite database at dsn and migrates the profiles
// table.
func OpenDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.AutoMigrate(&Profile{})
	if err != nil {
		return nil, fmt.Errorf("failed to migrate profiles: %w", err)
	}

	return db, nil
}

// NewGormBalanceStore wraps an open database.
func NewGormBalanceStore(db *gorm.DB) *GormBalanceStore {
	return &GormBalanceStore{db: db}
}

// Balance returns the current credit balance of userID.
func (s *GormBalanceStore) Balance(ctx context.Context, userID string) (int64, error) {
	var profile Profile

	err := s.db.WithContext(ctx).Select("credit_balance").Where("id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
		}

		return 0, fmt.Errorf("failed to read balance of %s: %w", userID, err)
	}

	return profile.CreditBalance, nil
}

// EnsureProfile creates the profile row if it does not exist yet.
func (s *GormBalanceStore) EnsureProfile(ctx context.Context, userID, email string) error {
	profile := Profile{ID: userID, Email: email}

	err := s.db.WithContext(ctx).Where(Profile{ID: userID}).FirstOrCreate(&profile).Error
	if err != nil {
		return fmt.Errorf("failed to ensure profile %s: %w", userID, err)
	}

	return nil
}

// AddCredits adds amount to the balance of userID and reports the change.
func (s *GormBalanceStore) AddCredits(ctx context.Context, userID string, amount int64) (BalanceChange, error) {
	var change BalanceChange

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile Profile

		findErr := tx.Where("id = ?", userID).First(&profile).Error
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
			}

			return findErr
		}

		change = BalanceChange{
			UserID:     userID,
			OldBalance: profile.CreditBalance,
			NewBalance: profile.CreditBalance + amount,
		}

		return tx.Model(&Profile{}).Where("id = ?", userID).Update("credit_balance", change.NewBalance).Error
	})
	if err != nil {
		return BalanceChange{}, fmt.Errorf("failed to add credits: %w", err)
	}

	return change, nil
}
