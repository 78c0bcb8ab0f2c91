package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrNegativeBalance = errors.New("wallet balance cannot be negative")

// Wallet is the balance holder owned by the wallet service, keyed by account id.
type Wallet struct {
	AccountID    string          `gorm:"primaryKey;size:64" json:"accountId"`
	OwnerPhoneNo string          `gorm:"size:32;uniqueIndex;not null" json:"ownerPhoneNo"`
	Balance      decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"balance"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (w *Wallet) BeforeSave(tx *gorm.DB) error {
	if w.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	return nil
}
