package model

import (
	"encoding/json"
	"time"
)

// CreditBalance is one integer counter per user. The balance is never
// negative; the store enforces that at the statement level and the schema
// backs it with a CHECK constraint.
type CreditBalance struct {
	UserID    string `gorm:"primaryKey;type:VARCHAR(255)"`
	Balance   int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c CreditBalance) String() string {
	v, _ := json.Marshal(c)
	return string(v)
}
