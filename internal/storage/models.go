package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceAlert is a traveler's request to be told when a route drops to a
// threshold. Alerts are one-shot: a fired alert is deactivated.
type PriceAlert struct {
	ID          uuid.UUID       `json:"id"`
	Origin      string          `json:"origin" validate:"required,len=3,alpha,uppercase"`
	Destination string          `json:"destination" validate:"required,len=3,alpha,uppercase,nefield=Origin"`
	Threshold   decimal.Decimal `json:"threshold"`
	Currency    string          `json:"currency" validate:"omitempty,len=3,alpha"`
	IsActive    bool            `json:"isActive"`
	CreatedAt   time.Time       `json:"createdAt"`
	TriggeredAt *time.Time      `json:"triggeredAt,omitempty"`
}

// PriceSnapshot records the latest observed price for a route at sweep time.
type PriceSnapshot struct {
	ID            int64           `json:"id"`
	AlertID       *uuid.UUID      `json:"alertId,omitempty"`
	Origin        string          `json:"origin"`
	Destination   string          `json:"destination"`
	DepartureDate string          `json:"departureDate"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Provenance    string          `json:"provenance"`
	Triggered     bool            `json:"triggered"`
	ObservedAt    time.Time       `json:"observedAt"`
}
