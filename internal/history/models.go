// Package history stores the departure recommendations a user chose to keep.
package history

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrItemNotFound = errors.New("history item not found")
)

// Validation errors.
var (
	ErrOwnerRequired    = errors.New("owner is required")
	ErrEndpointRequired = errors.New("origin and destination are required")
)

// MaxItemsPerOwner is the number of items kept per owner; older items are
// dropped on insert.
const MaxItemsPerOwner = 50

// Kind records which operation produced an item.
type Kind string

const (
	KindAnalyze  Kind = "analyze"
	KindForecast Kind = "forecast"
	KindBatch    Kind = "batch"
)

// Item is one saved recommendation.
type Item struct {
	ID           string
	Owner        string
	Kind         Kind
	Origin       string
	Destination  string
	BestDepartAt time.Time
	ETAMinutes   int
	SavingVsNow  float64
	Risk         float64
	CreatedAt    time.Time
}
