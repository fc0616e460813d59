// internal/circulation/domain.go
package circulation

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"libraindex/internal/catalog"
)

// LoanPeriod is how long a physical copy may be kept.
const LoanPeriod = 14 * 24 * time.Hour

var (
	ErrNotLendable      = errors.New("item is not a lendable physical copy")
	ErrNotDownloadable  = errors.New("item is not a downloadable digital copy")
	ErrNoActiveCheckout = errors.New("no active checkout for item")
	ErrInvalidPatron    = errors.New("patron id must not be empty")
)

type Status string

const (
	StatusActive   Status = "active"
	StatusReturned Status = "returned"
)

// Checkout represents a physical copy lent to a borrower.
type Checkout struct {
	ID           uuid.UUID `json:"id"`
	ISBN         string    `json:"isbn"`
	Title        string    `json:"title"`
	Borrower     string    `json:"borrower"`
	CheckoutDate time.Time `json:"checkout_date"`
	DueDate      time.Time `json:"due_date"`
	ReturnDate   time.Time `json:"return_date,omitempty"`
	Status       Status    `json:"status"`
	Version      int       `json:"version"`

	copy *catalog.PhysicalCopy
}

// Overdue reports whether the checkout is still active past its due date.
func (c Checkout) Overdue(at time.Time) bool {
	return c.Status == StatusActive && at.After(c.DueDate)
}

// ItemCheckedOutEvent is recorded when a physical copy is lent.
type ItemCheckedOutEvent struct {
	CheckoutID uuid.UUID `json:"checkout_id"`
	ISBN       string    `json:"isbn"`
	Borrower   string    `json:"borrower"`
	DueDate    time.Time `json:"due_date"`
}

// ItemReturnedEvent is recorded when a physical copy comes back.
type ItemReturnedEvent struct {
	CheckoutID uuid.UUID `json:"checkout_id"`
	ISBN       string    `json:"isbn"`
	Borrower   string    `json:"borrower"`
	ReturnDate time.Time `json:"return_date"`
	Overdue    bool      `json:"overdue"`
}

// ItemDownloadedEvent is recorded for every digital download.
type ItemDownloadedEvent struct {
	ISBN          string         `json:"isbn"`
	UserID        string         `json:"user_id"`
	Format        catalog.Format `json:"format"`
	DownloadCount int            `json:"download_count"`
}
