// internal/circulation/service.go
package circulation

import (
	"context"

	"libraindex/internal/catalog"
)

// Service defines the interface for the circulation service.
type Service interface {
	CheckoutItem(ctx context.Context, isbn, borrower string) (*Checkout, error)
	ReturnItem(ctx context.Context, isbn string) (*Checkout, error)
	DownloadItem(ctx context.Context, isbn, userID string) (*catalog.DownloadReceipt, error)
	ActiveCheckouts() []Checkout
	History(isbn string) []Event
}
