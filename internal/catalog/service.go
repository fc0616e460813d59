// internal/catalog/service.go
package catalog

import (
	"context"
)

// Service defines the interface for the catalog service.
type Service interface {
	Insert(ctx context.Context, item Item) error
	// Remove accepts an Item or its unique key.
	Remove(ctx context.Context, identifier any) error
	RemoveByGenre(ctx context.Context, genre string) (int, error)
	SearchByAuthor(ctx context.Context, author string) []Item
	SearchByYear(ctx context.Context, year int) []Item
	SearchByISBN(ctx context.Context, isbn string) (Item, bool)
	SearchByGenre(ctx context.Context, genre string) []Item
	SearchByTitle(ctx context.Context, keyword string) []Item
	RandomPick(ctx context.Context) (Item, bool)
	Stats(ctx context.Context) Stats
	Contains(identifier any) bool
	Len() int

	// Status changes run under the catalog lock and are not counted.
	Lend(ctx context.Context, isbn, borrower string) (*PhysicalCopy, error)
	LendCopy(ctx context.Context, pc *PhysicalCopy, borrower string) error
	Reclaim(ctx context.Context, pc *PhysicalCopy) (string, error)
	Download(ctx context.Context, isbn, userID string) (DownloadReceipt, error)
}
