// internal/catalog/lending.go
package catalog

import (
	"context"
	"fmt"
)

// Lend borrows the physical copy registered under isbn for borrower. The
// status change happens under the library lock. Lending is not counted as a
// catalog operation.
func (l *Library) Lend(ctx context.Context, isbn, borrower string) (*PhysicalCopy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.index.ByISBN(isbn)
	if !ok {
		return nil, fmt.Errorf("lend %q: %w", isbn, ErrNotFound)
	}
	physical, ok := item.(*PhysicalCopy)
	if !ok {
		return nil, fmt.Errorf("lend %q (%s): %w", isbn, item.Kind(), ErrWrongKind)
	}
	if err := physical.Borrow(borrower); err != nil {
		return nil, fmt.Errorf("lend %q: %w", isbn, err)
	}
	l.logger.DebugContext(ctx, "copy lent", "library", l.name, "isbn", isbn, "borrower", borrower)
	return physical, nil
}

// LendCopy borrows a copy the caller already holds, catalogued or not.
func (l *Library) LendCopy(ctx context.Context, pc *PhysicalCopy, borrower string) error {
	if pc == nil {
		return ErrInvalidItem
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := pc.Borrow(borrower); err != nil {
		return fmt.Errorf("lend %q: %w", pc.ISBN(), err)
	}
	l.logger.DebugContext(ctx, "copy lent", "library", l.name, "isbn", pc.ISBN(), "borrower", borrower)
	return nil
}

// Reclaim puts a lent copy back on the shelf and returns its borrower. The
// copy need not be catalogued any more.
func (l *Library) Reclaim(ctx context.Context, pc *PhysicalCopy) (string, error) {
	if pc == nil {
		return "", ErrInvalidItem
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	borrower, err := pc.Return()
	if err != nil {
		return "", fmt.Errorf("reclaim %q: %w", pc.ISBN(), err)
	}
	l.logger.DebugContext(ctx, "copy returned", "library", l.name, "isbn", pc.ISBN(), "borrower", borrower)
	return borrower, nil
}

// Download records a download of the digital copy registered under isbn.
func (l *Library) Download(ctx context.Context, isbn, userID string) (DownloadReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.index.ByISBN(isbn)
	if !ok {
		return DownloadReceipt{}, fmt.Errorf("download %q: %w", isbn, ErrNotFound)
	}
	digital, ok := item.(*DigitalCopy)
	if !ok {
		return DownloadReceipt{}, fmt.Errorf("download %q (%s): %w", isbn, item.Kind(), ErrWrongKind)
	}
	receipt := digital.Download(userID)
	l.logger.DebugContext(ctx, "copy downloaded", "library", l.name, "isbn", isbn, "count", receipt.DownloadCount)
	return receipt, nil
}
