package catalog

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLendAndReclaim(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)
	p := NewPhysicalCopy("Shelved", "A", 2000, "Novel", "L1", "INV-1", "A1")
	require.NoError(t, lib.Insert(ctx, p))
	require.NoError(t, lib.Insert(ctx, NewDigitalCopy("File", "A", 2000, "Novel", "L2", 1.0, FormatPDF)))

	lent, err := lib.Lend(ctx, "L1", "alice")
	require.NoError(t, err)
	assert.Same(t, p, lent)
	assert.True(t, p.Borrowed())
	assert.False(t, p.Available)

	_, err = lib.Lend(ctx, "L1", "bob")
	assert.ErrorIs(t, err, ErrAlreadyBorrowed)
	_, err = lib.Lend(ctx, "L2", "bob")
	assert.ErrorIs(t, err, ErrWrongKind)
	_, err = lib.Lend(ctx, "missing", "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	borrower, err := lib.Reclaim(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "alice", borrower)
	assert.True(t, p.Available)

	_, err = lib.Reclaim(ctx, p)
	assert.ErrorIs(t, err, ErrNotBorrowed)
	_, err = lib.Reclaim(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidItem)

	require.NoError(t, lib.LendCopy(ctx, p, "carol"))
	who, ok := p.Borrower()
	assert.True(t, ok)
	assert.Equal(t, "carol", who)

	assert.Equal(t, 2, lib.Stats(ctx).TotalOperations)
}

func TestDownloadThroughLibrary(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)
	require.NoError(t, lib.Insert(ctx, NewDigitalCopy("File", "A", 2000, "Novel", "D1", 5.0, FormatMOBI)))
	require.NoError(t, lib.Insert(ctx, NewBook("Paper", "A", 2000, "Novel", "D2")))

	receipt, err := lib.Download(ctx, "D1", "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.DownloadCount)
	assert.Equal(t, FormatMOBI, receipt.Format)

	_, err = lib.Download(ctx, "D2", "u-1")
	assert.ErrorIs(t, err, ErrWrongKind)
	_, err = lib.Download(ctx, "missing", "u-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLendingRacesWithReaders(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)
	p := NewPhysicalCopy("Busy", "A", 2000, "Novel", "R1", "INV-9", "B2")
	require.NoError(t, lib.Insert(ctx, p))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 200 {
			if _, err := lib.Lend(ctx, "R1", "alice"); err == nil {
				_, _ = lib.Reclaim(ctx, p)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			_ = lib.Verify()
			_ = lib.Books()
		}
	}()
	wg.Wait()

	assert.False(t, p.Borrowed())
	assert.NoError(t, lib.Verify())
}
