package circulation

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraindex/internal/catalog"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService(t *testing.T) (Service, *catalog.Library, *clock) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	lib := catalog.NewLibrary("Circulation Library", catalog.WithLogger(logger))

	require.NoError(t, lib.Insert(ctx, catalog.NewPhysicalCopy("War and Peace", "Leo Tolstoy", 1869, "Novel", "P1", "INV-001", "A1")))
	require.NoError(t, lib.Insert(ctx, catalog.NewPhysicalCopy("Crime and Punishment", "Fyodor Dostoevsky", 1866, "Novel", "P2", "INV-002", "A2")))
	require.NoError(t, lib.Insert(ctx, catalog.NewDigitalCopy("1984", "George Orwell", 1949, "Dystopia", "E1", 2.5, catalog.FormatEPUB)))
	require.NoError(t, lib.Insert(ctx, catalog.NewBook("Reference", "Editors", 2000, "Reference", "B1")))

	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	return NewService(lib, WithLogger(logger), WithClock(c.now)), lib, c
}

func TestCheckoutAndReturn(t *testing.T) {
	ctx := context.Background()
	svc, lib, c := newTestService(t)

	checkout, err := svc.CheckoutItem(ctx, "P1", "alice")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, checkout.ID)
	assert.Equal(t, StatusActive, checkout.Status)
	assert.Equal(t, "War and Peace", checkout.Title)
	assert.Equal(t, c.t.Add(14*24*time.Hour), checkout.DueDate)
	assert.Equal(t, 1, checkout.Version)

	item, ok := lib.SearchByISBN(ctx, "P1")
	require.True(t, ok)
	physical := item.(*catalog.PhysicalCopy)
	assert.True(t, physical.Borrowed())
	assert.False(t, physical.Available)

	active := svc.ActiveCheckouts()
	require.Len(t, active, 1)
	assert.Equal(t, checkout.ID, active[0].ID)

	c.t = c.t.Add(3 * 24 * time.Hour)
	returned, err := svc.ReturnItem(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, checkout.ID, returned.ID)
	assert.Equal(t, StatusReturned, returned.Status)
	assert.Equal(t, c.t, returned.ReturnDate)
	assert.Equal(t, 2, returned.Version)
	assert.True(t, physical.Available)
	assert.Empty(t, svc.ActiveCheckouts())

	history := svc.History("P1")
	require.Len(t, history, 2)
	assert.Equal(t, "ItemCheckedOut", history[0].EventType)
	assert.Equal(t, "ItemReturned", history[1].EventType)

	var ev ItemReturnedEvent
	require.NoError(t, history[1].Decode(&ev))
	assert.Equal(t, "alice", ev.Borrower)
	assert.False(t, ev.Overdue)
}

func TestCheckoutRejectsWrongKinds(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.CheckoutItem(ctx, "E1", "alice")
	assert.ErrorIs(t, err, ErrNotLendable)
	_, err = svc.CheckoutItem(ctx, "B1", "alice")
	assert.ErrorIs(t, err, ErrNotLendable)
	_, err = svc.CheckoutItem(ctx, "missing", "alice")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = svc.CheckoutItem(ctx, "P1", "  ")
	assert.ErrorIs(t, err, ErrInvalidPatron)

	assert.Empty(t, svc.ActiveCheckouts())
}

func TestCheckoutTwiceFails(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.CheckoutItem(ctx, "P1", "alice")
	require.NoError(t, err)
	_, err = svc.CheckoutItem(ctx, "P1", "bob")
	require.ErrorIs(t, err, catalog.ErrAlreadyBorrowed)

	active := svc.ActiveCheckouts()
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].Borrower)
	assert.Len(t, svc.History("P1"), 1)
}

func TestReturnWithoutCheckout(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ReturnItem(context.Background(), "P2")
	assert.ErrorIs(t, err, ErrNoActiveCheckout)
}

func TestReturnOverdue(t *testing.T) {
	ctx := context.Background()
	svc, _, c := newTestService(t)

	_, err := svc.CheckoutItem(ctx, "P2", "bob")
	require.NoError(t, err)

	c.t = c.t.Add(LoanPeriod + time.Hour)
	active := svc.ActiveCheckouts()
	require.Len(t, active, 1)
	assert.True(t, active[0].Overdue(c.t))

	_, err = svc.ReturnItem(ctx, "P2")
	require.NoError(t, err)

	history := svc.History("P2")
	require.Len(t, history, 2)
	var ev ItemReturnedEvent
	require.NoError(t, history[1].Decode(&ev))
	assert.True(t, ev.Overdue)
}

func TestReturnAfterCatalogRemoval(t *testing.T) {
	ctx := context.Background()
	svc, lib, _ := newTestService(t)

	_, err := svc.CheckoutItem(ctx, "P1", "carol")
	require.NoError(t, err)
	require.NoError(t, lib.Remove(ctx, "P1"))

	returned, err := svc.ReturnItem(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "carol", returned.Borrower)
}

func TestActiveCheckoutsOrderedByDueDate(t *testing.T) {
	ctx := context.Background()
	svc, _, c := newTestService(t)

	_, err := svc.CheckoutItem(ctx, "P2", "late")
	require.NoError(t, err)
	c.t = c.t.Add(-time.Hour)
	_, err = svc.CheckoutItem(ctx, "P1", "early")
	require.NoError(t, err)

	active := svc.ActiveCheckouts()
	require.Len(t, active, 2)
	assert.Equal(t, "P1", active[0].ISBN)
	assert.Equal(t, "P2", active[1].ISBN)
}

func TestDownloadItem(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	first, err := svc.DownloadItem(ctx, "E1", "u-1")
	require.NoError(t, err)
	second, err := svc.DownloadItem(ctx, "E1", "u-2")
	require.NoError(t, err)

	assert.Equal(t, 1, first.DownloadCount)
	assert.Equal(t, 2, second.DownloadCount)
	assert.Equal(t, catalog.FormatEPUB, second.Format)
	assert.Equal(t, 250*time.Millisecond, second.EstimatedTime)

	history := svc.History("E1")
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[1].Version)
	var ev ItemDownloadedEvent
	require.NoError(t, history[1].Decode(&ev))
	assert.Equal(t, "u-2", ev.UserID)

	_, err = svc.DownloadItem(ctx, "P1", "u-1")
	assert.ErrorIs(t, err, ErrNotDownloadable)
	_, err = svc.DownloadItem(ctx, "E1", "")
	assert.ErrorIs(t, err, ErrInvalidPatron)
}

func TestEventLogRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	log := svc.(*service).events

	_, err := log.append(ctx, "X1", "physical_copy", 0, "ItemCheckedOut", ItemCheckedOutEvent{ISBN: "X1"})
	require.NoError(t, err)

	_, err = log.append(ctx, "X1", "physical_copy", 0, "ItemCheckedOut", ItemCheckedOutEvent{ISBN: "X1"})
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	assert.Len(t, log.load("X1", 0), 1)
	assert.Equal(t, 1, log.version("X1"))
}
