// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libraindex/internal/catalog"
)

const instrumentationName = "libraindex/circulation"

// service implements the Service interface.
type service struct {
	mu      sync.Mutex
	catalog catalog.Service
	events  *eventLog
	active  map[string]*Checkout
	now     func() time.Time
	logger  *slog.Logger
	tracer  trace.Tracer
}

var _ Service = (*service)(nil)

type Option func(*service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithClock replaces time.Now for checkout and due dates.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a circulation service over a catalog.
func NewService(cat catalog.Service, opts ...Option) Service {
	s := &service{
		catalog: cat,
		active:  make(map[string]*Checkout),
		now:     time.Now,
		logger:  slog.Default(),
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = newEventLog(s.tracer)
	return s
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CheckoutItem lends the physical copy registered under isbn to borrower.
func (s *service) CheckoutItem(ctx context.Context, isbn, borrower string) (_ *Checkout, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.checkout", trace.WithAttributes(attribute.String("isbn", isbn)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(borrower) == "" {
		return nil, ErrInvalidPatron
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	physical, err := s.catalog.Lend(ctx, isbn, borrower)
	if err != nil {
		if errors.Is(err, catalog.ErrWrongKind) {
			return nil, fmt.Errorf("checkout: %w: %w", ErrNotLendable, err)
		}
		return nil, fmt.Errorf("checkout: %w", err)
	}

	now := s.now()
	checkout := &Checkout{
		ID:           uuid.New(),
		ISBN:         isbn,
		Title:        physical.Title,
		Borrower:     borrower,
		CheckoutDate: now,
		DueDate:      now.Add(LoanPeriod),
		Status:       StatusActive,
		copy:         physical,
	}

	event, err := s.events.append(ctx, isbn, "physical_copy", s.events.version(isbn), "ItemCheckedOut", ItemCheckedOutEvent{
		CheckoutID: checkout.ID,
		ISBN:       isbn,
		Borrower:   borrower,
		DueDate:    checkout.DueDate,
	})
	if err != nil {
		// Compensate: put the copy back on the shelf.
		if _, rerr := s.catalog.Reclaim(ctx, physical); rerr != nil {
			s.logger.ErrorContext(ctx, "failed to compensate checkout", "isbn", isbn, "error", rerr)
		}
		return nil, fmt.Errorf("record checkout of %q: %w", isbn, err)
	}
	checkout.Version = event.Version
	s.active[isbn] = checkout

	s.logger.InfoContext(ctx, "item checked out",
		"checkout_id", checkout.ID.String(),
		"isbn", isbn,
		"borrower", borrower,
		"due", checkout.DueDate,
	)
	out := *checkout
	return &out, nil
}

// ReturnItem closes the active checkout of isbn. The copy is returned even
// if it has been removed from the catalog in the meantime.
func (s *service) ReturnItem(ctx context.Context, isbn string) (_ *Checkout, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return", trace.WithAttributes(attribute.String("isbn", isbn)))
	defer func() { endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	checkout, ok := s.active[isbn]
	if !ok {
		return nil, fmt.Errorf("return %q: %w", isbn, ErrNoActiveCheckout)
	}

	borrower, err := s.catalog.Reclaim(ctx, checkout.copy)
	if err != nil {
		return nil, fmt.Errorf("return %q: %w", isbn, err)
	}
	now := s.now()
	overdue := checkout.Overdue(now)

	event, err := s.events.append(ctx, isbn, "physical_copy", checkout.Version, "ItemReturned", ItemReturnedEvent{
		CheckoutID: checkout.ID,
		ISBN:       isbn,
		Borrower:   borrower,
		ReturnDate: now,
		Overdue:    overdue,
	})
	if err != nil {
		if berr := s.catalog.LendCopy(ctx, checkout.copy, borrower); berr != nil {
			s.logger.ErrorContext(ctx, "failed to compensate return", "isbn", isbn, "error", berr)
		}
		return nil, fmt.Errorf("record return of %q: %w", isbn, err)
	}

	checkout.ReturnDate = now
	checkout.Status = StatusReturned
	checkout.Version = event.Version
	delete(s.active, isbn)

	s.logger.InfoContext(ctx, "item returned",
		"checkout_id", checkout.ID.String(),
		"isbn", isbn,
		"borrower", borrower,
		"overdue", overdue,
	)
	out := *checkout
	return &out, nil
}

// DownloadItem records a download of the digital copy registered under isbn.
func (s *service) DownloadItem(ctx context.Context, isbn, userID string) (_ *catalog.DownloadReceipt, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.download", trace.WithAttributes(attribute.String("isbn", isbn)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidPatron
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, err := s.catalog.Download(ctx, isbn, userID)
	if err != nil {
		if errors.Is(err, catalog.ErrWrongKind) {
			return nil, fmt.Errorf("download: %w: %w", ErrNotDownloadable, err)
		}
		return nil, fmt.Errorf("download: %w", err)
	}
	if _, err := s.events.append(ctx, isbn, "digital_copy", s.events.version(isbn), "ItemDownloaded", ItemDownloadedEvent{
		ISBN:          isbn,
		UserID:        userID,
		Format:        receipt.Format,
		DownloadCount: receipt.DownloadCount,
	}); err != nil {
		return nil, fmt.Errorf("record download of %q: %w", isbn, err)
	}

	s.logger.InfoContext(ctx, "item downloaded",
		"isbn", isbn,
		"user_id", userID,
		"format", string(receipt.Format),
		"estimated", receipt.EstimatedTime,
	)
	return &receipt, nil
}

// ActiveCheckouts returns the open checkouts ordered by due date, then key.
func (s *service) ActiveCheckouts() []Checkout {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Checkout, 0, len(s.active))
	for _, c := range s.active {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Checkout) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		return strings.Compare(a.ISBN, b.ISBN)
	})
	return out
}

// History returns every circulation event recorded for isbn.
func (s *service) History(isbn string) []Event {
	return s.events.load(isbn, 0)
}
