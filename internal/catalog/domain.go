// internal/catalog/domain.go
package catalog

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies which specialization of a catalog entry an Item is.
type Kind string

const (
	KindBook     Kind = "book"
	KindPhysical Kind = "physical"
	KindDigital  Kind = "digital"
)

// Format is the file format of a digital copy.
type Format string

const (
	FormatPDF  Format = "PDF"
	FormatEPUB Format = "EPUB"
	FormatMOBI Format = "MOBI"
	FormatFB2  Format = "FB2"
)

// Formats lists every supported digital format.
var Formats = []Format{FormatPDF, FormatEPUB, FormatMOBI, FormatFB2}

// Item is any entry the catalog can hold. The shared attribute set lives in
// the *Book returned by Record; kind-specific behaviour is only reachable
// through a type switch on the concrete type.
type Item interface {
	fmt.Stringer
	Kind() Kind
	Record() *Book
	sealed()
}

// Book is the plain catalog entry and the shared record embedded by every
// other kind.
type Book struct {
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Year      int       `json:"year"`
	Genre     string    `json:"genre"`
	Available bool      `json:"available"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`

	isbn string
}

// NewBook creates an available book with its own empty tag list.
func NewBook(title, author string, year int, genre, isbn string) *Book {
	b := &Book{}
	b.init(title, author, year, genre, isbn)
	return b
}

func (b *Book) init(title, author string, year int, genre, isbn string) {
	b.Title = title
	b.Author = author
	b.Year = year
	b.Genre = genre
	b.isbn = isbn
	b.Available = true
	b.Tags = make([]string, 0)
	b.CreatedAt = time.Now().UTC()
}

// ISBN returns the catalog-wide unique key. It is fixed at construction.
func (b *Book) ISBN() string { return b.isbn }

func (b *Book) Kind() Kind { return KindBook }

// Record returns the shared attribute set, or nil for a nil *Book.
func (b *Book) Record() *Book { return b }

func (b *Book) sealed() {}

// AddTag appends a tag to this book only.
func (b *Book) AddTag(tag string) {
	b.Tags = append(b.Tags, tag)
}

func (b *Book) String() string {
	return fmt.Sprintf("'%s' - %s (%d)", b.Title, b.Author, b.Year)
}

// FullInfo renders every shared attribute on its own line.
func (b *Book) FullInfo() string {
	available := "no"
	if b.Available {
		available = "yes"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n", b.Title)
	fmt.Fprintf(&sb, "Author: %s\n", b.Author)
	fmt.Fprintf(&sb, "Year: %d\n", b.Year)
	fmt.Fprintf(&sb, "Genre: %s\n", b.Genre)
	fmt.Fprintf(&sb, "ISBN: %s\n", b.isbn)
	fmt.Fprintf(&sb, "Available: %s", available)
	return sb.String()
}

// PhysicalCopy is a shelved copy that can be lent to one borrower at a time.
type PhysicalCopy struct {
	Book
	InventoryTag  string `json:"inventory_tag"`
	ShelfLocation string `json:"shelf_location"`

	borrowed bool
	borrower string
}

// NewPhysicalCopy creates a physical copy that is on the shelf.
func NewPhysicalCopy(title, author string, year int, genre, isbn, inventoryTag, shelfLocation string) *PhysicalCopy {
	p := &PhysicalCopy{
		InventoryTag:  inventoryTag,
		ShelfLocation: shelfLocation,
	}
	p.init(title, author, year, genre, isbn)
	return p
}

func (p *PhysicalCopy) Kind() Kind { return KindPhysical }

func (p *PhysicalCopy) Record() *Book {
	if p == nil {
		return nil
	}
	return &p.Book
}

func (p *PhysicalCopy) String() string {
	return fmt.Sprintf("[physical] %s (#%s)", p.Book.String(), p.InventoryTag)
}

// Borrowed reports whether the copy is currently lent out.
func (p *PhysicalCopy) Borrowed() bool { return p.borrowed }

// Borrower returns the current borrower, if any.
func (p *PhysicalCopy) Borrower() (string, bool) {
	return p.borrower, p.borrowed
}

// Borrow lends the copy to borrower.
func (p *PhysicalCopy) Borrow(borrower string) error {
	if p.borrowed {
		return fmt.Errorf("%q is already lent to %s: %w", p.Title, p.borrower, ErrAlreadyBorrowed)
	}
	p.borrowed = true
	p.Available = false
	p.borrower = borrower
	return nil
}

// Return puts the copy back on the shelf and yields the previous borrower.
func (p *PhysicalCopy) Return() (string, error) {
	if !p.borrowed {
		return "", fmt.Errorf("%q: %w", p.Title, ErrNotBorrowed)
	}
	borrower := p.borrower
	p.borrowed = false
	p.Available = true
	p.borrower = ""
	return borrower, nil
}

// DigitalCopy is a downloadable file.
type DigitalCopy struct {
	Book
	SizeMB float64 `json:"size_mb"`
	Format Format  `json:"format"`

	downloads int
}

// DownloadReceipt describes a single completed download.
type DownloadReceipt struct {
	Title         string        `json:"title"`
	UserID        string        `json:"user_id"`
	Format        Format        `json:"format"`
	SizeMB        float64       `json:"size_mb"`
	EstimatedTime time.Duration `json:"estimated_time"`
	DownloadCount int           `json:"download_count"`
}

// NewDigitalCopy creates a digital copy with a zero download count.
func NewDigitalCopy(title, author string, year int, genre, isbn string, sizeMB float64, format Format) *DigitalCopy {
	d := &DigitalCopy{
		SizeMB: sizeMB,
		Format: format,
	}
	d.init(title, author, year, genre, isbn)
	return d
}

func (d *DigitalCopy) Kind() Kind { return KindDigital }

func (d *DigitalCopy) Record() *Book {
	if d == nil {
		return nil
	}
	return &d.Book
}

func (d *DigitalCopy) String() string {
	return fmt.Sprintf("[digital] %s (%s, %.1fMB)", d.Book.String(), d.Format, d.SizeMB)
}

// Downloads returns how many times the file has been downloaded.
func (d *DigitalCopy) Downloads() int { return d.downloads }

// Download records a download by userID. Transfer time is estimated at 10MB/s.
func (d *DigitalCopy) Download(userID string) DownloadReceipt {
	d.downloads++
	return DownloadReceipt{
		Title:         d.Title,
		UserID:        userID,
		Format:        d.Format,
		SizeMB:        d.SizeMB,
		EstimatedTime: time.Duration(d.SizeMB / 10 * float64(time.Second)),
		DownloadCount: d.downloads,
	}
}

// sameItem compares by identity of the shared record, never by field values.
func sameItem(a, b Item) bool {
	return a.Record() == b.Record()
}

// Stats is a point-in-time snapshot of the catalog.
type Stats struct {
	Name            string `json:"library_name"`
	TotalBooks      int    `json:"total_books"`
	UniqueAuthors   int    `json:"unique_authors"`
	UniqueYears     int    `json:"unique_years"`
	TotalOperations int    `json:"total_operations"`
}
