// internal/simulation/generator.go
package simulation

import (
	"fmt"
	"math/rand/v2"

	"libraindex/internal/catalog"
)

var (
	titles = []string{
		"Secret of the Old Castle", "Journey Through Time",
		"The Mysterious Island", "City of Dreams", "The Last Frontier",
		"The Hidden Laboratory", "The Lost World", "Star Road",
	}
	authors = []string{
		"Ivan Ivanov", "Anna Petrova", "Sergei Sidorov",
		"Maria Kuznetsova", "Alexei Smirnov", "Elena Vasilieva",
	}
	genres = []string{"Novel", "Science Fiction", "Detective", "Adventure", "History"}

	// fakeAuthors never appear in the generated vocabulary.
	fakeAuthors = []string{"Unknown Author", "Imaginary Writer", "Test Testov"}
)

const (
	minYear = 1900
	maxYear = 2024 // exclusive
)

func choice[T any](r *rand.Rand, items []T) T {
	return items[r.IntN(len(items))]
}

// between returns a value in [lo, hi].
func between(r *rand.Rand, lo, hi int) int {
	return lo + r.IntN(hi-lo+1)
}

// randomItem draws a plain, physical or digital item with equal probability.
// Keys are drawn from RND-1000..RND-9999, so collisions are expected over
// long runs.
func randomItem(r *rand.Rand) catalog.Item {
	kind := choice(r, []catalog.Kind{catalog.KindPhysical, catalog.KindDigital, catalog.KindBook})

	title := fmt.Sprintf("%s #%d", choice(r, titles), between(r, 1, 1000))
	author := choice(r, authors)
	year := minYear + r.IntN(maxYear-minYear)
	genre := choice(r, genres)
	isbn := fmt.Sprintf("RND-%d", between(r, 1000, 9999))

	switch kind {
	case catalog.KindPhysical:
		return catalog.NewPhysicalCopy(title, author, year, genre, isbn,
			fmt.Sprintf("INV-%d", between(r, 100, 999)),
			fmt.Sprintf("%c%d", "ABCD"[r.IntN(4)], between(r, 1, 10)),
		)
	case catalog.KindDigital:
		size := float64(between(r, 10, 100)) / 10
		return catalog.NewDigitalCopy(title, author, year, genre, isbn, size, choice(r, catalog.Formats))
	default:
		return catalog.NewBook(title, author, year, genre, isbn)
	}
}

// initialItems is the fixed starting stock of every run.
func initialItems() []catalog.Item {
	return []catalog.Item{
		catalog.NewPhysicalCopy("War and Peace", "Leo Tolstoy", 1869, "Novel", "SIM-001", "INV-001", "A1"),
		catalog.NewPhysicalCopy("Crime and Punishment", "Fyodor Dostoevsky", 1866, "Novel", "SIM-002", "INV-002", "A2"),
		catalog.NewDigitalCopy("1984", "George Orwell", 1949, "Dystopia", "SIM-003", 2.5, catalog.FormatEPUB),
		catalog.NewDigitalCopy("The Master and Margarita", "Mikhail Bulgakov", 1967, "Novel", "SIM-004", 3.2, catalog.FormatPDF),
	}
}
