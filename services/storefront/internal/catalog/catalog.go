package catalog

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"bookzone/pkg/domain"
)

// Sort is a catalog ordering.
type Sort string

const (
	SortTitle Sort = "title"
	SortPrice Sort = "price"
	SortDate  Sort = "date"
)

// ParseSort maps a query value to a Sort; anything unknown is SortTitle.
func ParseSort(v string) Sort {
	switch Sort(strings.ToLower(strings.TrimSpace(v))) {
	case SortPrice:
		return SortPrice
	case SortDate:
		return SortDate
	}
	return SortTitle
}

// Query is the filter and sort selection of the catalog page.
type Query struct {
	Search   string
	Category string
	Sort     Sort
}

// QueryFromValues reads ?q=&category=&sort=.
func QueryFromValues(v url.Values) Query {
	return Query{
		Search:   strings.TrimSpace(v.Get("q")),
		Category: strings.TrimSpace(v.Get("category")),
		Sort:     ParseSort(v.Get("sort")),
	}
}

// BookSource lists books and categories.
type BookSource interface {
	List(ctx context.Context) ([]domain.Book, error)
	Categories(ctx context.Context) ([]string, error)
}

// Listing is everything the catalog page fetched.
type Listing struct {
	Books      []domain.Book
	Categories []string
}

// Load fetches books and categories concurrently. Either failure fails
// the load.
func Load(ctx context.Context, src BookSource) (Listing, error) {
	var out Listing
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		books, err := src.List(gctx)
		if err != nil {
			return fmt.Errorf("list books: %w", err)
		}
		out.Books = books
		return nil
	})
	g.Go(func() error {
		categories, err := src.Categories(gctx)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		out.Categories = categories
		return nil
	})
	if err := g.Wait(); err != nil {
		return Listing{}, err
	}
	return out, nil
}

// Apply filters and sorts books in memory. The input is not modified.
func Apply(books []domain.Book, q Query) []domain.Book {
	needle := strings.ToLower(q.Search)
	out := make([]domain.Book, 0, len(books))
	for _, b := range books {
		if q.Category != "" && b.Category != q.Category {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(b.Title), needle) &&
			!strings.Contains(strings.ToLower(b.Author), needle) {
			continue
		}
		out = append(out, b)
	}
	switch q.Sort {
	case SortPrice:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	case SortDate:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	default:
		titles := titleCollator()
		sort.SliceStable(out, func(i, j int) bool { return titles.CompareString(out[i].Title, out[j].Title) < 0 })
	}
	return out
}

// titleCollator orders titles the way a French reader expects: case and
// accents only break ties. A Collator is not safe for concurrent use.
func titleCollator() *collate.Collator {
	return collate.New(language.French)
}

// Featured returns the first n active books.
func Featured(books []domain.Book, n int) []domain.Book {
	var out []domain.Book
	for _, b := range books {
		if len(out) >= n {
			break
		}
		if b.IsActive {
			out = append(out, b)
		}
	}
	return out
}

// PurchaseTarget is where the "acheter" button leads.
func PurchaseTarget(authenticated bool, bookID string) string {
	if !authenticated {
		return "/login"
	}
	return "/checkout/" + url.PathEscape(bookID)
}
