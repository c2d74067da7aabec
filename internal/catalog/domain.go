package catalog

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lendingdesk/internal/store"
)

// Status is derived from the quantity on hand and stored alongside it.
type Status string

const (
	StatusAvailable    Status = "available"
	StatusNotAvailable Status = "not-available"
)

// StatusFor returns the status a book with quantity copies on hand must have.
func StatusFor(quantity int) Status {
	if quantity > 0 {
		return StatusAvailable
	}
	return StatusNotAvailable
}

// Book is a title a librarian lends out. Quantity counts the copies on the shelf.
type Book struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	LibrarianID  uuid.UUID       `db:"librarian_id" json:"librarian_id"`
	Title        string          `db:"title" json:"title"`
	Author       string          `db:"author" json:"author"`
	Category     string          `db:"category" json:"category"`
	Quantity     int             `db:"quantity" json:"quantity"`
	BorrowingFee decimal.Decimal `db:"borrowing_fee" json:"borrowing_fee"`
	Status       Status          `db:"status" json:"status"`
	store.Audit
}

// BookInput is the editable part of a book.
type BookInput struct {
	Title        string          `json:"title" validate:"required,max=100"`
	Author       string          `json:"author" validate:"required,max=100"`
	Category     string          `json:"category" validate:"required"`
	Quantity     int             `json:"quantity" validate:"gte=0"`
	BorrowingFee decimal.Decimal `json:"borrowing_fee" validate:"gt=0"`
}

// Category is one entry of the fixed category list.
type Category struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var categories = []Category{
	{"adventure", "Adventure"},
	{"art", "Art/Photography"},
	{"biography", "Biography"},
	{"children", "Children"},
	{"cooking", "Cooking/Culinary"},
	{"diy", "DIY/Crafts"},
	{"drama", "Drama"},
	{"economics", "Economics"},
	{"education", "Education/Academic"},
	{"environmental", "Environmental"},
	{"fantasy", "Fantasy"},
	{"fashion", "Fashion"},
	{"fiction", "Fiction"},
	{"gardening", "Gardening"},
	{"graphic-novels", "Graphic Novels/Comics"},
	{"health", "Health & Wellness"},
	{"history", "History"},
	{"horror", "Horror"},
	{"humor", "Humor"},
	{"legal", "Legal"},
	{"memoirs", "Memoirs"},
	{"mystery", "Mystery/Crime"},
	{"music", "Music"},
	{"non-fiction", "Non-Fiction"},
	{"other", "Other"},
	{"pets", "Pets/Animals"},
	{"philosophy", "Philosophy"},
	{"poetry", "Poetry"},
	{"psychology", "Psychology"},
	{"religion", "Religion"},
	{"romance", "Romance"},
	{"science", "Science"},
	{"sci-fi", "Science Fiction"},
	{"self-help", "Self-Help"},
	{"spirituality", "Spirituality"},
	{"sports", "Sports"},
	{"technology", "Technology"},
	{"thriller", "Thriller/Suspense"},
	{"travel", "Travel"},
	{"war", "War/Military"},
}

var categorySet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		m[c.Value] = struct{}{}
	}
	return m
}()

// Categories returns the fixed category list in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func IsCategory(value string) bool {
	_, ok := categorySet[value]
	return ok
}
