package library

import "time"

// Borrowal statuses. Only StatusReturned closes a loan.
const (
	StatusBorrowed = "borrowed"
	StatusReturned = "returned"
	StatusOverdue  = "overdue"
)

// Book is a catalog entry. IsAvailable is false while an open borrowal
// references the book.
type Book struct {
	ID          string  `json:"_id"`
	Name        string  `json:"name"`
	ISBN        string  `json:"isbn"`
	AuthorID    *string `json:"authorId,omitempty"`
	GenreID     *string `json:"genreId,omitempty"`
	IsAvailable bool    `json:"isAvailable"`
	Summary     string  `json:"summary"`
	PhotoURL    string  `json:"photoUrl"`
	PDFURL      string  `json:"pdfUrl"`

	// Populated on reads.
	Author *Author `json:"author,omitempty"`
	Genre  *Genre  `json:"genre,omitempty"`
}

// Author represents a book author.
type Author struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoUrl"`
}

// Genre represents a book genre.
type Genre struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// User is either a librarian (IsAdmin) or a member.
type User struct {
	ID           string     `json:"_id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	DOB          *time.Time `json:"dob,omitempty"`
	Phone        string     `json:"phone"`
	IsAdmin      bool       `json:"isAdmin"`
	PhotoURL     string     `json:"photoUrl"`
	PasswordHash string     `json:"-"` // Don't serialize password hash
	PasswordSalt string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Borrowal records a book loaned to a member.
type Borrowal struct {
	ID           string    `json:"_id"`
	BookID       string    `json:"bookId"`
	MemberID     string    `json:"memberId"`
	BorrowedDate time.Time `json:"borrowedDate"`
	DueDate      time.Time `json:"dueDate"`
	Status       string    `json:"status"`

	// Populated on reads.
	BookName      string `json:"bookName,omitempty"`
	MemberName    string `json:"memberName,omitempty"`
	Overdue       bool   `json:"overdue"`
	DisplayStatus string `json:"displayStatus,omitempty"`
}

// IsOpen reports whether the loan still holds its book.
func (b *Borrowal) IsOpen() bool { return b.Status != StatusReturned }

// IsOverdue is computed at read time and never persisted.
func (b *Borrowal) IsOverdue(now time.Time) bool {
	return b.IsOpen() && b.DueDate.Before(now)
}

// annotate fills the derived read-time fields.
func (b *Borrowal) annotate(now time.Time) {
	b.Overdue = b.IsOverdue(now)
	b.DisplayStatus = b.Status
	if b.Overdue {
		b.DisplayStatus = StatusOverdue
	}
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// BookInput carries optional fields for create/update; nil means "not set".
// Availability is not part of it: only borrowals change it.
type BookInput struct {
	Name     *string
	ISBN     *string
	AuthorID *string
	GenreID  *string
	Summary  *string
	PhotoURL *string
	PDFURL   *string
}

// AuthorInput carries optional author fields.
type AuthorInput struct {
	Name     *string
	PhotoURL *string
}

// GenreInput carries optional genre fields.
type GenreInput struct {
	Name *string
}

// UserInput carries optional user fields. Password is plaintext and is hashed
// before it is stored.
type UserInput struct {
	Name     *string
	Email    *string
	Password *string
	DOB      *time.Time
	Phone    *string
	IsAdmin  *bool
	PhotoURL *string
}

// BorrowalInput carries optional borrowal fields.
type BorrowalInput struct {
	BookID       *string
	MemberID     *string
	BorrowedDate *time.Time
	DueDate      *time.Time
	Status       *string
}
