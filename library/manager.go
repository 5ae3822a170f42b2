package library

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// DefaultLoanPeriod is the due date offset applied when none is given.
const DefaultLoanPeriod = 14 * 24 * time.Hour

var validStatuses = []string{StatusBorrowed, StatusReturned, StatusOverdue}

// LibraryManager is a thin façade over the Database that owns the borrowal
// rules and the caller's identity checks.
type LibraryManager struct {
	db         *Database
	log        logrus.FieldLogger
	now        func() time.Time
	loanPeriod time.Duration
}

// Option configures a LibraryManager.
type Option func(*LibraryManager)

// WithLogger sets the logger. The standard logrus logger is used otherwise.
func WithLogger(l logrus.FieldLogger) Option {
	return func(lm *LibraryManager) { lm.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(lm *LibraryManager) { lm.now = now }
}

// WithLoanPeriod overrides DefaultLoanPeriod.
func WithLoanPeriod(d time.Duration) Option {
	return func(lm *LibraryManager) {
		if d > 0 {
			lm.loanPeriod = d
		}
	}
}

// NewLibraryManager opens (or creates) the database described by cfg.
func NewLibraryManager(cfg DatabaseConfig, opts ...Option) (*LibraryManager, error) {
	db, err := NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	lm := &LibraryManager{
		db:         db,
		log:        logrus.StandardLogger(),
		now:        time.Now,
		loanPeriod: DefaultLoanPeriod,
	}
	for _, opt := range opts {
		opt(lm)
	}
	return lm, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// Ping checks the database connection.
func (lm *LibraryManager) Ping(ctx context.Context) error { return lm.db.Ping(ctx) }

// ------------------ Book helpers ------------------

func (lm *LibraryManager) ListBooks(ctx context.Context, f BookFilter) ([]*Book, error) {
	return lm.db.ListBooks(ctx, f)
}

func (lm *LibraryManager) SearchBooks(ctx context.Context, q string) ([]*Book, error) {
	return lm.db.SearchBooks(ctx, q)
}

func (lm *LibraryManager) GetBook(ctx context.Context, id string) (*Book, error) {
	return lm.db.GetBook(ctx, id)
}

func (lm *LibraryManager) AddBook(ctx context.Context, in BookInput) (*Book, error) {
	b, err := lm.db.AddBook(ctx, in)
	if err != nil {
		return nil, err
	}
	lm.log.WithFields(logrus.Fields{"book_id": b.ID, "isbn": b.ISBN}).Info("book added")
	return b, nil
}

func (lm *LibraryManager) UpdateBook(ctx context.Context, id string, in BookInput) (*Book, error) {
	return lm.db.UpdateBook(ctx, id, in)
}

func (lm *LibraryManager) DeleteBook(ctx context.Context, id string) (*Book, error) {
	b, err := lm.db.DeleteBook(ctx, id)
	if err != nil {
		return nil, err
	}
	lm.log.WithField("book_id", id).Info("book deleted")
	return b, nil
}

// ------------------ Author helpers ------------------

func (lm *LibraryManager) ListAuthors(ctx context.Context) ([]*Author, error) {
	return lm.db.ListAuthors(ctx)
}

func (lm *LibraryManager) GetAuthor(ctx context.Context, id string) (*Author, error) {
	return lm.db.GetAuthor(ctx, id)
}

func (lm *LibraryManager) AddAuthor(ctx context.Context, in AuthorInput) (*Author, error) {
	return lm.db.AddAuthor(ctx, in)
}

func (lm *LibraryManager) UpdateAuthor(ctx context.Context, id string, in AuthorInput) (*Author, error) {
	return lm.db.UpdateAuthor(ctx, id, in)
}

func (lm *LibraryManager) DeleteAuthor(ctx context.Context, id string) (*Author, error) {
	return lm.db.DeleteAuthor(ctx, id)
}

// ------------------ Genre helpers ------------------

func (lm *LibraryManager) ListGenres(ctx context.Context) ([]*Genre, error) {
	return lm.db.ListGenres(ctx)
}

func (lm *LibraryManager) GetGenre(ctx context.Context, id string) (*Genre, error) {
	return lm.db.GetGenre(ctx, id)
}

func (lm *LibraryManager) AddGenre(ctx context.Context, in GenreInput) (*Genre, error) {
	return lm.db.AddGenre(ctx, in)
}

func (lm *LibraryManager) UpdateGenre(ctx context.Context, id string, in GenreInput) (*Genre, error) {
	return lm.db.UpdateGenre(ctx, id, in)
}

func (lm *LibraryManager) DeleteGenre(ctx context.Context, id string) (*Genre, error) {
	return lm.db.DeleteGenre(ctx, id)
}

// ------------------ User helpers ------------------

func (lm *LibraryManager) ListUsers(ctx context.Context) ([]*User, error) {
	return lm.db.ListUsers(ctx, false)
}

// ListMembers returns non-admin users.
func (lm *LibraryManager) ListMembers(ctx context.Context) ([]*User, error) {
	return lm.db.ListUsers(ctx, true)
}

func (lm *LibraryManager) GetUser(ctx context.Context, id string) (*User, error) {
	return lm.db.GetUser(ctx, id)
}

func (lm *LibraryManager) AddUser(ctx context.Context, in UserInput) (*User, error) {
	u, err := lm.db.AddUser(ctx, in)
	if err != nil {
		return nil, err
	}
	lm.log.WithFields(logrus.Fields{"user_id": u.ID, "admin": u.IsAdmin}).Info("user added")
	return u, nil
}

func (lm *LibraryManager) UpdateUser(ctx context.Context, id string, in UserInput) (*User, error) {
	return lm.db.UpdateUser(ctx, id, in)
}

func (lm *LibraryManager) DeleteUser(ctx context.Context, id string) (*User, error) {
	u, err := lm.db.DeleteUser(ctx, id)
	if err != nil {
		return nil, err
	}
	lm.log.WithField("user_id", id).Info("user deleted")
	return u, nil
}

// Authenticate resolves credentials to a Principal.
func (lm *LibraryManager) Authenticate(ctx context.Context, email, password string) (Principal, error) {
	u, err := lm.db.Authenticate(ctx, email, password)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: u.ID, IsAdmin: u.IsAdmin}, nil
}

// ------------------ Circulation ------------------

func checkStatus(status string) error {
	if !slices.Contains(validStatuses, status) {
		return validationErr("status must be one of %s", strings.Join(validStatuses, ", "))
	}
	return nil
}

// CreateBorrowal lends a book. Members may only borrow for themselves. Missing
// dates default to now and now plus the loan period; status defaults to
// "borrowed" and must describe an open loan.
func (lm *LibraryManager) CreateBorrowal(ctx context.Context, p Principal, in BorrowalInput) (*Borrowal, error) {
	bookID := strings.TrimSpace(deref(in.BookID))
	memberID := strings.TrimSpace(deref(in.MemberID))
	if bookID == "" || memberID == "" {
		return nil, validationErr("bookId and memberId are required")
	}
	if !p.IsAdmin && p.UserID != memberID {
		return nil, fmt.Errorf("members can only borrow for themselves: %w", ErrForbidden)
	}

	b := &Borrowal{
		ID:           uuid.NewString(),
		BookID:       bookID,
		MemberID:     memberID,
		BorrowedDate: lm.now(),
		Status:       StatusBorrowed,
	}
	if in.BorrowedDate != nil {
		b.BorrowedDate = *in.BorrowedDate
	}
	b.DueDate = b.BorrowedDate.Add(lm.loanPeriod)
	if in.DueDate != nil {
		b.DueDate = *in.DueDate
	}
	if in.Status != nil && *in.Status != "" {
		b.Status = *in.Status
	}
	if err := checkStatus(b.Status); err != nil {
		return nil, err
	}
	if !b.IsOpen() {
		return nil, validationErr("a new borrowal cannot start as %q", StatusReturned)
	}
	if b.DueDate.Before(b.BorrowedDate) {
		return nil, validationErr("dueDate is before borrowedDate")
	}

	created, err := lm.db.CheckoutBook(ctx, b)
	if err != nil {
		return nil, err
	}
	created.annotate(lm.now())
	lm.log.WithFields(logrus.Fields{
		"borrowal_id": created.ID,
		"book_id":     created.BookID,
		"member_id":   created.MemberID,
		"due":         created.DueDate.Format(time.DateOnly),
	}).Info("book borrowed")
	return created, nil
}

// UpdateBorrowal changes dates or status. Book and member cannot be changed.
func (lm *LibraryManager) UpdateBorrowal(ctx context.Context, p Principal, id string, in BorrowalInput) (*Borrowal, error) {
	if !p.IsAdmin {
		return nil, fmt.Errorf("only librarians can update borrowals: %w", ErrForbidden)
	}
	if in.Status != nil {
		if err := checkStatus(*in.Status); err != nil {
			return nil, err
		}
	}

	if in.BookID != nil || in.MemberID != nil {
		current, err := lm.db.GetBorrowal(ctx, id)
		if err != nil {
			return nil, err
		}
		if in.BookID != nil && *in.BookID != current.BookID {
			return nil, validationErr("bookId of a borrowal cannot be changed")
		}
		if in.MemberID != nil && *in.MemberID != current.MemberID {
			return nil, validationErr("memberId of a borrowal cannot be changed")
		}
	}

	updated, err := lm.db.UpdateBorrowal(ctx, id, BorrowalChanges{
		BorrowedDate: in.BorrowedDate,
		DueDate:      in.DueDate,
		Status:       in.Status,
	})
	if err != nil {
		return nil, err
	}
	updated.annotate(lm.now())
	lm.log.WithFields(logrus.Fields{"borrowal_id": id, "status": updated.Status}).Info("borrowal updated")
	return updated, nil
}

// ReturnBorrowal closes a loan and releases the book.
func (lm *LibraryManager) ReturnBorrowal(ctx context.Context, p Principal, id string) (*Borrowal, error) {
	status := StatusReturned
	return lm.UpdateBorrowal(ctx, p, id, BorrowalInput{Status: &status})
}

// DeleteBorrowal removes a borrowal; an open loan releases its book.
func (lm *LibraryManager) DeleteBorrowal(ctx context.Context, p Principal, id string) (*Borrowal, error) {
	if !p.IsAdmin {
		return nil, fmt.Errorf("only librarians can delete borrowals: %w", ErrForbidden)
	}
	deleted, err := lm.db.DeleteBorrowal(ctx, id)
	if err != nil {
		return nil, err
	}
	deleted.annotate(lm.now())
	lm.log.WithFields(logrus.Fields{"borrowal_id": id, "book_id": deleted.BookID}).Info("borrowal deleted")
	return deleted, nil
}

// ListBorrowals returns every borrowal for librarians and only the caller's
// own borrowals for members.
func (lm *LibraryManager) ListBorrowals(ctx context.Context, p Principal) ([]*Borrowal, error) {
	memberID := ""
	if !p.IsAdmin {
		memberID = p.UserID
	}
	borrowals, err := lm.db.ListBorrowals(ctx, memberID)
	if err != nil {
		return nil, err
	}
	now := lm.now()
	return lo.Map(borrowals, func(b *Borrowal, _ int) *Borrowal {
		b.annotate(now)
		return b
	}), nil
}

// GetBorrowal fetches one borrowal. A member asking for someone else's
// borrowal gets ErrNotFound.
func (lm *LibraryManager) GetBorrowal(ctx context.Context, p Principal, id string) (*Borrowal, error) {
	b, err := lm.db.GetBorrowal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin && b.MemberID != p.UserID {
		return nil, notFoundErr("borrowal", id)
	}
	b.annotate(lm.now())
	return b, nil
}

// OverdueBorrowals lists open loans past their due date.
func (lm *LibraryManager) OverdueBorrowals(ctx context.Context, p Principal) ([]*Borrowal, error) {
	all, err := lm.ListBorrowals(ctx, p)
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(b *Borrowal, _ int) bool { return b.Overdue }), nil
}
