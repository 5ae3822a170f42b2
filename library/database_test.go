package library

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	db, err := NewDatabase(DatabaseConfig{Path: filepath.Join(dir, "test.db")})
	require.NoError(t, err, "new db")
	t.Cleanup(func() { db.Close() })
	return db
}

func addBook(t *testing.T, db *Database, name, isbn string) *Book {
	t.Helper()
	b, err := db.AddBook(context.Background(), BookInput{Name: &name, ISBN: &isbn})
	require.NoError(t, err, "add book")
	return b
}

func addMember(t *testing.T, db *Database, name, email string) *User {
	t.Helper()
	u, err := db.AddUser(context.Background(), UserInput{Name: &name, Email: &email, Password: lo.ToPtr("secret")})
	require.NoError(t, err, "add member")
	return u
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.db")
	db, err := NewDatabase(DatabaseConfig{Path: path})
	require.NoError(t, err)
	addBook(t, db, "Dune", "9780441013593")
	require.NoError(t, db.Close())

	db, err = NewDatabase(DatabaseConfig{Path: path})
	require.NoError(t, err)
	defer db.Close()
	books, err := db.ListBooks(context.Background(), BookFilter{})
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)

	_, err = NewDatabase(DatabaseConfig{Driver: DriverPostgres})
	assert.Error(t, err, "postgres without dsn")
}

func TestBookCRUD(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)

	author, err := db.AddAuthor(ctx, AuthorInput{Name: lo.ToPtr("George Orwell")})
	require.NoError(t, err)
	genre, err := db.AddGenre(ctx, GenreInput{Name: lo.ToPtr("Dystopia")})
	require.NoError(t, err)

	b, err := db.AddBook(ctx, BookInput{
		Name:     lo.ToPtr("1984"),
		ISBN:     lo.ToPtr("9780451524935"),
		AuthorID: &author.ID,
		GenreID:  &genre.ID,
		Summary:  lo.ToPtr("Big Brother is watching"),
	})
	require.NoError(t, err)
	assert.True(t, b.IsAvailable, "new books default to available")
	require.NotNil(t, b.Author)
	assert.Equal(t, "George Orwell", b.Author.Name)
	require.NotNil(t, b.Genre)
	assert.Equal(t, "Dystopia", b.Genre.Name)

	updated, err := db.UpdateBook(ctx, b.ID, BookInput{Summary: lo.ToPtr("Newspeak"), GenreID: lo.ToPtr("")})
	require.NoError(t, err)
	assert.Equal(t, "Newspeak", updated.Summary)
	assert.Equal(t, "1984", updated.Name, "untouched fields keep their value")
	assert.Nil(t, updated.GenreID, "empty genre id clears the reference")
	assert.Nil(t, updated.Genre)

	deleted, err := db.DeleteBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, deleted.ID)

	_, err = db.GetBook(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddBookValidation(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)

	_, err := db.AddBook(ctx, BookInput{ISBN: lo.ToPtr("123")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = db.AddBook(ctx, BookInput{Name: lo.ToPtr("No ISBN")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = db.AddBook(ctx, BookInput{Name: lo.ToPtr("Ghost"), ISBN: lo.ToPtr("1"), AuthorID: lo.ToPtr("missing")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.UpdateBook(ctx, "missing", BookInput{Name: lo.ToPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndSearchBooks(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)

	addBook(t, db, "The Hobbit", "9780547928227")
	addBook(t, db, "Animal Farm", "9780451526342")
	lent := addBook(t, db, "The Two Towers", "9780547928203")
	member := addMember(t, db, "Alice", "alice@example.com")

	_, err := db.CheckoutBook(ctx, &Borrowal{ID: "br-1", BookID: lent.ID, MemberID: member.ID, Status: StatusBorrowed})
	require.NoError(t, err)

	all, err := db.ListBooks(ctx, BookFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	available, err := db.ListBooks(ctx, BookFilter{AvailableOnly: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"The Hobbit", "Animal Farm"}, lo.Map(available, func(b *Book, _ int) string { return b.Name }))

	res, err := db.SearchBooks(ctx, "the")
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = db.SearchBooks(ctx, "928227")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "The Hobbit", res[0].Name)

	res, err = db.SearchBooks(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestDeleteAuthorAndGenreClearReferences(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)

	author, err := db.AddAuthor(ctx, AuthorInput{Name: lo.ToPtr("Tolkien")})
	require.NoError(t, err)
	genre, err := db.AddGenre(ctx, GenreInput{Name: lo.ToPtr("Fantasy")})
	require.NoError(t, err)
	b, err := db.AddBook(ctx, BookInput{Name: lo.ToPtr("The Hobbit"), ISBN: lo.ToPtr("1"), AuthorID: &author.ID, GenreID: &genre.ID})
	require.NoError(t, err)

	_, err = db.DeleteAuthor(ctx, author.ID)
	require.NoError(t, err)
	_, err = db.DeleteGenre(ctx, genre.ID)
	require.NoError(t, err)

	got, err := db.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AuthorID)
	assert.Nil(t, got.GenreID)

	_, err = db.DeleteAuthor(ctx, author.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthorAndGenreUpdates(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)

	a, err := db.AddAuthor(ctx, AuthorInput{Name: lo.ToPtr("Anon"), PhotoURL: lo.ToPtr("/uploads/a.png")})
	require.NoError(t, err)
	a, err = db.UpdateAuthor(ctx, a.ID, AuthorInput{Name: lo.ToPtr("Homer")})
	require.NoError(t, err)
	assert.Equal(t, "Homer", a.Name)
	assert.Equal(t, "/uploads/a.png", a.PhotoURL)

	_, err = db.UpdateAuthor(ctx, a.ID, AuthorInput{Name: lo.ToPtr(" ")})
	assert.ErrorIs(t, err, ErrValidation)

	g, err := db.AddGenre(ctx, GenreInput{Name: lo.ToPtr("Epic")})
	require.NoError(t, err)
	g, err = db.UpdateGenre(ctx, g.ID, GenreInput{Name: lo.ToPtr("Epic poetry")})
	require.NoError(t, err)
	assert.Equal(t, "Epic poetry", g.Name)

	_, err = db.AddGenre(ctx, GenreInput{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = db.UpdateGenre(ctx, "missing", GenreInput{Name: lo.ToPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLockBorrowalSelect(t *testing.T) {
	pg := &Database{driver: DriverPostgres, builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
	query, args, err := pg.lockBorrowalSelect("br-1").ToSql()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(query, "FOR UPDATE OF br"), query)
	assert.Contains(t, query, "br.id = $1")
	assert.Equal(t, []any{"br-1"}, args)

	lite := &Database{driver: DriverSQLite, builder: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	query, _, err = lite.lockBorrowalSelect("br-1").ToSql()
	require.NoError(t, err)
	assert.NotContains(t, query, "FOR UPDATE")
}

func TestCheckoutFlow(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)
	book := addBook(t, db, "Book", "1")
	member := addMember(t, db, "Alice", "alice@example.com")

	br, err := db.CheckoutBook(ctx, &Borrowal{ID: "br-1", BookID: book.ID, MemberID: member.ID, Status: StatusBorrowed})
	require.NoError(t, err)
	assert.Equal(t, "Book", br.BookName)
	assert.Equal(t, "Alice", br.MemberName)

	got, _ := db.GetBook(ctx, book.ID)
	assert.False(t, got.IsAvailable)

	// A second loan of the same book is refused.
	_, err = db.CheckoutBook(ctx, &Borrowal{ID: "br-2", BookID: book.ID, MemberID: member.ID, Status: StatusBorrowed})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = db.DeleteBorrowal(ctx, "br-1")
	require.NoError(t, err)
	got, _ = db.GetBook(ctx, book.ID)
	assert.True(t, got.IsAvailable)
}

func TestDeleteBookOnLoan(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)
	book := addBook(t, db, "Book", "1")
	member := addMember(t, db, "Alice", "alice@example.com")

	_, err := db.CheckoutBook(ctx, &Borrowal{ID: "br-1", BookID: book.ID, MemberID: member.ID, Status: StatusBorrowed})
	require.NoError(t, err)

	_, err = db.DeleteBook(ctx, book.ID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = db.DeleteUser(ctx, member.ID)
	assert.ErrorIs(t, err, ErrConflict)

	status := StatusReturned
	_, err = db.UpdateBorrowal(ctx, "br-1", BorrowalChanges{Status: &status})
	require.NoError(t, err)

	_, err = db.DeleteBook(ctx, book.ID)
	require.NoError(t, err, "returned loans do not block deletion")
	_, err = db.GetBorrowal(ctx, "br-1")
	assert.ErrorIs(t, err, ErrNotFound, "history goes with the book")
}
