package library

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// bookSelect joins the optional author and genre so list views need one query.
func (d *Database) bookSelect() sq.SelectBuilder {
	return d.builder.Select(
		"b.id", "b.name", "b.isbn", "b.author_id", "b.genre_id", "b.is_available",
		"b.summary", "b.photo_url", "b.pdf_url",
		"a.name", "a.photo_url", "g.name",
	).
		From("books b").
		LeftJoin("authors a ON a.id = b.author_id").
		LeftJoin("genres g ON g.id = b.genre_id")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*Book, error) {
	var (
		b                              Book
		authorID, genreID              sql.NullString
		authorName, authorPhoto, gName sql.NullString
	)
	if err := row.Scan(&b.ID, &b.Name, &b.ISBN, &authorID, &genreID, &b.IsAvailable,
		&b.Summary, &b.PhotoURL, &b.PDFURL, &authorName, &authorPhoto, &gName); err != nil {
		return nil, err
	}
	b.AuthorID = stringPtr(authorID)
	b.GenreID = stringPtr(genreID)
	if authorID.Valid && authorName.Valid {
		b.Author = &Author{ID: authorID.String, Name: authorName.String, PhotoURL: authorPhoto.String}
	}
	if genreID.Valid && gName.Valid {
		b.Genre = &Genre{ID: genreID.String, Name: gName.String}
	}
	return &b, nil
}

func collectBooks(rows *sql.Rows) ([]*Book, error) {
	defer rows.Close()
	books := []*Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// BookFilter narrows ListBooks.
type BookFilter struct {
	AvailableOnly bool
}

// ListBooks returns books with their author and genre resolved.
func (d *Database) ListBooks(ctx context.Context, filter BookFilter) ([]*Book, error) {
	q := d.bookSelect().OrderBy("b.name", "b.id")
	if filter.AvailableOnly {
		q = q.Where(sq.Eq{"b.is_available": true})
	}
	rows, err := queryBuilt(ctx, d.db, q)
	if err != nil {
		return nil, storageErr("list books", err)
	}
	books, err := collectBooks(rows)
	if err != nil {
		return nil, storageErr("list books", err)
	}
	return books, nil
}

// SearchBooks does a case-insensitive substring match on name, isbn and summary.
func (d *Database) SearchBooks(ctx context.Context, term string) ([]*Book, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return []*Book{}, nil
	}
	pattern := "%" + term + "%"
	q := d.bookSelect().
		Where(sq.Or{
			sq.Like{"LOWER(b.name)": pattern},
			sq.Like{"LOWER(b.isbn)": pattern},
			sq.Like{"LOWER(b.summary)": pattern},
		}).
		OrderBy("b.name", "b.id")
	rows, err := queryBuilt(ctx, d.db, q)
	if err != nil {
		return nil, storageErr("search books", err)
	}
	books, err := collectBooks(rows)
	if err != nil {
		return nil, storageErr("search books", err)
	}
	return books, nil
}

// GetBook fetches a single book.
func (d *Database) GetBook(ctx context.Context, id string) (*Book, error) {
	return d.getBook(ctx, d.db, id)
}

func (d *Database) getBook(ctx context.Context, q querier, id string) (*Book, error) {
	row, err := queryRowBuilt(ctx, q, d.bookSelect().Where(sq.Eq{"b.id": id}))
	if err != nil {
		return nil, storageErr("get book", err)
	}
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundErr("book", id)
	}
	if err != nil {
		return nil, storageErr("get book", err)
	}
	return b, nil
}

// checkBookRefs verifies that the author and genre a book points to exist.
func (d *Database) checkBookRefs(ctx context.Context, q querier, in BookInput) error {
	refs := []struct {
		table, kind string
		id          *string
	}{
		{"authors", "author", in.AuthorID},
		{"genres", "genre", in.GenreID},
	}
	for _, ref := range refs {
		if ref.id == nil || *ref.id == "" {
			continue
		}
		ok, err := d.exists(ctx, q, ref.table, *ref.id)
		if err != nil {
			return storageErr("check "+ref.kind, err)
		}
		if !ok {
			return notFoundErr(ref.kind, *ref.id)
		}
	}
	return nil
}

// AddBook validates and inserts a book. New books are always available.
func (d *Database) AddBook(ctx context.Context, in BookInput) (*Book, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, validationErr("book name is required")
	}
	if in.ISBN == nil || strings.TrimSpace(*in.ISBN) == "" {
		return nil, validationErr("book isbn is required")
	}

	id := uuid.NewString()

	var book *Book
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		if err := d.checkBookRefs(ctx, tx, in); err != nil {
			return err
		}
		ins := d.builder.Insert("books").
			Columns("id", "name", "isbn", "author_id", "genre_id", "is_available", "summary", "photo_url", "pdf_url").
			Values(id, strings.TrimSpace(*in.Name), strings.TrimSpace(*in.ISBN), nullString(in.AuthorID), nullString(in.GenreID),
				true, deref(in.Summary), deref(in.PhotoURL), deref(in.PDFURL))
		if _, err := execBuilt(ctx, tx, ins); err != nil {
			return storageErr("add book", err)
		}
		var err error
		book, err = d.getBook(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// UpdateBook applies the non-nil fields of in. An empty author or genre id
// clears the reference.
func (d *Database) UpdateBook(ctx context.Context, id string, in BookInput) (*Book, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, validationErr("book name cannot be empty")
	}
	if in.ISBN != nil && strings.TrimSpace(*in.ISBN) == "" {
		return nil, validationErr("book isbn cannot be empty")
	}

	set := map[string]any{}
	if in.Name != nil {
		set["name"] = strings.TrimSpace(*in.Name)
	}
	if in.ISBN != nil {
		set["isbn"] = strings.TrimSpace(*in.ISBN)
	}
	if in.AuthorID != nil {
		set["author_id"] = nullString(in.AuthorID)
	}
	if in.GenreID != nil {
		set["genre_id"] = nullString(in.GenreID)
	}
	if in.Summary != nil {
		set["summary"] = *in.Summary
	}
	if in.PhotoURL != nil {
		set["photo_url"] = *in.PhotoURL
	}
	if in.PDFURL != nil {
		set["pdf_url"] = *in.PDFURL
	}

	var book *Book
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := d.exists(ctx, tx, "books", id)
		if err != nil {
			return storageErr("update book", err)
		}
		if !ok {
			return notFoundErr("book", id)
		}
		if err := d.checkBookRefs(ctx, tx, in); err != nil {
			return err
		}
		if len(set) > 0 {
			if _, err := execBuilt(ctx, tx, d.builder.Update("books").SetMap(set).Where(sq.Eq{"id": id})); err != nil {
				return storageErr("update book", err)
			}
		}
		book, err = d.getBook(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// DeleteBook removes a book and its closed borrowal history and returns the
// deleted record. A book that is currently on loan cannot be deleted.
func (d *Database) DeleteBook(ctx context.Context, id string) (*Book, error) {
	var book *Book
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if book, err = d.getBook(ctx, tx, id); err != nil {
			return err
		}
		open, err := d.countOpenBorrowals(ctx, tx, sq.Eq{"book_id": id})
		if err != nil {
			return storageErr("delete book", err)
		}
		if open > 0 {
			return conflictErr("book %s is on loan", id)
		}
		if _, err := execBuilt(ctx, tx, d.builder.Delete("borrowals").Where(sq.Eq{"book_id": id})); err != nil {
			return storageErr("delete book", err)
		}
		if _, err := execBuilt(ctx, tx, d.builder.Delete("books").Where(sq.Eq{"id": id})); err != nil {
			return storageErr("delete book", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// setBookAvailable flips the availability flag only if it currently holds the
// opposite value. It reports whether a row changed.
func (d *Database) setBookAvailable(ctx context.Context, q querier, bookID string, available bool) (bool, error) {
	res, err := execBuilt(ctx, q, d.builder.Update("books").
		Set("is_available", available).
		Where(sq.Eq{"id": bookID, "is_available": !available}))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
