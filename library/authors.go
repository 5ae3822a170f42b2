package library

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

func (d *Database) authorSelect() sq.SelectBuilder {
	return d.builder.Select("id", "name", "photo_url").From("authors")
}

func scanAuthor(row rowScanner) (*Author, error) {
	var a Author
	if err := row.Scan(&a.ID, &a.Name, &a.PhotoURL); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAuthors returns all authors ordered by name.
func (d *Database) ListAuthors(ctx context.Context) ([]*Author, error) {
	rows, err := queryBuilt(ctx, d.db, d.authorSelect().OrderBy("name", "id"))
	if err != nil {
		return nil, storageErr("list authors", err)
	}
	defer rows.Close()

	authors := []*Author{}
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, storageErr("list authors", err)
		}
		authors = append(authors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list authors", err)
	}
	return authors, nil
}

// GetAuthor fetches a single author.
func (d *Database) GetAuthor(ctx context.Context, id string) (*Author, error) {
	return d.getAuthor(ctx, d.db, id)
}

func (d *Database) getAuthor(ctx context.Context, q querier, id string) (*Author, error) {
	row, err := queryRowBuilt(ctx, q, d.authorSelect().Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, storageErr("get author", err)
	}
	a, err := scanAuthor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundErr("author", id)
	}
	if err != nil {
		return nil, storageErr("get author", err)
	}
	return a, nil
}

// AddAuthor inserts an author.
func (d *Database) AddAuthor(ctx context.Context, in AuthorInput) (*Author, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, validationErr("author name is required")
	}
	a := &Author{ID: uuid.NewString(), Name: strings.TrimSpace(*in.Name), PhotoURL: deref(in.PhotoURL)}
	ins := d.builder.Insert("authors").Columns("id", "name", "photo_url").Values(a.ID, a.Name, a.PhotoURL)
	if _, err := execBuilt(ctx, d.db, ins); err != nil {
		return nil, storageErr("add author", err)
	}
	return a, nil
}

// UpdateAuthor applies the non-nil fields of in.
func (d *Database) UpdateAuthor(ctx context.Context, id string, in AuthorInput) (*Author, error) {
	set := map[string]any{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, validationErr("author name cannot be empty")
		}
		set["name"] = strings.TrimSpace(*in.Name)
	}
	if in.PhotoURL != nil {
		set["photo_url"] = *in.PhotoURL
	}

	var author *Author
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := d.getAuthor(ctx, tx, id); err != nil {
			return err
		}
		if len(set) > 0 {
			if _, err := execBuilt(ctx, tx, d.builder.Update("authors").SetMap(set).Where(sq.Eq{"id": id})); err != nil {
				return storageErr("update author", err)
			}
		}
		var err error
		author, err = d.getAuthor(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return author, nil
}

// DeleteAuthor removes an author; books referencing it lose the reference.
func (d *Database) DeleteAuthor(ctx context.Context, id string) (*Author, error) {
	var author *Author
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if author, err = d.getAuthor(ctx, tx, id); err != nil {
			return err
		}
		if _, err := execBuilt(ctx, tx, d.builder.Update("books").Set("author_id", nil).Where(sq.Eq{"author_id": id})); err != nil {
			return storageErr("delete author", err)
		}
		if _, err := execBuilt(ctx, tx, d.builder.Delete("authors").Where(sq.Eq{"id": id})); err != nil {
			return storageErr("delete author", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return author, nil
}
