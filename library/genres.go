package library

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

func (d *Database) genreSelect() sq.SelectBuilder {
	return d.builder.Select("id", "name").From("genres")
}

// ListGenres returns all genres ordered by name.
func (d *Database) ListGenres(ctx context.Context) ([]*Genre, error) {
	rows, err := queryBuilt(ctx, d.db, d.genreSelect().OrderBy("name", "id"))
	if err != nil {
		return nil, storageErr("list genres", err)
	}
	defer rows.Close()

	genres := []*Genre{}
	for rows.Next() {
		var g Genre
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, storageErr("list genres", err)
		}
		genres = append(genres, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list genres", err)
	}
	return genres, nil
}

// GetGenre fetches a single genre.
func (d *Database) GetGenre(ctx context.Context, id string) (*Genre, error) {
	return d.getGenre(ctx, d.db, id)
}

func (d *Database) getGenre(ctx context.Context, q querier, id string) (*Genre, error) {
	row, err := queryRowBuilt(ctx, q, d.genreSelect().Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, storageErr("get genre", err)
	}
	var g Genre
	err = row.Scan(&g.ID, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundErr("genre", id)
	}
	if err != nil {
		return nil, storageErr("get genre", err)
	}
	return &g, nil
}

// AddGenre inserts a genre.
func (d *Database) AddGenre(ctx context.Context, in GenreInput) (*Genre, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, validationErr("genre name is required")
	}
	g := &Genre{ID: uuid.NewString(), Name: strings.TrimSpace(*in.Name)}
	if _, err := execBuilt(ctx, d.db, d.builder.Insert("genres").Columns("id", "name").Values(g.ID, g.Name)); err != nil {
		return nil, storageErr("add genre", err)
	}
	return g, nil
}

// UpdateGenre renames a genre.
func (d *Database) UpdateGenre(ctx context.Context, id string, in GenreInput) (*Genre, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, validationErr("genre name cannot be empty")
	}

	var genre *Genre
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := d.getGenre(ctx, tx, id); err != nil {
			return err
		}
		if in.Name != nil {
			upd := d.builder.Update("genres").Set("name", strings.TrimSpace(*in.Name)).Where(sq.Eq{"id": id})
			if _, err := execBuilt(ctx, tx, upd); err != nil {
				return storageErr("update genre", err)
			}
		}
		var err error
		genre, err = d.getGenre(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return genre, nil
}

// DeleteGenre removes a genre; books referencing it lose the reference.
func (d *Database) DeleteGenre(ctx context.Context, id string) (*Genre, error) {
	var genre *Genre
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if genre, err = d.getGenre(ctx, tx, id); err != nil {
			return err
		}
		if _, err := execBuilt(ctx, tx, d.builder.Update("books").Set("genre_id", nil).Where(sq.Eq{"genre_id": id})); err != nil {
			return storageErr("delete genre", err)
		}
		if _, err := execBuilt(ctx, tx, d.builder.Delete("genres").Where(sq.Eq{"id": id})); err != nil {
			return storageErr("delete genre", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return genre, nil
}
