package library

import (
	"context"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CatalogEntry is one book in an import file. Authors and genres are named,
// not referenced by id, and are created on first use.
type CatalogEntry struct {
	Name    string `json:"name"`
	ISBN    string `json:"isbn"`
	Author  string `json:"author"`
	Genre   string `json:"genre"`
	Summary string `json:"summary"`
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Imported []*Book
	Failed   map[string]error
}

// ImportCatalog reads a JSON array of CatalogEntry from r and adds each book.
// One bad entry does not stop the run; its error is reported in Failed keyed
// by book name.
func (lm *LibraryManager) ImportCatalog(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var entries []CatalogEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	authors, err := lm.ListAuthors(ctx)
	if err != nil {
		return nil, err
	}
	genres, err := lm.ListGenres(ctx)
	if err != nil {
		return nil, err
	}
	authorIDs := lo.SliceToMap(authors, func(a *Author) (string, string) { return strings.ToLower(a.Name), a.ID })
	genreIDs := lo.SliceToMap(genres, func(g *Genre) (string, string) { return strings.ToLower(g.Name), g.ID })

	res := &ImportResult{Failed: map[string]error{}}
	for _, e := range entries {
		in := BookInput{Name: lo.ToPtr(e.Name), ISBN: lo.ToPtr(e.ISBN), Summary: lo.ToPtr(e.Summary)}

		if name := strings.TrimSpace(e.Author); name != "" {
			id, ok := authorIDs[strings.ToLower(name)]
			if !ok {
				a, err := lm.AddAuthor(ctx, AuthorInput{Name: &name})
				if err != nil {
					res.Failed[e.Name] = err
					continue
				}
				id = a.ID
				authorIDs[strings.ToLower(name)] = id
			}
			in.AuthorID = &id
		}

		if name := strings.TrimSpace(e.Genre); name != "" {
			id, ok := genreIDs[strings.ToLower(name)]
			if !ok {
				g, err := lm.AddGenre(ctx, GenreInput{Name: &name})
				if err != nil {
					res.Failed[e.Name] = err
					continue
				}
				id = g.ID
				genreIDs[strings.ToLower(name)] = id
			}
			in.GenreID = &id
		}

		b, err := lm.AddBook(ctx, in)
		if err != nil {
			res.Failed[e.Name] = err
			continue
		}
		res.Imported = append(res.Imported, b)
	}
	return res, nil
}
