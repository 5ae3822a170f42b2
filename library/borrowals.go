package library

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
)

func (d *Database) borrowalSelect() sq.SelectBuilder {
	return d.builder.Select(
		"br.id", "br.book_id", "br.member_id", "br.borrowed_date", "br.due_date", "br.status",
		"COALESCE(b.name, '')", "COALESCE(u.name, '')",
	).
		From("borrowals br").
		LeftJoin("books b ON b.id = br.book_id").
		LeftJoin("users u ON u.id = br.member_id")
}

func scanBorrowal(row rowScanner) (*Borrowal, error) {
	var b Borrowal
	if err := row.Scan(&b.ID, &b.BookID, &b.MemberID, &b.BorrowedDate, &b.DueDate, &b.Status,
		&b.BookName, &b.MemberName); err != nil {
		return nil, err
	}
	return &b, nil
}

func (d *Database) countOpenBorrowals(ctx context.Context, q querier, where sq.Eq) (int, error) {
	var n int
	row, err := queryRowBuilt(ctx, q, d.builder.Select("COUNT(*)").From("borrowals").
		Where(where).
		Where(sq.NotEq{"status": StatusReturned}))
	if err != nil {
		return 0, err
	}
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListBorrowals returns borrowals with book and member names resolved. An
// empty memberID returns every borrowal.
func (d *Database) ListBorrowals(ctx context.Context, memberID string) ([]*Borrowal, error) {
	q := d.borrowalSelect().OrderBy("br.borrowed_date DESC", "br.id")
	if memberID != "" {
		q = q.Where(sq.Eq{"br.member_id": memberID})
	}
	rows, err := queryBuilt(ctx, d.db, q)
	if err != nil {
		return nil, storageErr("list borrowals", err)
	}
	defer rows.Close()

	borrowals := []*Borrowal{}
	for rows.Next() {
		b, err := scanBorrowal(rows)
		if err != nil {
			return nil, storageErr("list borrowals", err)
		}
		borrowals = append(borrowals, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list borrowals", err)
	}
	return borrowals, nil
}

// GetBorrowal fetches a single borrowal.
func (d *Database) GetBorrowal(ctx context.Context, id string) (*Borrowal, error) {
	return d.getBorrowal(ctx, d.db, id)
}

func (d *Database) getBorrowal(ctx context.Context, q querier, id string) (*Borrowal, error) {
	return d.fetchBorrowal(ctx, q, d.borrowalSelect().Where(sq.Eq{"br.id": id}), id)
}

// lockBorrowalSelect selects one borrowal and, on postgres, row-locks it until
// the transaction ends. sqlite transactions already hold the write lock.
func (d *Database) lockBorrowalSelect(id string) sq.SelectBuilder {
	q := d.borrowalSelect().Where(sq.Eq{"br.id": id})
	if d.driver == DriverPostgres {
		q = q.Suffix("FOR UPDATE OF br")
	}
	return q
}

// lockBorrowal reads a borrowal that the surrounding transaction is about to
// change, so its status cannot move underneath the availability update.
func (d *Database) lockBorrowal(ctx context.Context, tx *sql.Tx, id string) (*Borrowal, error) {
	return d.fetchBorrowal(ctx, tx, d.lockBorrowalSelect(id), id)
}

func (d *Database) fetchBorrowal(ctx context.Context, q querier, sel sq.SelectBuilder, id string) (*Borrowal, error) {
	row, err := queryRowBuilt(ctx, q, sel)
	if err != nil {
		return nil, storageErr("get borrowal", err)
	}
	b, err := scanBorrowal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundErr("borrowal", id)
	}
	if err != nil {
		return nil, storageErr("get borrowal", err)
	}
	return b, nil
}

// claimBook marks an existing, available book as on loan. The update is
// conditional on the flag so two concurrent claims cannot both win.
func (d *Database) claimBook(ctx context.Context, q querier, bookID string) error {
	ok, err := d.setBookAvailable(ctx, q, bookID, false)
	if err != nil {
		return storageErr("claim book", err)
	}
	if !ok {
		return conflictErr("book %s is not available", bookID)
	}
	return nil
}

// CheckoutBook records the borrowal and updates availability in one
// transaction. Book and member must exist and the book must be available.
func (d *Database) CheckoutBook(ctx context.Context, b *Borrowal) (*Borrowal, error) {
	var created *Borrowal
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := d.exists(ctx, tx, "books", b.BookID)
		if err != nil {
			return storageErr("checkout", err)
		}
		if !ok {
			return notFoundErr("book", b.BookID)
		}
		if ok, err = d.exists(ctx, tx, "users", b.MemberID); err != nil {
			return storageErr("checkout", err)
		}
		if !ok {
			return notFoundErr("member", b.MemberID)
		}

		if err := d.claimBook(ctx, tx, b.BookID); err != nil {
			return err
		}

		ins := d.builder.Insert("borrowals").
			Columns("id", "book_id", "member_id", "borrowed_date", "due_date", "status").
			Values(b.ID, b.BookID, b.MemberID, utc(b.BorrowedDate), utc(b.DueDate), b.Status)
		if _, err := execBuilt(ctx, tx, ins); err != nil {
			return storageErr("checkout", err)
		}
		created, err = d.getBorrowal(ctx, tx, b.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// BorrowalChanges is a validated partial update.
type BorrowalChanges struct {
	BorrowedDate *time.Time
	DueDate      *time.Time
	Status       *string
}

// UpdateBorrowal applies changes and keeps the book's availability in step
// with the loan: closing a loan releases the book, reopening one claims it.
func (d *Database) UpdateBorrowal(ctx context.Context, id string, ch BorrowalChanges) (*Borrowal, error) {
	var updated *Borrowal
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		current, err := d.lockBorrowal(ctx, tx, id)
		if err != nil {
			return err
		}

		borrowed, due := current.BorrowedDate, current.DueDate
		if ch.BorrowedDate != nil {
			borrowed = *ch.BorrowedDate
		}
		if ch.DueDate != nil {
			due = *ch.DueDate
		}
		if due.Before(borrowed) {
			return validationErr("dueDate is before borrowedDate")
		}

		set := map[string]any{}
		if ch.BorrowedDate != nil {
			set["borrowed_date"] = utc(*ch.BorrowedDate)
		}
		if ch.DueDate != nil {
			set["due_date"] = utc(*ch.DueDate)
		}
		if ch.Status != nil && *ch.Status != current.Status {
			set["status"] = *ch.Status
			wasOpen := current.IsOpen()
			nowOpen := *ch.Status != StatusReturned
			switch {
			case wasOpen && !nowOpen:
				if _, err := d.setBookAvailable(ctx, tx, current.BookID, true); err != nil {
					return storageErr("release book", err)
				}
			case !wasOpen && nowOpen:
				if err := d.claimBook(ctx, tx, current.BookID); err != nil {
					return err
				}
			}
		}

		if len(set) > 0 {
			if _, err := execBuilt(ctx, tx, d.builder.Update("borrowals").SetMap(set).Where(sq.Eq{"id": id})); err != nil {
				return storageErr("update borrowal", err)
			}
		}
		updated, err = d.getBorrowal(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteBorrowal removes a borrowal. If the loan was still open the book is
// made available again in the same transaction.
func (d *Database) DeleteBorrowal(ctx context.Context, id string) (*Borrowal, error) {
	var deleted *Borrowal
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if deleted, err = d.lockBorrowal(ctx, tx, id); err != nil {
			return err
		}
		res, err := execBuilt(ctx, tx, d.builder.Delete("borrowals").Where(sq.Eq{"id": id}))
		if err != nil {
			return storageErr("delete borrowal", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageErr("delete borrowal", err)
		}
		if n == 0 {
			return notFoundErr("borrowal", id)
		}
		if deleted.IsOpen() {
			if _, err := d.setBookAvailable(ctx, tx, deleted.BookID, true); err != nil {
				return storageErr("release book", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
