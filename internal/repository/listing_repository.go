// Package repository contains data access logic separated from HTTP handlers.
// This file defines the MySQL-backed listing repository. Queries are written
// by hand and mapped onto model.Listing through sqlx struct tags.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/apartment-board/internal/model"
)

// ListingRepo encapsulates all database queries related to listings. It
// depends on an sqlx.DB opened against MySQL with parseTime=true and
// clientFoundRows=true, so that UPDATE reports matched rows rather than
// changed rows.
type ListingRepo struct {
	db *sqlx.DB
}

// NewListingRepo constructs a ListingRepo with the provided DB handle.
func NewListingRepo(db *sqlx.DB) *ListingRepo {
	return &ListingRepo{db: db}
}

const listingColumns = "id, move_in_date, street, town, country, post_code, email, security_token, status, posted_at, edited_at"

// Insert stores a new listing and returns the auto-generated id. The id is
// also written back into l.
func (r *ListingRepo) Insert(ctx context.Context, l *model.Listing) (uint64, error) {
	const q = `INSERT INTO apartment
		(move_in_date, street, town, country, post_code, email, security_token, status, posted_at, edited_at)
		VALUES
		(:move_in_date, :street, :town, :country, :post_code, :email, :security_token, :status, :posted_at, :edited_at)`
	res, err := r.db.NamedExecContext(ctx, q, l)
	if err != nil {
		return 0, fmt.Errorf("insert listing: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert listing: last insert id: %w", err)
	}
	l.ID = uint64(id)
	return l.ID, nil
}

// FindByID fetches a listing by id regardless of its status. It returns
// ErrListingNotFound if no row exists.
func (r *ListingRepo) FindByID(ctx context.Context, id uint64) (*model.Listing, error) {
	q := "SELECT " + listingColumns + " FROM apartment WHERE id = ? LIMIT 1"
	var l model.Listing
	if err := r.db.GetContext(ctx, &l, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("find listing %d: %w", id, err)
	}
	return &l, nil
}

// Update persists every column of l except id, security_token and
// posted_at, which never change after creation.
func (r *ListingRepo) Update(ctx context.Context, l *model.Listing) error {
	const q = `UPDATE apartment SET
		move_in_date = :move_in_date,
		street       = :street,
		town         = :town,
		country      = :country,
		post_code    = :post_code,
		email        = :email,
		status       = :status,
		edited_at    = :edited_at
		WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, q, l)
	if err != nil {
		return fmt.Errorf("update listing %d: %w", l.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update listing %d: rows affected: %w", l.ID, err)
	}
	if n == 0 {
		return ErrListingNotFound
	}
	return nil
}

// Remove permanently deletes the listing row.
func (r *ListingRepo) Remove(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM apartment WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove listing %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove listing %d: rows affected: %w", id, err)
	}
	if n == 0 {
		return ErrListingNotFound
	}
	return nil
}

// ListActive returns active listings newest first. A limit of zero or less
// returns every active listing; offset is ignored in that case.
func (r *ListingRepo) ListActive(ctx context.Context, limit, offset int) ([]model.Listing, error) {
	q := "SELECT " + listingColumns + " FROM apartment WHERE status = 1 ORDER BY posted_at DESC, id DESC"
	args := []interface{}{}
	if limit > 0 {
		if offset < 0 {
			return nil, ErrNegativeOffset
		}
		q += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}
	list := []model.Listing{}
	if err := r.db.SelectContext(ctx, &list, q, args...); err != nil {
		return nil, fmt.Errorf("list active listings: %w", err)
	}
	return list, nil
}

// CountActive counts the rows ListActive pages over.
func (r *ListingRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM apartment WHERE status = 1"); err != nil {
		return 0, fmt.Errorf("count active listings: %w", err)
	}
	return n, nil
}
