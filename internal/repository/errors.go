// Package repository defines error types that are shared by the listing
// stores. These sentinel values allow higher layers such as the lifecycle
// service to distinguish a missing row from an infrastructure failure.
package repository

import "errors"

// ErrListingNotFound is returned when no listing row exists for an id.
// Soft-deleted rows still exist; callers inspect Listing.Status for those.
var ErrListingNotFound = errors.New("listing not found")

// ErrNegativeOffset is returned by ListActive for a paged query whose offset
// is below zero.
var ErrNegativeOffset = errors.New("negative list offset")
