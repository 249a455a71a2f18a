package model

import "time"

// Listing represents an apartment advertisement as stored in the
// `apartment` table. Each field corresponds to a column. The struct
// carries db tags for sqlx scanning; it has no json tags because the
// security token must never be serialized by accident. Handlers build
// their own response types from an explicit field allow-list.
//
// Fields:
//
//	ID            – apartment.id, assigned by the store, never reused.
//	MoveInDate    – apartment.move_in_date (date only, UTC midnight).
//	Street        – apartment.street.
//	Town          – apartment.town.
//	Country       – apartment.country.
//	PostCode      – apartment.post_code.
//	Email         – apartment.email, recipient of notifications.
//	SecurityToken – apartment.security_token, 32 char bearer secret.
//	Status        – apartment.status, false once soft-deleted.
//	PostedAt      – apartment.posted_at, stamped once at creation.
//	EditedAt      – apartment.edited_at, nil until the first edit/delete.
type Listing struct {
	ID            uint64     `db:"id"`
	MoveInDate    time.Time  `db:"move_in_date"`
	Street        string     `db:"street"`
	Town          string     `db:"town"`
	Country       string     `db:"country"`
	PostCode      string     `db:"post_code"`
	Email         string     `db:"email"`
	SecurityToken string     `db:"security_token"`
	Status        bool       `db:"status"`
	PostedAt      time.Time  `db:"posted_at"`
	EditedAt      *time.Time `db:"edited_at"`
}

// ListingFields is the raw, unvalidated user input for a create or edit.
// Values arrive as strings from forms or JSON bodies; the move-in date is
// parsed only after validation has accepted it.
type ListingFields struct {
	MoveInDate string `json:"move_in_date" form:"move_in_date"`
	Street     string `json:"street" form:"street"`
	Town       string `json:"town" form:"town"`
	Country    string `json:"country" form:"country"`
	PostCode   string `json:"post_code" form:"post_code"`
	Email      string `json:"email" form:"email"`
}

// FieldsOf returns the editable fields of l in their input form. It is used
// to pre-fill the edit form.
func FieldsOf(l *Listing) ListingFields {
	return ListingFields{
		MoveInDate: l.MoveInDate.Format(DateLayout),
		Street:     l.Street,
		Town:       l.Town,
		Country:    l.Country,
		PostCode:   l.PostCode,
		Email:      l.Email,
	}
}

// DateLayout is the only accepted move-in date format (ISO YYYY-MM-DD).
const DateLayout = "2006-01-02"

// NotificationKind names one of the three lifecycle emails.
type NotificationKind string

const (
	NotifyCreated NotificationKind = "created"
	NotifyEdited  NotificationKind = "edited"
	NotifyDeleted NotificationKind = "deleted"
)
