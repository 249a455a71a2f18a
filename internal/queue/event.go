// Package queue carries listing notifications over RabbitMQ so that email
// delivery can happen outside the request that triggered it.
package queue

import (
	"fmt"
	"time"

	"github.com/iliyamo/apartment-board/internal/model"
)

// DefaultQueueName is used when no queue name is configured.
const DefaultQueueName = "listing.notifications"

// ListingNotificationEvent is published after a listing is created, edited
// or deleted. It carries a full snapshot because a deleted listing may no
// longer exist when the consumer runs.
type ListingNotificationEvent struct {
	MessageID  string                 `json:"message_id"`
	Kind       model.NotificationKind `json:"kind"`
	Listing    ListingSnapshot        `json:"listing"`
	OccurredAt string                 `json:"occurred_at"`
}

// ListingSnapshot is the wire form of a listing. The secret is included
// because created and edited emails embed it in their links.
type ListingSnapshot struct {
	ID            uint64 `json:"id"`
	MoveInDate    string `json:"move_in_date"`
	Street        string `json:"street"`
	Town          string `json:"town"`
	Country       string `json:"country"`
	PostCode      string `json:"post_code"`
	Email         string `json:"email"`
	SecurityToken string `json:"security_token"`
	Status        bool   `json:"status"`
	PostedAt      string `json:"posted_at"`
	EditedAt      string `json:"edited_at,omitempty"`
}

func snapshotOf(l *model.Listing) ListingSnapshot {
	s := ListingSnapshot{
		ID:            l.ID,
		MoveInDate:    l.MoveInDate.Format(model.DateLayout),
		Street:        l.Street,
		Town:          l.Town,
		Country:       l.Country,
		PostCode:      l.PostCode,
		Email:         l.Email,
		SecurityToken: l.SecurityToken,
		Status:        l.Status,
		PostedAt:      l.PostedAt.UTC().Format(time.RFC3339),
	}
	if l.EditedAt != nil {
		s.EditedAt = l.EditedAt.UTC().Format(time.RFC3339)
	}
	return s
}

// Listing converts the snapshot back into a model.Listing.
func (s ListingSnapshot) Listing() (*model.Listing, error) {
	moveIn, err := time.Parse(model.DateLayout, s.MoveInDate)
	if err != nil {
		return nil, fmt.Errorf("move_in_date: %w", err)
	}
	posted, err := time.Parse(time.RFC3339, s.PostedAt)
	if err != nil {
		return nil, fmt.Errorf("posted_at: %w", err)
	}
	l := &model.Listing{
		ID:            s.ID,
		MoveInDate:    moveIn,
		Street:        s.Street,
		Town:          s.Town,
		Country:       s.Country,
		PostCode:      s.PostCode,
		Email:         s.Email,
		SecurityToken: s.SecurityToken,
		Status:        s.Status,
		PostedAt:      posted,
	}
	if s.EditedAt != "" {
		edited, err := time.Parse(time.RFC3339, s.EditedAt)
		if err != nil {
			return nil, fmt.Errorf("edited_at: %w", err)
		}
		l.EditedAt = &edited
	}
	return l, nil
}
