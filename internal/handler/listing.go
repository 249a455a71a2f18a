// Package handler exposes the HTTP handlers: the HTML pages under
// /apartment, the REST API under /api/apartment and the health check.
package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/apartment-board/internal/model"
	"github.com/iliyamo/apartment-board/internal/service"
)

// Listings is the lifecycle surface both front-ends depend on;
// *service.ListingService implements it.
type Listings interface {
	Create(ctx context.Context, f model.ListingFields) (service.Result, error)
	Edit(ctx context.Context, id uint64, secret string, f model.ListingFields) (service.Result, error)
	Delete(ctx context.Context, id uint64, secret string) (service.Result, error)
	Authorize(ctx context.Context, id uint64, secret string) (*model.Listing, error)
	Get(ctx context.Context, id uint64) (*model.Listing, error)
	List(ctx context.Context, page, pageSize int) (model.Page, error)
	ListAll(ctx context.Context) ([]model.Listing, error)
}

// User-facing messages shared by both front-ends.
const (
	MsgAccessDenied = "You should use special link from email message for access to this page."
	MsgCreated      = "Your apartment was successfully submitted. Check your email for new message."
	MsgChanged      = "Your apartment was successfully changed."
	MsgDeleted      = "Your apartment was successfully deleted."
	MsgMailFailed   = "We could not send the email notification. Please contact support."
	MsgInternal     = "Internal server error."
	MsgBadBody      = "Invalid request body."
)

func notFoundMessage(id string) string {
	return fmt.Sprintf("Apartment with id #%s not found.", id)
}

// listingID parses the :id path parameter. Only decimal ids exist.
func listingID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil
}
