package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/apartment-board/internal/model"
	"github.com/iliyamo/apartment-board/internal/service"
	"github.com/iliyamo/apartment-board/internal/validation"
)

// HeaderAuthorizeKey carries the listing secret on API writes.
const HeaderAuthorizeKey = "X-AUTHORIZE-KEY"

// APIHandler serves the JSON API.
type APIHandler struct {
	Listings Listings
	Log      *zap.Logger
}

func NewAPIHandler(listings Listings, log *zap.Logger) *APIHandler {
	if listings == nil {
		panic("nil listings passed to NewAPIHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &APIHandler{Listings: listings, Log: log.Named("api")}
}

// ListingResponse is the public representation of a listing. The secret
// is deliberately absent.
type ListingResponse struct {
	ID         uint64     `json:"id"`
	MoveInDate string     `json:"move_in_date"`
	Street     string     `json:"street"`
	Town       string     `json:"town"`
	Country    string     `json:"country"`
	PostCode   string     `json:"post_code"`
	Email      string     `json:"email"`
	Status     bool       `json:"status"`
	PostedAt   time.Time  `json:"posted_at"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
}

func toResponse(l *model.Listing) ListingResponse {
	return ListingResponse{
		ID:         l.ID,
		MoveInDate: l.MoveInDate.Format(model.DateLayout),
		Street:     l.Street,
		Town:       l.Town,
		Country:    l.Country,
		PostCode:   l.PostCode,
		Email:      l.Email,
		Status:     l.Status,
		PostedAt:   l.PostedAt,
		EditedAt:   l.EditedAt,
	}
}

// List returns every active listing, newest first.
func (h *APIHandler) List(c echo.Context) error {
	items, err := h.Listings.ListAll(c.Request().Context())
	if err != nil {
		return h.internal(c, err)
	}
	out := make([]ListingResponse, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// Get returns one active listing.
func (h *APIHandler) Get(c echo.Context) error {
	id, ok := listingID(c)
	if !ok {
		return notFound(c)
	}
	l, err := h.Listings.Get(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(l))
}

// Create accepts a JSON or form body and returns 201 with the new listing.
// The secret is only ever sent by email.
func (h *APIHandler) Create(c echo.Context) error {
	var in model.ListingFields
	if err := c.Bind(&in); err != nil {
		return errorList(c, http.StatusBadRequest, MsgBadBody)
	}
	res, err := h.Listings.Create(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err)
	}
	markNotify(c, res)
	return c.JSON(http.StatusCreated, toResponse(res.Listing))
}

// Update edits a listing; the secret comes from the X-AUTHORIZE-KEY header.
func (h *APIHandler) Update(c echo.Context) error {
	id, ok := listingID(c)
	if !ok {
		return notFound(c)
	}
	var in model.ListingFields
	if err := c.Bind(&in); err != nil {
		return errorList(c, http.StatusBadRequest, MsgBadBody)
	}
	res, err := h.Listings.Edit(c.Request().Context(), id, c.Request().Header.Get(HeaderAuthorizeKey), in)
	if err != nil {
		return h.fail(c, err)
	}
	markNotify(c, res)
	return c.JSON(http.StatusOK, toResponse(res.Listing))
}

// Delete removes a listing and answers 204.
func (h *APIHandler) Delete(c echo.Context) error {
	id, ok := listingID(c)
	if !ok {
		return notFound(c)
	}
	res, err := h.Listings.Delete(c.Request().Context(), id, c.Request().Header.Get(HeaderAuthorizeKey))
	if err != nil {
		return h.fail(c, err)
	}
	markNotify(c, res)
	return c.NoContent(http.StatusNoContent)
}

// fail maps lifecycle errors onto status codes. Not found is 404 on every
// route; validation and authorization failures are 400.
func (h *APIHandler) fail(c echo.Context, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": wireFieldErrors(verr.Errors)})
	case errors.Is(err, service.ErrNotFound):
		return notFound(c)
	case service.IsAuthError(err):
		return errorList(c, http.StatusBadRequest, MsgAccessDenied)
	default:
		return h.internal(c, err)
	}
}

// wireNames maps rule field names to the request body keys they came from.
var wireNames = map[string]string{
	validation.FieldMoveInDate: "move_in_date",
	validation.FieldPostCode:   "post_code",
}

func wireFieldErrors(in []validation.FieldError) []validation.FieldError {
	out := make([]validation.FieldError, len(in))
	for i, fe := range in {
		if name, ok := wireNames[fe.Field]; ok {
			fe.Field = name
		}
		out[i] = fe
	}
	return out
}

func (h *APIHandler) internal(c echo.Context, err error) error {
	h.Log.Error("request failed", zap.String("path", c.Request().URL.Path), zap.Error(err))
	return errorList(c, http.StatusInternalServerError, MsgInternal)
}

func notFound(c echo.Context) error {
	return errorList(c, http.StatusNotFound, notFoundMessage(c.Param("id")))
}

func errorList(c echo.Context, status int, msgs ...string) error {
	return c.JSON(status, echo.Map{"errors": msgs})
}

// markNotify flags a committed write whose notification was not delivered.
func markNotify(c echo.Context, res service.Result) {
	if res.NotifyErr != nil {
		c.Response().Header().Set("X-Notification-Status", "failed")
	}
}
