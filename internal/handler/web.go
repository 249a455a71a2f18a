package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/apartment-board/internal/model"
	"github.com/iliyamo/apartment-board/internal/service"
	"github.com/iliyamo/apartment-board/internal/utils"
)

const (
	flashCookie = "flash"
	flashTTL    = time.Minute
)

// WebHandler serves the HTML front-end. Pages are rendered through the
// echo.Renderer installed on the server.
type WebHandler struct {
	Listings    Listings
	PageSize    int
	FlashSecret string
	Log         *zap.Logger
}

func NewWebHandler(listings Listings, pageSize int, flashSecret string, log *zap.Logger) *WebHandler {
	if listings == nil {
		panic("nil listings passed to NewWebHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebHandler{Listings: listings, PageSize: pageSize, FlashSecret: flashSecret, Log: log.Named("web")}
}

// pageData is passed to every template.
type pageData struct {
	Title       string
	Flash       *utils.Flash
	Page        model.Page
	Listing     *model.Listing
	Form        model.ListingFields
	Errors      map[string]string
	Action      string
	SubmitLabel string
	Message     string
}

// Home redirects to the listing index.
func (h *WebHandler) Home(c echo.Context) error {
	return c.Redirect(http.StatusMovedPermanently, "/apartment/")
}

// Index renders one page of active listings; ?page= defaults to 1.
func (h *WebHandler) Index(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	p, err := h.Listings.List(c.Request().Context(), page, h.PageSize)
	if err != nil {
		return h.internal(c, err)
	}
	return c.Render(http.StatusOK, "list.html", pageData{Title: "Apartments", Flash: h.popFlash(c), Page: p})
}

// View renders a single active listing.
func (h *WebHandler) View(c echo.Context) error {
	id, ok := listingID(c)
	if !ok {
		return h.notFound(c)
	}
	l, err := h.Listings.Get(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Render(http.StatusOK, "view.html", pageData{Title: "Apartment #" + c.Param("id"), Flash: h.popFlash(c), Listing: l})
}

// NewForm renders the empty create form.
func (h *WebHandler) NewForm(c echo.Context) error {
	return c.Render(http.StatusOK, "form.html", createPage(model.ListingFields{}, nil))
}

// Create handles the create form.
func (h *WebHandler) Create(c echo.Context) error {
	var in model.ListingFields
	if err := c.Bind(&in); err != nil {
		return h.errorPage(c, http.StatusBadRequest, "Bad request", MsgBadBody)
	}
	res, err := h.Listings.Create(c.Request().Context(), in)
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return c.Render(http.StatusUnprocessableEntity, "form.html", createPage(in, verr))
	}
	if err != nil {
		return h.fail(c, err)
	}
	h.flashAfterWrite(c, res, MsgCreated)
	return c.Redirect(http.StatusSeeOther, viewPath(res.Listing.ID))
}

// EditForm renders the edit form pre-filled from the stored listing. The
// secret must match before anything is shown.
func (h *WebHandler) EditForm(c echo.Context) error {
	id, ok := listingID(c)
	if !ok {
		return h.notFound(c)
	}
	secret := c.QueryParam("secret")
	l, err := h.Listings.Authorize(c.Request().Context(), id, secret)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Render(http.StatusOK, "form.html", editPage(id, secret, model.FieldsOf(l), nil))
}

// Edit handles the edit form. The secret may arrive in the query string or
// as a form field.
func (h *WebHandler) Edit(c echo.Context) error {
	id, ok := listingID(c)
	if !ok {
		return h.notFound(c)
	}
	secret := c.QueryParam("secret")
	if secret == "" {
		secret = c.FormValue("secret")
	}
	var in model.ListingFields
	if err := c.Bind(&in); err != nil {
		return h.errorPage(c, http.StatusBadRequest, "Bad request", MsgBadBody)
	}
	res, err := h.Listings.Edit(c.Request().Context(), id, secret, in)
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return c.Render(http.StatusUnprocessableEntity, "form.html", editPage(id, secret, in, verr))
	}
	if err != nil {
		return h.fail(c, err)
	}
	h.flashAfterWrite(c, res, MsgChanged)
	return c.Redirect(http.StatusSeeOther, viewPath(id))
}

// Delete handles the emailed delete link.
func (h *WebHandler) Delete(c echo.Context) error {
	id, ok := listingID(c)
	if !ok {
		return h.notFound(c)
	}
	res, err := h.Listings.Delete(c.Request().Context(), id, c.QueryParam("secret"))
	if err != nil {
		return h.fail(c, err)
	}
	h.flashAfterWrite(c, res, MsgDeleted)
	return c.Redirect(http.StatusSeeOther, "/apartment/")
}

func createPage(in model.ListingFields, verr *service.ValidationError) pageData {
	return pageData{
		Title:       "Add apartment",
		Form:        in,
		Errors:      errorMap(verr),
		Action:      "/apartment/create",
		SubmitLabel: "Create",
	}
}

func editPage(id uint64, secret string, in model.ListingFields, verr *service.ValidationError) pageData {
	return pageData{
		Title:       "Edit apartment",
		Form:        in,
		Errors:      errorMap(verr),
		Action:      "/apartment/edit/" + strconv.FormatUint(id, 10) + "?secret=" + url.QueryEscape(secret),
		SubmitLabel: "Save",
	}
}

func errorMap(verr *service.ValidationError) map[string]string {
	m := map[string]string{}
	if verr == nil {
		return m
	}
	for _, fe := range verr.Errors {
		if _, seen := m[fe.Field]; !seen {
			m[fe.Field] = fe.Message
		}
	}
	return m
}

func viewPath(id uint64) string {
	return "/apartment/view/" + strconv.FormatUint(id, 10)
}

// fail collapses every authorization failure into one message so the page
// does not reveal which check failed.
func (h *WebHandler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return h.notFound(c)
	case service.IsAuthError(err):
		return h.errorPage(c, http.StatusBadRequest, "Access denied", MsgAccessDenied)
	default:
		return h.internal(c, err)
	}
}

func (h *WebHandler) notFound(c echo.Context) error {
	return h.errorPage(c, http.StatusNotFound, "Not found", notFoundMessage(c.Param("id")))
}

func (h *WebHandler) internal(c echo.Context, err error) error {
	h.Log.Error("request failed", zap.String("path", c.Request().URL.Path), zap.Error(err))
	return h.errorPage(c, http.StatusInternalServerError, "Error", MsgInternal)
}

func (h *WebHandler) errorPage(c echo.Context, status int, title, msg string) error {
	return c.Render(status, "error.html", pageData{Title: title, Message: msg})
}

func (h *WebHandler) flashAfterWrite(c echo.Context, res service.Result, msg string) {
	f := utils.Flash{Message: msg, Level: utils.FlashSuccess}
	if res.NotifyErr != nil {
		f = utils.Flash{Message: msg + " " + MsgMailFailed, Level: utils.FlashWarning}
	}
	h.setFlash(c, f)
}

func (h *WebHandler) setFlash(c echo.Context, f utils.Flash) {
	raw, err := utils.NewFlashToken(h.FlashSecret, f, flashTTL)
	if err != nil {
		h.Log.Warn("sign flash", zap.Error(err))
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     flashCookie,
		Value:    raw,
		Path:     "/",
		MaxAge:   int(flashTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads and clears the flash cookie. Tampered or expired cookies
// are dropped silently.
func (h *WebHandler) popFlash(c echo.Context) *utils.Flash {
	ck, err := c.Cookie(flashCookie)
	if err != nil || ck.Value == "" {
		return nil
	}
	c.SetCookie(&http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	f, err := utils.ParseFlashToken(h.FlashSecret, ck.Value)
	if err != nil {
		return nil
	}
	return &f
}
