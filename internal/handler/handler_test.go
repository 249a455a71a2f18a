package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/apartment-board/internal/model"
	"github.com/iliyamo/apartment-board/internal/repository"
	"github.com/iliyamo/apartment-board/internal/service"
	"github.com/iliyamo/apartment-board/internal/token"
	"github.com/iliyamo/apartment-board/internal/validation"
)

// outbox records notifications and can be told to fail.
type outbox struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

type sentNotification struct {
	Kind    model.NotificationKind
	Listing model.Listing
}

func (o *outbox) Notify(_ context.Context, l *model.Listing, kind model.NotificationKind) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, sentNotification{Kind: kind, Listing: *l})
	return nil
}

func (o *outbox) last(t *testing.T) sentNotification {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	return o.sent[len(o.sent)-1]
}

type testApp struct {
	e      *echo.Echo
	svc    *service.ListingService
	store  *repository.MemoryListingRepo
	outbox *outbox
}

func newTestApp(t *testing.T, softDelete bool) *testApp {
	t.Helper()
	store := repository.NewMemoryListingRepo()
	ob := &outbox{}
	svc := service.NewListingService(store, validation.New(), token.NewAuthority(), ob, service.Options{
		SoftDelete: softDelete,
		PageSize:   2,
	})

	r, err := NewRenderer()
	require.NoError(t, err)
	e := echo.New()
	e.Renderer = r

	web := NewWebHandler(svc, 2, "flash-secret", nil)
	e.GET("/", web.Home)
	e.GET("/apartment/", web.Index)
	e.GET("/apartment/view/:id", web.View)
	e.GET("/apartment/create", web.NewForm)
	e.POST("/apartment/create", web.Create)
	e.GET("/apartment/edit/:id", web.EditForm)
	e.POST("/apartment/edit/:id", web.Edit)
	e.GET("/apartment/delete/:id", web.Delete)

	api := NewAPIHandler(svc, nil)
	e.GET("/api/apartment", api.List)
	e.GET("/api/apartment/:id", api.Get)
	e.POST("/api/apartment", api.Create)
	e.PUT("/api/apartment/:id", api.Update)
	e.DELETE("/api/apartment/:id", api.Delete)

	return &testApp{e: e, svc: svc, store: store, outbox: ob}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) seed(t *testing.T) *model.Listing {
	t.Helper()
	res, err := a.svc.Create(context.Background(), validForm())
	require.NoError(t, err)
	return res.Listing
}

func validForm() model.ListingFields {
	return model.ListingFields{
		MoveInDate: "2024-06-01",
		Street:     "Brivibas iela 1",
		Town:       "Riga",
		Country:    "Latvia",
		PostCode:   "LV-1010",
		Email:      "owner@example.com",
	}
}

func formValues(f model.ListingFields) url.Values {
	return url.Values{
		"move_in_date": {f.MoveInDate},
		"street":       {f.Street},
		"town":         {f.Town},
		"country":      {f.Country},
		"post_code":    {f.PostCode},
		"email":        {f.Email},
	}
}

func formRequest(method, target string, v url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(v.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

var errSMTP = errors.New("smtp: 554 rejected")
