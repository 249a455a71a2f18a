// Package service implements the listing lifecycle: create, edit and delete
// guarded by the emailed secret, plus the public read operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/apartment-board/internal/metrics"
	"github.com/iliyamo/apartment-board/internal/model"
	"github.com/iliyamo/apartment-board/internal/repository"
	"github.com/iliyamo/apartment-board/internal/validation"
)

// ListingStore persists listings. Implementations return
// repository.ErrListingNotFound for a missing id.
type ListingStore interface {
	Insert(ctx context.Context, l *model.Listing) (uint64, error)
	FindByID(ctx context.Context, id uint64) (*model.Listing, error)
	Update(ctx context.Context, l *model.Listing) error
	Remove(ctx context.Context, id uint64) error
	ListActive(ctx context.Context, limit, offset int) ([]model.Listing, error)
	CountActive(ctx context.Context) (int, error)
}

// Validator checks raw listing input.
type Validator interface {
	Validate(f model.ListingFields) []validation.FieldError
}

// TokenAuthority issues and checks listing secrets.
type TokenAuthority interface {
	Generate(l *model.Listing) (string, error)
	Verify(l *model.Listing, supplied string) bool
}

// Notifier delivers a lifecycle notification for a listing.
type Notifier interface {
	Notify(ctx context.Context, l *model.Listing, kind model.NotificationKind) error
}

// Options configures a ListingService.
type Options struct {
	// SoftDelete flips status on delete instead of removing the row.
	SoftDelete bool
	// PageSize is used by List when the caller passes a non-positive size.
	PageSize int
	// Now defaults to time.Now.
	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// Result is the outcome of a successful write. NotifyErr is set when the
// change was committed but the notification could not be delivered.
type Result struct {
	Listing   *model.Listing
	NotifyErr error
}

// ListingService coordinates the store, validation, secrets and
// notifications for one listing at a time. Concurrent edits of the same
// listing are not serialized; the last update wins.
type ListingService struct {
	store    ListingStore
	rules    Validator
	tokens   TokenAuthority
	notifier Notifier
	opts     Options
	log      *zap.Logger
}

// NewListingService wires a ListingService.
func NewListingService(store ListingStore, rules Validator, tokens TokenAuthority, notifier Notifier, opts Options) *ListingService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &ListingService{
		store:    store,
		rules:    rules,
		tokens:   tokens,
		notifier: notifier,
		opts:     opts,
		log:      log.Named("listing"),
	}
}

// SoftDelete reports the configured delete policy.
func (s *ListingService) SoftDelete() bool { return s.opts.SoftDelete }

// Create validates f, stores a new active listing with a fresh secret and
// sends the "created" notification.
func (s *ListingService) Create(ctx context.Context, f model.ListingFields) (Result, error) {
	f = normalize(f)
	moveIn, err := s.validate(f)
	if err != nil {
		s.opts.Metrics.Operation("create", metrics.OutcomeInvalid)
		return Result{}, err
	}

	l := &model.Listing{Status: true, PostedAt: s.now()}
	apply(l, f, moveIn)

	tok, err := s.tokens.Generate(l)
	if err != nil {
		s.opts.Metrics.Operation("create", metrics.OutcomeError)
		return Result{}, fmt.Errorf("generate token: %w", err)
	}
	l.SecurityToken = tok

	id, err := s.store.Insert(ctx, l)
	if err != nil {
		s.log.Error("insert listing", zap.Error(err))
		s.opts.Metrics.Operation("create", metrics.OutcomeError)
		return Result{}, fmt.Errorf("insert listing: %w", err)
	}
	l.ID = id
	s.opts.Metrics.Operation("create", metrics.OutcomeOK)
	s.log.Info("listing created", zap.Uint64("id", l.ID))

	return Result{Listing: l, NotifyErr: s.notify(ctx, l, model.NotifyCreated)}, nil
}

// Authorize resolves id and checks the supplied secret. Checks run in a
// fixed order: missing secret, missing listing, wrong secret, and under
// soft delete an already deleted listing.
func (s *ListingService) Authorize(ctx context.Context, id uint64, supplied string) (*model.Listing, error) {
	if supplied == "" {
		return nil, ErrMissingToken
	}
	l, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.tokens.Verify(l, supplied) {
		return nil, ErrTokenMismatch
	}
	if s.opts.SoftDelete && !l.Status {
		return nil, ErrAlreadyDeleted
	}
	return l, nil
}

// Edit overwrites the editable fields of an authorized listing. The id,
// secret and posting time never change.
func (s *ListingService) Edit(ctx context.Context, id uint64, supplied string, f model.ListingFields) (Result, error) {
	l, err := s.Authorize(ctx, id, supplied)
	if err != nil {
		s.opts.Metrics.Operation("edit", outcomeOf(err))
		return Result{}, err
	}

	f = normalize(f)
	moveIn, err := s.validate(f)
	if err != nil {
		s.opts.Metrics.Operation("edit", metrics.OutcomeInvalid)
		return Result{}, err
	}

	apply(l, f, moveIn)
	l.EditedAt = s.editStamp(l)

	if err := s.store.Update(ctx, l); err != nil {
		return Result{}, s.writeFailed("edit", err)
	}
	s.opts.Metrics.Operation("edit", metrics.OutcomeOK)
	s.log.Info("listing edited", zap.Uint64("id", l.ID))

	return Result{Listing: l, NotifyErr: s.notify(ctx, l, model.NotifyEdited)}, nil
}

// Delete soft-deletes or removes an authorized listing and sends the
// "deleted" notification.
func (s *ListingService) Delete(ctx context.Context, id uint64, supplied string) (Result, error) {
	l, err := s.Authorize(ctx, id, supplied)
	if err != nil {
		s.opts.Metrics.Operation("delete", outcomeOf(err))
		return Result{}, err
	}

	if s.opts.SoftDelete {
		l.Status = false
		l.EditedAt = s.editStamp(l)
		err = s.store.Update(ctx, l)
	} else {
		err = s.store.Remove(ctx, l.ID)
	}
	if err != nil {
		return Result{}, s.writeFailed("delete", err)
	}
	s.opts.Metrics.Operation("delete", metrics.OutcomeOK)
	s.log.Info("listing deleted", zap.Uint64("id", l.ID), zap.Bool("soft", s.opts.SoftDelete))

	return Result{Listing: l, NotifyErr: s.notify(ctx, l, model.NotifyDeleted)}, nil
}

// Get returns a publicly visible listing.
func (s *ListingService) Get(ctx context.Context, id uint64) (*model.Listing, error) {
	l, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.Status {
		return nil, ErrNotFound
	}
	return l, nil
}

// List returns one page of active listings, newest first. page is clamped
// to 1; a page past the end is empty.
func (s *ListingService) List(ctx context.Context, page, pageSize int) (model.Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.opts.PageSize
	}

	total, err := s.store.CountActive(ctx)
	if err != nil {
		return model.Page{}, fmt.Errorf("count listings: %w", err)
	}
	p := model.Page{
		Items:      []model.Listing{},
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
	// Pages past the end never reach the store, so (page-1)*pageSize
	// cannot overflow.
	if page > p.TotalPages {
		return p, nil
	}
	p.Items, err = s.store.ListActive(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return model.Page{}, fmt.Errorf("list listings: %w", err)
	}
	return p, nil
}

// ListAll returns every active listing, newest first.
func (s *ListingService) ListAll(ctx context.Context) ([]model.Listing, error) {
	items, err := s.store.ListActive(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return items, nil
}

func (s *ListingService) find(ctx context.Context, id uint64) (*model.Listing, error) {
	l, err := s.store.FindByID(ctx, id)
	if errors.Is(err, repository.ErrListingNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find listing %d: %w", id, err)
	}
	return l, nil
}

func (s *ListingService) validate(f model.ListingFields) (time.Time, error) {
	if errs := s.rules.Validate(f); len(errs) > 0 {
		return time.Time{}, &ValidationError{Errors: errs}
	}
	moveIn, err := validation.ParseMoveInDate(f.MoveInDate)
	if err != nil {
		return time.Time{}, &ValidationError{Errors: []validation.FieldError{
			{Field: validation.FieldMoveInDate, Message: validation.MsgDateFormat},
		}}
	}
	return moveIn, nil
}

func (s *ListingService) notify(ctx context.Context, l *model.Listing, kind model.NotificationKind) error {
	if s.notifier == nil {
		return nil
	}
	err := s.notifier.Notify(ctx, l, kind)
	s.opts.Metrics.Notification(string(kind), err)
	if err != nil {
		s.log.Warn("notification failed",
			zap.Uint64("id", l.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	return err
}

func (s *ListingService) writeFailed(op string, err error) error {
	if errors.Is(err, repository.ErrListingNotFound) {
		s.opts.Metrics.Operation(op, metrics.OutcomeNotFound)
		return ErrNotFound
	}
	s.log.Error(op+" listing", zap.Error(err))
	s.opts.Metrics.Operation(op, metrics.OutcomeError)
	return fmt.Errorf("%s listing: %w", op, err)
}

func (s *ListingService) now() time.Time {
	return s.opts.Now().UTC()
}

// editStamp never precedes the posting time.
func (s *ListingService) editStamp(l *model.Listing) *time.Time {
	t := s.now()
	if t.Before(l.PostedAt) {
		t = l.PostedAt
	}
	return &t
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	case IsAuthError(err):
		return metrics.OutcomeUnauthorized
	default:
		return metrics.OutcomeError
	}
}

func normalize(f model.ListingFields) model.ListingFields {
	return model.ListingFields{
		MoveInDate: strings.TrimSpace(f.MoveInDate),
		Street:     strings.TrimSpace(f.Street),
		Town:       strings.TrimSpace(f.Town),
		Country:    strings.TrimSpace(f.Country),
		PostCode:   strings.TrimSpace(f.PostCode),
		Email:      strings.TrimSpace(f.Email),
	}
}

func apply(l *model.Listing, f model.ListingFields, moveIn time.Time) {
	l.MoveInDate = moveIn
	l.Street = f.Street
	l.Town = f.Town
	l.Country = f.Country
	l.PostCode = f.PostCode
	l.Email = f.Email
}
