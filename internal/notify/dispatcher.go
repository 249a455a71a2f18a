// Package notify renders lifecycle emails and hands them to a mail
// transport.
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/apartment-board/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrUnknownKind is returned by Notify for a kind with no template. Nothing
// is sent in that case.
var ErrUnknownKind = errors.New("unknown notification kind")

// Message is a rendered email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// MailTransport delivers rendered messages.
type MailTransport interface {
	Send(ctx context.Context, msg Message) error
}

type kindDef struct {
	template string
	subject  string
}

var kinds = map[model.NotificationKind]kindDef{
	model.NotifyCreated: {"created.html", "Your apartment was successfully submitted"},
	model.NotifyEdited:  {"edited.html", "Your apartment was successfully changed"},
	model.NotifyDeleted: {"deleted.html", "Your apartment was successfully deleted"},
}

// Dispatcher maps a notification kind to a template and subject and sends
// the result from a fixed sender address to the listing's email.
type Dispatcher struct {
	transport MailTransport
	from      string
	baseURL   string
	tmpl      *template.Template
	log       *zap.Logger
}

// NewDispatcher parses the embedded templates. baseURL is the absolute
// prefix of the links placed in emails.
func NewDispatcher(transport MailTransport, from, baseURL string, log *zap.Logger) (*Dispatcher, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		transport: transport,
		from:      from,
		baseURL:   strings.TrimRight(baseURL, "/"),
		tmpl:      tmpl,
		log:       log.Named("notify"),
	}, nil
}

type emailData struct {
	Listing   *model.Listing
	ViewURL   string
	EditURL   string
	DeleteURL string
}

// Render builds the message for l and kind without sending it.
func (d *Dispatcher) Render(l *model.Listing, kind model.NotificationKind) (Message, error) {
	def, ok := kinds[kind]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	id := strconv.FormatUint(l.ID, 10)
	secret := "?secret=" + url.QueryEscape(l.SecurityToken)
	data := emailData{
		Listing:   l,
		ViewURL:   d.baseURL + "/apartment/view/" + id,
		EditURL:   d.baseURL + "/apartment/edit/" + id + secret,
		DeleteURL: d.baseURL + "/apartment/delete/" + id + secret,
	}

	var buf bytes.Buffer
	if err := d.tmpl.ExecuteTemplate(&buf, def.template, data); err != nil {
		return Message{}, fmt.Errorf("render %s email: %w", kind, err)
	}
	return Message{From: d.from, To: l.Email, Subject: def.subject, HTML: buf.String()}, nil
}

// Notify renders and sends one notification. Transport failures are
// returned to the caller, who decides whether they matter.
func (d *Dispatcher) Notify(ctx context.Context, l *model.Listing, kind model.NotificationKind) error {
	msg, err := d.Render(l, kind)
	if err != nil {
		return err
	}
	if err := d.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s email to %s: %w", kind, msg.To, err)
	}
	d.log.Debug("email sent", zap.Uint64("id", l.ID), zap.String("kind", string(kind)))
	return nil
}
