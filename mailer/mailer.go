// Package mailer renders the notification templates used by the token
// flows and hands the result to a Transport.
package mailer

import (
	"context"
	"embed"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	goerrors "github.com/goliatone/go-errors"

	auth "github.com/goliatone/go-scoped-auth"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// Message is a rendered notification
type Message struct {
	From     string
	To       string
	Subject  string
	Body     string
	Template string
}

// Transport delivers rendered messages
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// TransportFunc adapts a function to Transport
type TransportFunc func(ctx context.Context, msg Message) error

func (f TransportFunc) Deliver(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

var defaultSubjects = map[string]string{
	auth.TemplateForget:           "Reset your password",
	auth.TemplateMailConfirmation: "Confirm your email address",
}

// TemplateNotifier implements auth.Notifier with pongo2 templates
type TemplateNotifier struct {
	mu        sync.RWMutex
	from      string
	transport Transport
	templates map[string]*pongo2.Template
	subjects  map[string]string
	global    pongo2.Context
	logger    auth.Logger
}

var _ auth.Notifier = (*TemplateNotifier)(nil)

// NewTemplateNotifier loads the embedded templates
func NewTemplateNotifier(from string, transport Transport) (*TemplateNotifier, error) {
	if transport == nil {
		return nil, goerrors.New("mailer requires a transport", goerrors.CategoryBadInput)
	}

	n := &TemplateNotifier{
		from:      from,
		transport: transport,
		templates: map[string]*pongo2.Template{},
		subjects:  maps.Clone(defaultSubjects),
		global:    pongo2.Context{"app_name": "Scoped Auth"},
		logger:    nopLogger{},
	}

	entries, err := templatesFS.ReadDir("templates")
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read mail templates")
	}

	for _, entry := range entries {
		raw, err := templatesFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read mail template")
		}
		name := strings.TrimSuffix(entry.Name(), ".txt")
		if err := n.Register(name, string(raw)); err != nil {
			return nil, err
		}
	}

	return n, nil
}

// Register compiles source under name, replacing any previous template
func (n *TemplateNotifier) Register(name, source string, subject ...string) error {
	tpl, err := pongo2.FromString(source)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("invalid mail template %q", name))
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.templates[name] = tpl
	if len(subject) > 0 && subject[0] != "" {
		n.subjects[name] = subject[0]
	}
	return nil
}

// WithGlobalData merges values available to every template
func (n *TemplateNotifier) WithGlobalData(data map[string]any) *TemplateNotifier {
	n.mu.Lock()
	defer n.mu.Unlock()
	maps.Copy(n.global, data)
	return n
}

func (n *TemplateNotifier) WithLogger(logger auth.Logger) *TemplateNotifier {
	if logger != nil {
		n.logger = logger
	}
	return n
}

// Render builds the message for template without delivering it
func (n *TemplateNotifier) Render(template, recipient string, data map[string]any) (Message, error) {
	n.mu.RLock()
	tpl, ok := n.templates[template]
	subject := n.subjects[template]
	tplCtx := pongo2.Context{}
	maps.Copy(tplCtx, n.global)
	n.mu.RUnlock()

	if !ok {
		return Message{}, goerrors.New(fmt.Sprintf("unknown mail template %q", template), goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound)
	}

	maps.Copy(tplCtx, data)

	body, err := tpl.Execute(tplCtx)
	if err != nil {
		return Message{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render mail template")
	}

	if subject == "" {
		subject = template
	}

	return Message{
		From:     n.from,
		To:       recipient,
		Subject:  subject,
		Body:     strings.TrimSpace(body) + "\n",
		Template: template,
	}, nil
}

// Send implements auth.Notifier
func (n *TemplateNotifier) Send(ctx context.Context, template, recipient string, data map[string]any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msg, err := n.Render(template, recipient, data)
	if err != nil {
		n.logger.Error("mail render failed", "template", template, "error", err)
		return err
	}

	return n.transport.Deliver(ctx, msg)
}

// LogTransport writes messages to a logger instead of sending them
type LogTransport struct {
	logger auth.Logger
}

func NewLogTransport(logger auth.Logger) *LogTransport {
	if logger == nil {
		logger = nopLogger{}
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.logger.Info("mail delivered",
		"template", msg.Template,
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
