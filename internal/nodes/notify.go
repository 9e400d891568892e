package nodes

import (
	"context"
	"strings"

	"github.com/docuflow/docuflow/pkg/schema"
)

var notifyFields = []schema.ConfigField{
	{Key: "recipients", Type: TypeStringList, Required: true, Description: "Email addresses to notify"},
	{Key: "subject", Type: TypeString, Required: true, Description: "Message subject; {{key}} placeholders read the context bag"},
	{Key: "body", Type: TypeString, Description: "Message body; {{key}} placeholders read the context bag"},
}

// Mailer delivers outbound email.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// NotifyLog records which (execution, node) pairs already sent their
// notification, making replays after a crash a no-op.
type NotifyLog interface {
	Sent(ctx context.Context, executionID, nodeID string) (bool, error)
	MarkSent(ctx context.Context, executionID, nodeID string, recipients []string) error
}

// NotifyExecutor sends an email about the execution. Sending is deduplicated
// through the notify log so a step replayed after a crash does not mail
// twice.
type NotifyExecutor struct {
	mailer Mailer
	log    NotifyLog
}

func NewNotifyExecutor(mailer Mailer, log NotifyLog) *NotifyExecutor {
	return &NotifyExecutor{mailer: mailer, log: log}
}

func (e *NotifyExecutor) Kind() schema.NodeKind        { return schema.NodeKindNotify }
func (e *NotifyExecutor) Schema() []schema.ConfigField { return notifyFields }

func (e *NotifyExecutor) Validate(config map[string]any) error {
	return requireFields(notifyFields, config)
}

func (e *NotifyExecutor) Execute(ctx context.Context, in ExecContext) (*Result, error) {
	sent, err := e.log.Sent(ctx, in.ExecutionID, in.Node.ID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"check notification log: %s", err.Error()).WithCause(err).WithNode(in.Node.ID)
	}
	if sent {
		return &Result{OutputName: schema.OutputDefault}, nil
	}

	recipients := stringListConfig(in.Config(), "recipients")
	if len(recipients) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"notify requires at least one recipient").WithNode(in.Node.ID)
	}

	subject := renderPlaceholders(configString(in.Config(), "subject"), in)
	body := renderPlaceholders(configString(in.Config(), "body"), in)

	if err := e.mailer.Send(ctx, recipients, subject, body); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNodeFailed,
			"send notification: %s", err.Error()).WithCause(err).WithNode(in.Node.ID)
	}
	if err := e.log.MarkSent(ctx, in.ExecutionID, in.Node.ID, recipients); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"record notification: %s", err.Error()).WithCause(err).WithNode(in.Node.ID)
	}

	return &Result{OutputName: schema.OutputDefault, Data: map[string]any{"notified": recipients}}, nil
}

// renderPlaceholders substitutes {{key}} with bag values, plus the built-in
// keys document_id, document_title and execution_id.
func renderPlaceholders(text string, in ExecContext) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	replace := func(key string) (string, bool) {
		switch key {
		case "document_id":
			return in.DocumentID, true
		case "execution_id":
			return in.ExecutionID, true
		case "document_title":
			if in.Document != nil {
				return in.Document.Title, true
			}
			return "", true
		}
		if v, ok := in.Bag[key]; ok {
			return stringify(v), true
		}
		return "", false
	}

	var b strings.Builder
	for {
		start := strings.Index(text, "{{")
		if start < 0 {
			b.WriteString(text)
			break
		}
		end := strings.Index(text[start:], "}}")
		if end < 0 {
			b.WriteString(text)
			break
		}
		b.WriteString(text[:start])
		key := strings.TrimSpace(text[start+2 : start+end])
		if val, ok := replace(key); ok {
			b.WriteString(val)
		} else {
			b.WriteString(text[start : start+end+2])
		}
		text = text[start+end+2:]
	}
	return b.String()
}
