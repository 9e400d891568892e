// Package approval mints, delivers and resolves the single-use tokens that
// gate executions on a human decision.
package approval

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/logging"
	"github.com/docuflow/docuflow/internal/nodes"
	"github.com/docuflow/docuflow/internal/store"
	"github.com/docuflow/docuflow/pkg/schema"
)

// tokenBytes sized so tokens are not guessable; 32 bytes of entropy encode
// to 43 URL-safe characters.
const tokenBytes = 32

// Resumer continues an execution the store has already claimed back to
// running. Satisfied by *engine.Engine.
type Resumer interface {
	Continue(ctx context.Context, exec *store.Execution) (*store.Execution, error)
}

// Service implements the approval subsystem: token issue on suspension,
// email delivery of the approval link, and decision resolution.
type Service struct {
	store   store.Store
	mailer  nodes.Mailer
	resumer Resumer
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates the approval service. baseURL is the externally
// reachable prefix the approval links are built from.
func NewService(st store.Store, mailer nodes.Mailer, baseURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

// Bind wires the engine in after construction; the engine itself depends on
// the service through the approval executor.
func (s *Service) Bind(r Resumer) { s.resumer = r }

// ApprovalURL returns the public link for a token value.
func (s *Service) ApprovalURL(token string) string {
	return fmt.Sprintf("%s/approve/%s", s.baseURL, token)
}

// Issue mints and delivers an approval token for a suspended node. Issuing
// is idempotent per (execution, node): when an open unexpired token already
// exists, its link is re-sent instead of minting a second credential.
func (s *Service) Issue(ctx context.Context, req nodes.IssueRequest) (string, error) {
	ctx = logging.WithExecutionID(ctx, req.ExecutionID)

	if open, err := s.store.OpenTokenForNode(ctx, req.ExecutionID, req.NodeID); err == nil && open != nil && !open.Expired(s.now().UTC()) {
		s.logger.InfoContext(ctx, "reusing open approval token", "node_id", req.NodeID)
		s.deliver(ctx, open)
		return open.Token, nil
	} else if err != nil && schema.CodeOf(err) != schema.ErrCodeNotFound {
		return "", err
	}

	value, err := mintToken()
	if err != nil {
		return "", err
	}

	token := &store.ApprovalToken{
		ID:              uuid.NewString(),
		Token:           value,
		ExecutionID:     req.ExecutionID,
		NodeID:          req.NodeID,
		DocumentID:      req.DocumentID,
		AssignedUserID:  req.AssignedUserID,
		AssignedGroupID: req.AssignedGroupID,
		Message:         req.Message,
		ExpiresAt:       req.ExpiresAt.UTC(),
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return "", err
	}

	s.appendEvent(ctx, req.ExecutionID, req.NodeID, schema.EventTokenIssued, map[string]any{
		"token_id":   token.ID,
		"expires_at": token.ExpiresAt.Format(time.RFC3339),
		"assignee":   assignee(token),
	})
	s.logger.InfoContext(ctx, "approval token issued",
		"node_id", req.NodeID, "expires_at", token.ExpiresAt)

	s.deliver(ctx, token)
	return value, nil
}

// Peek loads a token for display without consuming it. It returns the same
// error codes resolution would: INVALID_TOKEN, ALREADY_PROCESSED or EXPIRED.
func (s *Service) Peek(ctx context.Context, value string) (*store.ApprovalToken, error) {
	token, err := s.store.GetTokenByValue(ctx, value)
	if err != nil {
		if schema.CodeOf(err) == schema.ErrCodeNotFound {
			return nil, schema.NewError(schema.ErrCodeInvalidToken, "unknown approval token")
		}
		return nil, err
	}
	if token.Responded() {
		return token, schema.NewError(schema.ErrCodeAlreadyProcessed, "approval already processed").
			WithDetails(map[string]any{"decision": token.ResponseAction})
	}
	if token.Expired(s.now().UTC()) {
		return token, schema.NewError(schema.ErrCodeExpired, "approval link expired")
	}
	return token, nil
}

// Resolve consumes a token with the given decision and continues the owning
// execution. Consumption, decision history and the execution claim are one
// atomic store operation; the second of two concurrent resolvers receives
// ALREADY_PROCESSED and nothing else happens.
func (s *Service) Resolve(ctx context.Context, value, decision, comment string) (*store.Execution, error) {
	if decision != schema.DecisionApproved && decision != schema.DecisionRejected {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown decision %q", decision)
	}

	token, err := s.store.ConsumeToken(ctx, value, decision, comment, s.now().UTC())
	if err != nil {
		return nil, err
	}

	ctx = logging.WithExecutionID(ctx, token.ExecutionID)
	s.appendEvent(ctx, token.ExecutionID, token.NodeID, schema.EventDecisionRecorded, map[string]any{
		"token_id": token.ID,
		"decision": decision,
	})
	s.logger.InfoContext(ctx, "approval resolved", "node_id", token.NodeID, "decision", decision)

	exec, err := s.store.GetExecution(ctx, token.ExecutionID)
	if err != nil {
		return nil, err
	}
	return s.resumer.Continue(ctx, exec)
}

func (s *Service) deliver(ctx context.Context, token *store.ApprovalToken) {
	to := assignee(token)
	if to == "" || s.mailer == nil {
		return
	}
	subject := "Approval requested"
	body := token.Message
	if body != "" {
		body += "\n\n"
	}
	body += "Review and decide: " + s.ApprovalURL(token.Token)

	if err := s.mailer.Send(ctx, []string{to}, subject, body); err != nil {
		// Delivery is best-effort; the token stays resolvable through the
		// approval page and can be re-sent.
		s.logger.WarnContext(ctx, "send approval mail", "error", err)
	}
}

func (s *Service) appendEvent(ctx context.Context, executionID, nodeID, eventType string, payload map[string]any) {
	err := s.store.AppendEvent(ctx, &store.Event{
		ExecutionID: executionID,
		NodeID:      nodeID,
		Type:        eventType,
		Payload:     payload,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "append event", "event_type", eventType, "error", err)
	}
}

func assignee(token *store.ApprovalToken) string {
	if token.AssignedUserID != "" {
		return token.AssignedUserID
	}
	return token.AssignedGroupID
}

func mintToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeStore, "mint token: %s", err.Error()).WithCause(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var _ nodes.Issuer = (*Service)(nil)
