package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/docuflow/docuflow/internal/store"
	"github.com/docuflow/docuflow/pkg/schema"
)

// approvalPage is the data handed to the approve and result templates.
type approvalPage struct {
	Title      string
	Message    string
	Token      string
	DocumentID string
	ExpiresAt  string
	Decision   string
	DecidedAt  string
	Comment    string
	Problem    string
}

// handleApprovalPage renders the public decision form, or a terminal page
// when the token is unknown, consumed or expired. An action query parameter
// from the emailed per-decision links preselects the matching button.
func (s *Server) handleApprovalPage(w http.ResponseWriter, r *http.Request) {
	value := r.PathValue("token")

	token, err := s.deps.Approval.Peek(r.Context(), value)
	if err != nil {
		s.renderTokenProblem(w, token, err)
		return
	}

	var preselect string
	switch r.URL.Query().Get("action") {
	case "approve":
		preselect = schema.DecisionApproved
	case "reject":
		preselect = schema.DecisionRejected
	}

	s.renderPage(w, http.StatusOK, "approve.html", approvalPage{
		Title:      "Approval requested",
		Message:    token.Message,
		Token:      value,
		DocumentID: token.DocumentID,
		ExpiresAt:  token.ExpiresAt.Format(time.RFC1123),
		Decision:   preselect,
	})
}

// handleApprovalSubmit consumes the token with the submitted decision and
// resumes the owning execution.
func (s *Server) handleApprovalSubmit(w http.ResponseWriter, r *http.Request) {
	value := r.PathValue("token")

	if err := r.ParseForm(); err != nil {
		s.renderPage(w, http.StatusBadRequest, "result.html", approvalPage{
			Title:   "Invalid request",
			Problem: "The submitted form could not be read.",
		})
		return
	}
	decision := submittedDecision(r)
	comment := r.PostFormValue("comment")

	exec, err := s.deps.Approval.Resolve(r.Context(), value, decision, comment)
	if err != nil && exec == nil {
		token, _ := s.deps.Approval.Peek(r.Context(), value)
		s.renderTokenProblem(w, token, err)
		return
	}

	s.renderPage(w, http.StatusOK, "result.html", approvalPage{
		Title:    "Decision recorded",
		Decision: decision,
		Comment:  comment,
	})
}

// submittedDecision reads the decision from the form. The page posts a
// decision field; API callers may send action=approve|reject instead.
func submittedDecision(r *http.Request) string {
	if d := r.PostFormValue("decision"); d != "" {
		return d
	}
	switch r.PostFormValue("action") {
	case "approve":
		return schema.DecisionApproved
	case "reject":
		return schema.DecisionRejected
	}
	return r.PostFormValue("action")
}

// renderTokenProblem maps token error codes onto the terminal pages. An
// unknown token learns nothing; a consumed one shows the recorded decision
// so a second visit reads as an audit view, not an error.
func (s *Server) renderTokenProblem(w http.ResponseWriter, token *store.ApprovalToken, err error) {
	page := approvalPage{Title: "Approval unavailable"}
	status := httpStatus(schema.CodeOf(err))

	switch schema.CodeOf(err) {
	case schema.ErrCodeInvalidToken, schema.ErrCodeNotFound:
		page.Problem = "This approval link is not valid."
	case schema.ErrCodeAlreadyProcessed, schema.ErrCodeNotWaiting:
		page.Title = "Already processed"
		page.Problem = "A decision has already been recorded for this approval."
		if token != nil && token.RespondedAt != nil {
			page.Decision = token.ResponseAction
			page.DecidedAt = token.RespondedAt.Format(time.RFC1123)
		}
	case schema.ErrCodeExpired:
		page.Title = "Link expired"
		page.Problem = "This approval link has expired."
	case schema.ErrCodeValidation:
		page.Title = "Invalid request"
		page.Problem = "The submitted decision was not recognized."
	default:
		status = http.StatusInternalServerError
		page.Problem = "Something went wrong handling this approval."
		s.deps.Logger.Error("approval page", slog.String("error", err.Error()))
	}

	s.renderPage(w, status, "result.html", page)
}
