// Package handler receives the CAS portal's callback: the portal posts the
// signed-in member's details to /{token} once the CAS login succeeds.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"casbot/internal/callback/metrics"
	"casbot/internal/roster/models"
	"casbot/internal/verification/token"
	"casbot/pkg/platform/httputil"
	"casbot/pkg/platform/middleware/metadata"
	"casbot/pkg/platform/sentinel"
	"casbot/pkg/requestcontext"
)

// Form fields sent by the portal.
const (
	FieldName   = "name"
	FieldEmail  = "email"
	FieldRollNo = "rollno"
)

const maxFormMemory = 32 << 10

const (
	outcomeVerified     = "verified"
	outcomeUnknownToken = "unknown_token"
	outcomeBadRequest   = "bad_request"
	outcomeUnavailable  = "unavailable"
	outcomeError        = "error"
)

// Tokens is the part of the token registry the callback needs.
type Tokens interface {
	Lookup(ctx context.Context, token string) (token.Pending, error)
	Consume(ctx context.Context, token string) (token.Pending, error)
}

// Roster records verified members.
type Roster interface {
	Upsert(ctx context.Context, identity models.Identity) error
}

// readiness is implemented by roster stores that connect lazily.
type readiness interface {
	Ready() bool
}

// Handler serves the portal callback.
type Handler struct {
	tokens  Tokens
	roster  Roster
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a callback handler with its dependencies.
func New(tokens Tokens, roster Roster, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		tokens:  tokens,
		roster:  roster,
		logger:  logger,
		metrics: metrics,
	}
}

// Register mounts the callback endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/{token}", h.HandleCallback)
}

// HandleCallback handles POST /{token}.
//
// The token is only consumed once the form is known to be complete, so a
// malformed post leaves the member's link usable.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	requestID := requestcontext.RequestID(ctx)
	tok := chi.URLParam(r, "token")

	if !h.rosterReady() {
		h.fail(w, r, start, outcomeUnavailable, sentinel.ErrUnavailable)
		return
	}

	if _, err := h.tokens.Lookup(ctx, tok); err != nil {
		h.fail(w, r, start, h.lookupOutcome(err), err)
		return
	}

	identity, err := parseIdentity(r)
	if err != nil {
		h.fail(w, r, start, outcomeBadRequest, err)
		return
	}

	pending, err := h.tokens.Consume(ctx, tok)
	if err != nil {
		h.fail(w, r, start, h.lookupOutcome(err), err)
		return
	}
	identity.PlatformID = pending.RequesterID
	identity.VerifiedAt = requestcontext.Now(ctx)

	if err := h.roster.Upsert(ctx, identity); err != nil {
		h.logger.ErrorContext(ctx, "failed to record verified member",
			"request_id", requestID,
			"requester_id", pending.RequesterID,
			"error", err,
		)
		h.fail(w, r, start, outcomeError, err)
		return
	}

	h.logger.InfoContext(ctx, "member verified by portal",
		"request_id", requestID,
		"requester_id", pending.RequesterID,
		"token", token.Redact(tok),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	h.metrics.Observe(outcomeVerified, time.Since(start))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, start time.Time, outcome string, err error) {
	h.metrics.Observe(outcome, time.Since(start))
	if outcome != outcomeError {
		h.logger.InfoContext(r.Context(), "callback rejected",
			"request_id", requestcontext.RequestID(r.Context()),
			"outcome", outcome,
			"client_ip", metadata.GetClientIP(r.Context()),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) lookupOutcome(err error) string {
	if token.IsGone(err) {
		return outcomeUnknownToken
	}
	return outcomeError
}

func (h *Handler) rosterReady() bool {
	if rr, ok := h.roster.(readiness); ok {
		return rr.Ready()
	}
	return h.roster != nil
}

// parseIdentity reads the portal form. Urlencoded and multipart bodies are
// both accepted; every field must be present but may be empty.
func parseIdentity(r *http.Request) (models.Identity, error) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return models.Identity{}, httputil.BadRequest("unreadable form body")
	}
	for _, field := range []string{FieldName, FieldEmail, FieldRollNo} {
		if !r.PostForm.Has(field) {
			return models.Identity{}, httputil.BadRequest("missing field: " + field)
		}
	}
	return models.Identity{
		Name:   r.PostForm.Get(FieldName),
		Email:  r.PostForm.Get(FieldEmail),
		RollNo: r.PostForm.Get(FieldRollNo),
	}, nil
}
