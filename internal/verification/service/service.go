// Package service runs the /verify flow: it checks the roster, hands out a
// sign-in link, waits for the portal callback and then applies the
// community policy.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"casbot/internal/chat"
	"casbot/internal/roster/models"
	"casbot/internal/verification/metrics"
	"casbot/internal/verification/token"
	"casbot/pkg/platform/sentinel"
	"casbot/pkg/requestcontext"
)

// State is where a verification run ended.
type State int

const (
	Unverified State = iota
	AwaitingCallback
	Verified
	TimedOut
	// LinkResent means a live link already existed; another run owns the wait.
	LinkResent
)

func (s State) String() string {
	switch s {
	case Unverified:
		return "unverified"
	case AwaitingCallback:
		return "awaiting_callback"
	case Verified:
		return "verified"
	case TimedOut:
		return "timed_out"
	case LinkResent:
		return "link_resent"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	// DefaultPollInterval is how often the wait loop re-checks the registry.
	DefaultPollInterval = time.Second
	// settleChecks bounds how many polls the flow waits for the roster write
	// that follows a consumed token.
	settleChecks = 5
)

const (
	MsgLink = "[This](<%s>) is your verification link, click it to login and verify yourself.\n" +
		"IMPORTANT NOTE: Above link is secret, do not share with anyone! This link expires <t:%d:R>."
	MsgTimedOut = "%s, you haven't been CAS-verified, you may retry to /verify"
)

// Roster is the read side of the roster store.
type Roster interface {
	FindByPlatformID(ctx context.Context, platformID string) (*models.Identity, error)
}

// Effector applies the community policy after a successful sign-in.
type Effector interface {
	Apply(ctx context.Context, inv chat.Invocation, resp chat.Responder) error
}

// Service orchestrates verification runs.
type Service struct {
	tokens       token.Registry
	roster       Roster
	effector     Effector
	baseURL      string
	pollInterval time.Duration
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service. baseURL is the portal root that serves /cas.
func New(tokens token.Registry, roster Roster, effector Effector, baseURL string, opts ...Option) *Service {
	s := &Service{
		tokens:       tokens,
		roster:       roster,
		effector:     effector,
		baseURL:      baseURL,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
		logger:       slog.Default(),
		tracer:       otel.Tracer("casbot/verification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify runs the flow for the invoker of inv. Errors are returned for
// infrastructure failures; expected outcomes are reported through State.
func (s *Service) Verify(ctx context.Context, inv chat.Invocation, resp chat.Responder) (state State, err error) {
	ctx, span := s.tracer.Start(ctx, "verification.Verify", trace.WithAttributes(
		attribute.String("requester.id", inv.UserID),
		attribute.Int64("community.id", inv.CommunityID()),
	))
	defer func() {
		span.SetAttributes(attribute.String("verification.state", state.String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.metrics.IncrementOutcome("error")
		} else {
			s.metrics.IncrementOutcome(state.String())
		}
		span.End()
	}()

	known, err := s.isVerified(ctx, inv.UserID)
	if err != nil {
		return Unverified, err
	}
	if known {
		return s.complete(ctx, inv, resp)
	}

	pending, created, err := s.tokens.Issue(ctx, inv.UserID)
	if err != nil {
		return Unverified, fmt.Errorf("issue sign-in link: %w", err)
	}
	s.metrics.IncrementIssued(!created)

	link := s.Link(pending.Token)
	if err := resp.Reply(ctx, chat.Private(MsgLink, link, pending.ExpiresAt.Unix())); err != nil {
		if !created {
			return LinkResent, fmt.Errorf("send sign-in link: %w", err)
		}
		s.expire(ctx, pending)
		return Unverified, fmt.Errorf("send sign-in link: %w", err)
	}
	if !created {
		s.logger.InfoContext(ctx, "sign-in link resent",
			"requester_id", inv.UserID,
			"token", token.Redact(pending.Token),
		)
		return LinkResent, nil
	}

	s.logger.InfoContext(ctx, "awaiting portal callback",
		"requester_id", inv.UserID,
		"token", token.Redact(pending.Token),
		"expires_at", pending.ExpiresAt,
	)
	span.AddEvent("link delivered")

	done := s.metrics.StartWait()
	consumed, err := s.wait(ctx, pending)
	done()
	if err != nil {
		return AwaitingCallback, err
	}

	if consumed {
		verified, err := s.settle(ctx, inv.UserID)
		if err != nil {
			return AwaitingCallback, err
		}
		if verified {
			return s.complete(ctx, inv, resp)
		}
	}

	s.logger.InfoContext(ctx, "verification timed out", "requester_id", inv.UserID)
	if err := resp.Reply(ctx, chat.Public(MsgTimedOut, inv.Mention)); err != nil {
		return TimedOut, fmt.Errorf("send timeout notice: %w", err)
	}
	return TimedOut, nil
}

// Link builds the portal URL carrying tok.
func (s *Service) Link(tok string) string {
	return s.baseURL + "/cas?token=" + url.QueryEscape(tok)
}

// waitResult says who ended a wait.
type waitResult int

const (
	stillPending waitResult = iota
	callbackWon
	timeoutWon
)

// wait blocks until the token leaves the registry or reaches its expiry. It
// reports whether the callback consumed the token. On expiry the token is
// removed here, so a late callback finds nothing.
func (s *Service) wait(ctx context.Context, p token.Pending) (bool, error) {
	deadline := time.NewTimer(p.ExpiresAt.Sub(s.now()))
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var watch <-chan struct{}
	if w, ok := s.tokens.(token.Watcher); ok {
		watch = w.Watch(p.Token)
	}

	for {
		result := stillPending
		var err error

		select {
		case <-ctx.Done():
			s.expire(ctx, p)
			return false, ctx.Err()
		case <-watch:
			watch = nil
			result, err = s.check(ctx, p)
		case <-ticker.C:
			result, err = s.check(ctx, p)
		case <-deadline.C:
			result, err = s.claimTimeout(ctx, p)
		}

		if err != nil {
			return false, err
		}
		if result != stillPending {
			return result == callbackWon, nil
		}
	}
}

// check polls the registry for the token.
func (s *Service) check(ctx context.Context, p token.Pending) (waitResult, error) {
	_, err := s.tokens.Lookup(ctx, p.Token)
	switch {
	case err == nil:
		return stillPending, nil
	case errors.Is(err, sentinel.ErrExpired):
		return s.claimTimeout(ctx, p)
	case errors.Is(err, sentinel.ErrNotFound):
		return callbackWon, nil
	default:
		s.logger.WarnContext(ctx, "token lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"requester_id", requestcontext.RequesterID(ctx),
			"token", token.Redact(p.Token),
			"error", err,
		)
		return stillPending, nil
	}
}

// claimTimeout races the callback for the token. Removing it ourselves means
// the run timed out; finding it gone means the callback consumed it first.
func (s *Service) claimTimeout(ctx context.Context, p token.Pending) (waitResult, error) {
	_, err := s.tokens.Consume(ctx, p.Token)
	switch {
	case err == nil, errors.Is(err, sentinel.ErrExpired):
		return timeoutWon, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return callbackWon, nil
	default:
		return stillPending, fmt.Errorf("expire sign-in link: %w", err)
	}
}

// settle waits briefly for the roster write that follows a consumed token.
func (s *Service) settle(ctx context.Context, requesterID string) (bool, error) {
	for i := range settleChecks {
		verified, err := s.isVerified(ctx, requesterID)
		if err != nil || verified {
			return verified, err
		}
		if i == settleChecks-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
	return false, nil
}

func (s *Service) complete(ctx context.Context, inv chat.Invocation, resp chat.Responder) (State, error) {
	if err := s.effector.Apply(ctx, inv, resp); err != nil {
		return Verified, err
	}
	s.logger.InfoContext(ctx, "member verified",
		"requester_id", inv.UserID,
		"community_id", inv.CommunityID(),
	)
	return Verified, nil
}

func (s *Service) isVerified(ctx context.Context, requesterID string) (bool, error) {
	_, err := s.roster.FindByPlatformID(ctx, requesterID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check roster: %w", err)
	}
	return true, nil
}

func (s *Service) expire(ctx context.Context, p token.Pending) {
	if err := s.tokens.Expire(context.WithoutCancel(ctx), p.Token); err != nil {
		s.logger.WarnContext(ctx, "failed to expire sign-in link",
			"requester_id", requestcontext.RequesterID(ctx),
			"token", token.Redact(p.Token),
			"error", err,
		)
	}
}
