package chat

import (
	"context"

	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/orders"
	"go.uber.org/zap"
)

// GuestFlowService executes the guest order-verification flow for one
// message: it runs the pure reducer over the prior state and then carries
// out the side effect the reducer asked for. The only side effect with I/O
// is the rate-limited, signed order lookup.
type GuestFlowService struct {
	limiter orders.RateLimiter
	client  orders.LookupClient
	replier GuestReplier
	logger  *zap.Logger
}

// NewGuestFlowService creates a GuestFlowService
func NewGuestFlowService(limiter orders.RateLimiter, client orders.LookupClient, replier GuestReplier, logger *zap.Logger) *GuestFlowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuestFlowService{
		limiter: limiter,
		client:  client,
		replier: replier,
		logger:  logger,
	}
}

// GuestFlowRequest is one message advanced through the flow
type GuestFlowRequest struct {
	Prior         conversation.GuestState
	Authenticated bool
	Message       conversation.ClassifiedMessage
	RequestID     string
	ClientIP      string
	UserID        string
}

// GuestFlowOutcome is what the flow decided for this message. Handled is
// false when the message falls through to normal intent handling.
type GuestFlowOutcome struct {
	Handled      bool
	Reply        string
	NextState    conversation.GuestState
	Trace        *conversation.LookupTrace
	RateLimited  bool
	Degraded     bool
	RequiresAuth bool
	ErrorCode    string
}

// Advance runs the reducer and executes its side effect
func (s *GuestFlowService) Advance(ctx context.Context, req GuestFlowRequest) *GuestFlowOutcome {
	step := conversation.AdvanceGuestFlow(req.Prior, req.Authenticated, req.Message)

	outcome := &GuestFlowOutcome{NextState: step.Next}

	switch step.Action {
	case conversation.ActionFallThrough:
		return outcome

	case conversation.ActionAskHasData:
		outcome.Handled = true
		outcome.Reply = s.replier.AskHasData()

	case conversation.ActionAskPayload:
		outcome.Handled = true
		outcome.Reply = s.replier.AskPayload()

	case conversation.ActionAskMissing:
		outcome.Handled = true
		outcome.Reply = s.replier.AskMissing(step.MissingFactors, step.MissingOrderID)

	case conversation.ActionRequiresAuth:
		outcome.Handled = true
		outcome.RequiresAuth = true
		outcome.Reply = s.replier.RequiresAuth()

	case conversation.ActionAttemptLookup:
		outcome.Handled = true
		s.attemptLookup(ctx, req, outcome)
	}

	return outcome
}

// attemptLookup consults the limiter and, when allowed, issues the signed
// lookup. The limiter runs first so abuse never spends the storefront's own
// rate budget.
func (s *GuestFlowService) attemptLookup(ctx context.Context, req GuestFlowRequest, outcome *GuestFlowOutcome) {
	decision := s.limiter.Consume(ctx, req.ClientIP, req.UserID, req.Message.OrderID)
	outcome.Degraded = decision.Degraded

	if !decision.Allowed {
		outcome.RateLimited = true
		outcome.Reply = s.replier.RateLimited()
		s.logger.Info("order lookup blocked by rate limiter",
			zap.String("request_id", req.RequestID),
			zap.String("scope", string(decision.BlockedBy)),
			zap.Int64("order_id", req.Message.OrderID))
		return
	}

	result, err := s.client.LookupOrder(ctx, req.RequestID, req.Message.OrderID, req.Message.Factors)
	if err != nil {
		outcome.Reply = s.replier.BackendError()
		outcome.ErrorCode = "EXTERNAL_SERVICE"
		s.logger.Error("order lookup failed",
			zap.String("request_id", req.RequestID),
			zap.Int64("order_id", req.Message.OrderID),
			zap.Error(err))
		return
	}

	outcome.Reply = s.replier.LookupReply(result)
	outcome.Trace = &conversation.LookupTrace{
		OrderID:         req.Message.OrderID,
		FactorsProvided: req.Message.Factors.Count(),
		FactorKinds:     req.Message.Factors.Kinds(),
		ResultCode:      result.Code,
		HTTPStatus:      result.HTTPStatus,
		Attempts:        result.Attempts,
	}

	s.logger.Info("order lookup completed",
		zap.String("request_id", req.RequestID),
		zap.Int64("order_id", req.Message.OrderID),
		zap.String("result", string(result.Code)),
		zap.Int("attempts", result.Attempts))
}

// BackendErrorReply exposes the generic failure wording so the pipeline can
// answer partial failures consistently
func (s *GuestFlowService) BackendErrorReply() string {
	return s.replier.BackendError()
}
