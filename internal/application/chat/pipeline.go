package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/convo/backend/internal/domain/audit"
	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TurnPipeline processes one inbound message end to end. The step order is
// a correctness contract, not a style choice: claim before any side effect,
// persist the turn before marking the event processed, audit last. A crash
// between persisting and marking leaves the event claimable again, an
// accepted at-least-once residual window.
type TurnPipeline struct {
	events        conversation.EventRepository
	turns         conversation.TurnRepository
	users         conversation.UserRepository
	conversations conversation.ConversationRepository
	auditRepo     audit.Repository
	classifier    IntentClassifier
	enricher      ContextEnricher
	generator     ReplyGenerator
	guestFlow     *GuestFlowService

	maxMessageChars int
	historyWindow   int
	logger          *zap.Logger
}

// PipelineParams bundles the pipeline's collaborators
type PipelineParams struct {
	Events          conversation.EventRepository
	Turns           conversation.TurnRepository
	Users           conversation.UserRepository
	Conversations   conversation.ConversationRepository
	Audit           audit.Repository
	Classifier      IntentClassifier
	Enricher        ContextEnricher
	Generator       ReplyGenerator
	GuestFlow       *GuestFlowService
	MaxMessageChars int
	HistoryWindow   int
	Logger          *zap.Logger
}

// NewTurnPipeline creates a TurnPipeline
func NewTurnPipeline(p PipelineParams) *TurnPipeline {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.MaxMessageChars <= 0 {
		p.MaxMessageChars = 2000
	}
	if p.HistoryWindow <= 0 {
		p.HistoryWindow = 12
	}
	return &TurnPipeline{
		events:          p.Events,
		turns:           p.Turns,
		users:           p.Users,
		conversations:   p.Conversations,
		auditRepo:       p.Audit,
		classifier:      p.Classifier,
		enricher:        p.Enricher,
		generator:       p.Generator,
		guestFlow:       p.GuestFlow,
		maxMessageChars: p.MaxMessageChars,
		historyWindow:   p.HistoryWindow,
		logger:          p.Logger,
	}
}

// TurnRequest is one inbound delivery as seen by the pipeline
type TurnRequest struct {
	Channel         conversation.Channel
	ExternalEventID string
	RequestID       string
	ClientIP        string
	Text            string
	Payload         []byte
	UserExternalID  string
	DisplayName     string
	AuthSubject     string
	Authenticated   bool
}

// Result is what the pipeline hands back to the transport layer
type Result struct {
	Reply          string
	ConversationID uuid.UUID
	Status         audit.Status
	Duplicate      bool
}

// Process runs the pipeline for one delivery. Input errors are returned
// before any side effect; failures after the claim answer with the generic
// backend-error reply and a failure status instead of an error, so retried
// deliveries and user experience stay consistent.
func (p *TurnPipeline) Process(ctx context.Context, req TurnRequest) (*Result, error) {
	start := time.Now()

	text, err := p.sanitize(req)
	if err != nil {
		return nil, err
	}

	event := conversation.NewExternalEvent(req.Channel, req.ExternalEventID, req.RequestID, req.Payload)
	claim, err := p.events.Claim(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("claim event: %w", err)
	}
	if claim.Duplicate {
		return p.replayDuplicate(ctx, req, text, start), nil
	}

	user, conv, history, err := p.resolveConversation(ctx, req)
	if err != nil {
		return p.fail(ctx, req, uuid.Nil, uuid.Nil, conversation.IntentUnknown, text, start,
			fmt.Errorf("resolve conversation: %w", err)), nil
	}

	msg := p.classify(ctx, text)
	priorState := conversation.GuestNone
	if len(history) > 0 {
		priorState = history[len(history)-1].Metadata.GuestState
	}

	outcome := p.guestFlow.Advance(ctx, GuestFlowRequest{
		Prior:         priorState,
		Authenticated: user.Authenticated,
		Message:       msg,
		RequestID:     req.RequestID,
		ClientIP:      req.ClientIP,
		UserID:        user.ID.String(),
	})

	reply := outcome.Reply
	deterministic := outcome.Handled
	if !outcome.Handled {
		reply = p.generate(ctx, conv, history, msg)
	}

	turn := &conversation.Turn{
		BaseEntity:      shared.NewBaseEntity(),
		ConversationID:  conv.ID,
		UserID:          user.ID,
		Channel:         req.Channel,
		ExternalEventID: req.ExternalEventID,
		UserMessage:     text,
		AssistantReply:  reply,
		Metadata: conversation.TurnMetadata{
			Intent:        msg.Intent,
			Confidence:    msg.Confidence,
			GuestState:    outcome.NextState,
			Lookup:        outcome.Trace,
			RateLimited:   outcome.RateLimited,
			Degraded:      outcome.Degraded,
			Deterministic: deterministic,
		},
	}
	if err := p.turns.Save(ctx, turn); err != nil {
		return p.fail(ctx, req, user.ID, conv.ID, msg.Intent, text, start,
			fmt.Errorf("persist turn: %w", err)), nil
	}

	if err := p.events.MarkProcessed(ctx, req.Channel, req.ExternalEventID); err != nil {
		return p.fail(ctx, req, user.ID, conv.ID, msg.Intent, text, start,
			fmt.Errorf("mark processed: %w", err)), nil
	}

	status := audit.StatusSuccess
	if outcome.RequiresAuth {
		status = audit.StatusRequiresAuth
	}
	p.appendAudit(ctx, &audit.Entry{
		BaseEntity:     shared.NewBaseEntity(),
		RequestID:      req.RequestID,
		Channel:        req.Channel,
		UserID:         user.ID,
		ConversationID: conv.ID,
		Intent:         msg.Intent,
		Status:         status,
		Message:        text,
		LatencyMs:      time.Since(start).Milliseconds(),
		ErrorCode:      outcome.ErrorCode,
		Metadata:       auditMetadata(turn.Metadata),
	})

	return &Result{
		Reply:          reply,
		ConversationID: conv.ID,
		Status:         status,
	}, nil
}

// sanitize bound-checks the inbound text before any side effect
func (p *TurnPipeline) sanitize(req TurnRequest) (string, error) {
	if !req.Channel.IsValid() {
		return "", shared.NewDomainError("INVALID_CHANNEL", "Unknown channel")
	}
	if req.ExternalEventID == "" {
		return "", shared.NewDomainError("MISSING_EVENT_ID", "External event id is required")
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", shared.NewDomainError("EMPTY_MESSAGE", "Message text cannot be empty")
	}
	if utf8.RuneCountInString(text) > p.maxMessageChars {
		return "", shared.NewDomainError("MESSAGE_TOO_LONG",
			fmt.Sprintf("Message exceeds %d characters", p.maxMessageChars))
	}
	return text, nil
}

// replayDuplicate answers a duplicate delivery with the originally persisted
// reply, without re-running any side effect
func (p *TurnPipeline) replayDuplicate(ctx context.Context, req TurnRequest, text string, start time.Time) *Result {
	result := &Result{Status: audit.StatusDuplicate, Duplicate: true}

	turn, err := p.turns.LastForEvent(ctx, req.Channel, req.ExternalEventID)
	switch {
	case err == nil:
		result.Reply = turn.AssistantReply
		result.ConversationID = turn.ConversationID
	default:
		// Claimed but no turn persisted: the first delivery is either still
		// in flight or died before persisting. Answer generically; a later
		// retry of a dead delivery will find the event still claimable once
		// it was marked failed.
		result.Reply = p.guestFlow.BackendErrorReply()
		p.logger.Warn("duplicate delivery with no persisted turn",
			zap.String("request_id", req.RequestID),
			zap.String("channel", string(req.Channel)),
			zap.String("external_event_id", req.ExternalEventID))
	}

	entry := &audit.Entry{
		BaseEntity: shared.NewBaseEntity(),
		RequestID:  req.RequestID,
		Channel:    req.Channel,
		Status:     audit.StatusDuplicate,
		Message:    text,
		LatencyMs:  time.Since(start).Milliseconds(),
	}
	if turn != nil {
		entry.UserID = turn.UserID
		entry.ConversationID = turn.ConversationID
		entry.Intent = turn.Metadata.Intent
	}
	p.appendAudit(ctx, entry)

	return result
}

// resolveConversation upserts the user and conversation records and loads
// the bounded recent history
func (p *TurnPipeline) resolveConversation(ctx context.Context, req TurnRequest) (*conversation.User, *conversation.Conversation, []*conversation.Turn, error) {
	user, err := p.users.Upsert(ctx, &conversation.User{
		BaseEntity:    shared.NewBaseEntity(),
		Channel:       req.Channel,
		ExternalID:    req.UserExternalID,
		AuthSubject:   req.AuthSubject,
		DisplayName:   req.DisplayName,
		Authenticated: req.Authenticated,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("upsert user: %w", err)
	}

	conv, err := p.conversations.Upsert(ctx, &conversation.Conversation{
		BaseEntity: shared.NewBaseEntity(),
		UserID:     user.ID,
		Channel:    req.Channel,
		ExternalID: req.UserExternalID,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("upsert conversation: %w", err)
	}

	history, err := p.turns.History(ctx, conv.ID, p.historyWindow)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load history: %w", err)
	}
	return user, conv, history, nil
}

// classify runs the external classifier, degrading to an unknown-intent
// parse when it fails
func (p *TurnPipeline) classify(ctx context.Context, text string) conversation.ClassifiedMessage {
	msg, err := p.classifier.Classify(ctx, text)
	if err != nil {
		p.logger.Warn("intent classification failed, treating as unknown", zap.Error(err))
		return conversation.Classify(text, conversation.IntentUnknown, 0)
	}
	return msg
}

// generate produces the reply for messages the guest flow fell through on.
// Enrichment and generation are best effort.
func (p *TurnPipeline) generate(ctx context.Context, conv *conversation.Conversation, history []*conversation.Turn, msg conversation.ClassifiedMessage) string {
	enrichment, err := p.enricher.Enrich(ctx, conv, history, msg)
	if err != nil {
		p.logger.Warn("context enrichment failed", zap.Error(err))
		enrichment = nil
	}

	reply, err := p.generator.Generate(ctx, ReplyInput{
		Message:    msg,
		History:    history,
		Enrichment: enrichment,
	})
	if err != nil {
		p.logger.Error("reply generation failed", zap.Error(err))
		return p.guestFlow.BackendErrorReply()
	}
	return reply
}

// fail handles a pipeline-internal fault after the claim: terminal failure
// mark, failure audit, generic reply. It never re-persists or re-marks.
func (p *TurnPipeline) fail(ctx context.Context, req TurnRequest, userID, conversationID uuid.UUID, intent conversation.Intent, text string, start time.Time, cause error) *Result {
	p.logger.Error("turn pipeline failed",
		zap.String("request_id", req.RequestID),
		zap.String("channel", string(req.Channel)),
		zap.String("external_event_id", req.ExternalEventID),
		zap.Error(cause))

	if err := p.events.MarkFailed(ctx, req.Channel, req.ExternalEventID, cause.Error()); err != nil {
		p.logger.Error("mark failed did not stick", zap.Error(err))
	}

	p.appendAudit(ctx, &audit.Entry{
		BaseEntity:     shared.NewBaseEntity(),
		RequestID:      req.RequestID,
		Channel:        req.Channel,
		UserID:         userID,
		ConversationID: conversationID,
		Intent:         intent,
		Status:         audit.StatusFailure,
		Message:        text,
		LatencyMs:      time.Since(start).Milliseconds(),
		ErrorCode:      "PIPELINE_FAILURE",
		Metadata:       map[string]any{"cause": cause.Error()},
	})

	return &Result{
		Reply:          p.guestFlow.BackendErrorReply(),
		ConversationID: conversationID,
		Status:         audit.StatusFailure,
	}
}

// appendAudit writes the audit entry; append failures are logged and never
// fail the turn they describe
func (p *TurnPipeline) appendAudit(ctx context.Context, entry *audit.Entry) {
	if err := p.auditRepo.Append(ctx, entry); err != nil {
		p.logger.Error("audit append failed",
			zap.String("request_id", entry.RequestID),
			zap.String("status", string(entry.Status)),
			zap.Error(err))
	}
}

func auditMetadata(m conversation.TurnMetadata) map[string]any {
	meta := map[string]any{
		"guest_state":   string(m.GuestState),
		"deterministic": m.Deterministic,
	}
	if m.Lookup != nil {
		meta["order_id"] = m.Lookup.OrderID
		meta["lookup_result"] = string(m.Lookup.ResultCode)
		meta["lookup_attempts"] = m.Lookup.Attempts
	}
	if m.RateLimited {
		meta["rate_limited"] = true
	}
	if m.Degraded {
		meta["degraded"] = true
	}
	return meta
}
