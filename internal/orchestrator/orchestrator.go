// Package orchestrator is CORE's inbound dispatch loop: N concurrent
// stream consumers that classify each envelope, seed and run the
// conversation graph, and publish the reply (or route the failure to
// retry/DLQ). One goroutine per worker slot pulls off a shared consumer
// group, and failures go through a per-message retry counter and, past
// MaxRetries, the dead-letter stream.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/assistant-core/internal/backoff"
	"github.com/haasonsaas/assistant-core/internal/clock"
	"github.com/haasonsaas/assistant-core/internal/convgraph"
	"github.com/haasonsaas/assistant-core/internal/coreerr"
	"github.com/haasonsaas/assistant-core/internal/corrid"
	"github.com/haasonsaas/assistant-core/internal/rcache"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/internal/stream"
	"github.com/haasonsaas/assistant-core/internal/toolkit"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// Deps bundles every collaborator the orchestrator's dispatch loop needs.
type Deps struct {
	StreamIn     *stream.Client
	StreamOut    *stream.Client
	Retry        *stream.RetryTracker
	Store        *statestore.Client
	Graph        *convgraph.Graph
	ToolFactory  *toolkit.Factory
	Assistants   *rcache.Cache[*coremodels.Assistant]
	ToolDefs     *rcache.Cache[[]coremodels.ToolDefinition]
	MaxRetries   int
	RetryDelays  []time.Duration
	IdleReclaim  time.Duration
	BlockTimeout time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
}

// Orchestrator runs the per-message dispatch loop: parse and classify the
// envelope, seed and run the graph, publish the reply, and hand any
// failure to handleProcessingFailure.
type Orchestrator struct {
	deps Deps
}

// New constructs an Orchestrator, applying the default retry policy
// (MaxRetries=3, RetryDelays=[1,5,15]s).
func New(deps Deps) *Orchestrator {
	if deps.MaxRetries <= 0 {
		deps.MaxRetries = stream.DefaultMaxRetries
	}
	if len(deps.RetryDelays) == 0 {
		deps.RetryDelays = stream.DefaultRetryDelays
	}
	if deps.IdleReclaim <= 0 {
		deps.IdleReclaim = time.Minute
	}
	if deps.BlockTimeout <= 0 {
		deps.BlockTimeout = 5 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{deps: deps}
}

// Run starts consumerCount worker goroutines, each independently reading
// and processing messages off StreamIn until ctx is cancelled, then waits
// for all of them to exit.
func (o *Orchestrator) Run(ctx context.Context, consumerCount int) error {
	if consumerCount < 1 {
		consumerCount = 1
	}
	if err := o.deps.StreamIn.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("orchestrator: ensure group: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(consumerCount)
	for i := 0; i < consumerCount; i++ {
		i := i
		go func() {
			defer wg.Done()
			o.worker(ctx, i)
		}()
	}
	wg.Wait()
	return nil
}

func (o *Orchestrator) worker(ctx context.Context, slot int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := o.deps.StreamIn.Read(ctx, o.deps.BlockTimeout, o.deps.IdleReclaim)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			o.deps.Logger.Error("orchestrator: stream read failed", "worker", slot, "error", err)
			_ = o.deps.Clock.Sleep(ctx, time.Second)
			continue
		}
		if msg == nil {
			continue // nothing available within BlockTimeout; loop and block again
		}
		o.processOne(ctx, msg)
	}
}

// processOne parses and validates the envelope, resolves the target
// assistant and seeds the graph, runs it, and publishes and acks the
// reply on success — or hands the failure to handleProcessingFailure.
func (o *Orchestrator) processOne(ctx context.Context, msg *stream.Message) {
	ctx = corrid.WithCorrelationID(ctx, corrid.New())
	log := o.deps.Logger.With("message_id", msg.ID, "correlation_id", corrid.FromContext(ctx))

	var env coremodels.InboundEnvelope
	dec := json.NewDecoder(bytes.NewReader(msg.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		o.handleProcessingFailure(ctx, msg, nil, coreerr.New(coreerr.PermanentValidation, "invalid envelope JSON: "+err.Error()))
		return
	}
	if err := env.Validate(); err != nil {
		o.handleProcessingFailure(ctx, msg, &env, coreerr.New(coreerr.PermanentValidation, err.Error()))
		return
	}

	seed, assistant, tools, err := o.prepare(ctx, env)
	if err != nil {
		o.handleProcessingFailure(ctx, msg, &env, err)
		return
	}

	seed.CorrelationID = corrid.FromContext(ctx)
	state, err := o.deps.Graph.Run(ctx, assistant, tools, seed)
	if err != nil {
		log.Error("orchestrator: graph run failed", "user_id", env.UserID, "assistant_id", assistant.ID, "error", err)
		o.handleProcessingFailure(ctx, msg, &env, err)
		return
	}

	resp := coremodels.AssistantResponse{
		UserID: env.UserID, Status: coremodels.ResponseSuccess,
		Source: env.Metadata.Source, Response: convgraph.FinalText(state),
	}
	if err := o.publish(ctx, resp); err != nil {
		log.Error("orchestrator: publish reply failed", "user_id", env.UserID, "error", err)
		o.handleProcessingFailure(ctx, msg, &env, coreerr.Wrap(coreerr.TransientNetwork, "publish reply failed", err))
		return
	}

	if err := o.deps.StreamIn.Ack(ctx, msg.ID); err != nil {
		log.Error("orchestrator: ack failed", "error", err)
	}
	if err := o.deps.Retry.Clear(ctx, msg.ID); err != nil {
		log.Warn("orchestrator: clear retry counter failed", "error", err)
	}
}

// prepare resolves the target assistant and materializes the turn's tools,
// returning a ready-to-run convgraph.Seed. A user_message with no active
// secretary, or a trigger for a user_id that has none, maps to
// PermanentValidation with error_type NoSecretaryAssigned — dead-lettered
// rather than silently dropped.
func (o *Orchestrator) prepare(ctx context.Context, env coremodels.InboundEnvelope) (convgraph.Seed, *coremodels.Assistant, *toolkit.Registry, error) {
	secretary, err := o.deps.Store.GetActiveSecretary(ctx, env.UserID)
	if err != nil {
		return convgraph.Seed{}, nil, nil, coreerr.Wrap(coreerr.DependencyUnavailable, "get active secretary", err)
	}
	if secretary == nil {
		return convgraph.Seed{}, nil, nil, coreerr.New(coreerr.PermanentValidation, "NoSecretaryAssigned")
	}

	assistant, err := o.loadAssistant(ctx, secretary.SecretaryID)
	if err != nil {
		return convgraph.Seed{}, nil, nil, err
	}
	if assistant == nil {
		return convgraph.Seed{}, nil, nil, coreerr.New(coreerr.PermanentValidation, "assistant not found: "+secretary.SecretaryID)
	}

	defs, err := o.loadToolDefs(ctx, assistant.ID)
	if err != nil {
		return convgraph.Seed{}, nil, nil, err
	}
	tools := o.deps.ToolFactory.Build(ctx, defs, toolkit.InvocationContext{
		UserID: env.UserID, AssistantID: assistant.ID, CorrelationID: corrid.FromContext(ctx),
	})

	seed := convgraph.Seed{UserID: env.UserID, AssistantID: assistant.ID}
	switch env.Kind {
	case coremodels.EnvelopeUserMessage:
		seed.IncomingText = env.Content
	case coremodels.EnvelopeTrigger:
		seed.TriggeringEvent = &coremodels.TriggeringEvent{
			Kind: "trigger", TriggerType: string(env.TriggerType), Source: env.Source, RawPayload: env.Payload,
		}
	}
	return seed, assistant, tools, nil
}

func (o *Orchestrator) loadAssistant(ctx context.Context, assistantID string) (*coremodels.Assistant, error) {
	if o.deps.Assistants == nil {
		return o.deps.Store.GetAssistant(ctx, assistantID)
	}
	a, err := o.deps.Assistants.Get(assistantID, func() (*coremodels.Assistant, error) {
		return o.deps.Store.GetAssistant(ctx, assistantID)
	})
	if err != nil {
		return nil, coreerr.Wrap(coreerr.DependencyUnavailable, "get assistant", err)
	}
	return a, nil
}

func (o *Orchestrator) loadToolDefs(ctx context.Context, assistantID string) ([]coremodels.ToolDefinition, error) {
	if o.deps.ToolDefs == nil {
		defs, err := o.deps.Store.ListToolDefinitions(ctx, assistantID)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.DependencyUnavailable, "list tool definitions", err)
		}
		return defs, nil
	}
	defs, err := o.deps.ToolDefs.Get(assistantID, func() ([]coremodels.ToolDefinition, error) {
		return o.deps.Store.ListToolDefinitions(ctx, assistantID)
	})
	if err != nil {
		return nil, coreerr.Wrap(coreerr.DependencyUnavailable, "list tool definitions", err)
	}
	return defs, nil
}

func (o *Orchestrator) publish(ctx context.Context, resp coremodels.AssistantResponse) error {
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	result, err := backoff.Retry(ctx, backoff.StateStorePolicy(), 3, func(int) (string, error) {
		return o.deps.StreamOut.Add(ctx, payload)
	})
	if err != nil && result.LastErr != nil {
		return result.LastErr
	}
	return err
}

// handleProcessingFailure implements the retry-then-DLQ policy: a
// PermanentValidation error (including an explicit NoSecretaryAssigned)
// dead-letters immediately; anything else increments the per-message retry
// counter and dead-letters once it reaches MaxRetries (a GraphInvariant
// error is retried once and dead-lettered on its second failure).
// Otherwise the entry is left unacked for a later XAUTOCLAIM reclaim, and
// the worker sleeps for that attempt's RetryDelays entry before reading
// again. Outbound-stream failures are never dead-lettered: after publish's
// inline retries they fall under the ordinary TransientNetwork retry
// path instead, since there is no outbound DLQ. A failure caused by
// cooperative shutdown (ctx cancelled) is re-queued with no ack and no
// retry-count bump, regardless of how cause itself was classified — it was
// interrupted, not broken.
func (o *Orchestrator) handleProcessingFailure(ctx context.Context, msg *stream.Message, env *coremodels.InboundEnvelope, cause error) {
	kind := coreerr.KindOf(cause)
	if ctx.Err() != nil {
		kind = coreerr.Cancelled
	}
	log := o.deps.Logger.With("message_id", msg.ID, "error_kind", kind)

	if kind == coreerr.Cancelled {
		log.Warn("orchestrator: processing interrupted by shutdown, leaving unacked", "error", cause)
		return
	}

	if kind == coreerr.PermanentValidation {
		o.deadLetter(ctx, msg, env, kind, cause, 0)
		return
	}

	count, err := o.deps.Retry.Increment(ctx, msg.ID)
	if err != nil {
		log.Error("orchestrator: increment retry count failed", "error", err)
		return
	}
	limit := int64(o.deps.MaxRetries)
	if kind == coreerr.GraphInvariant && limit > 2 {
		limit = 2
	}
	if count >= limit {
		o.deadLetter(ctx, msg, env, kind, cause, count)
		return
	}
	log.Warn("orchestrator: processing failed, leaving unacked for retry", "attempt", count, "error", cause)
	// No ack: the message remains pending until a Read on this or another
	// consumer reclaims it through XAUTOCLAIM once IdleReclaim elapses.
	delay := o.deps.RetryDelays[len(o.deps.RetryDelays)-1]
	if int(count) <= len(o.deps.RetryDelays) {
		delay = o.deps.RetryDelays[count-1]
	}
	_ = o.deps.Clock.Sleep(ctx, delay)
}

func (o *Orchestrator) deadLetter(ctx context.Context, msg *stream.Message, env *coremodels.InboundEnvelope, kind coreerr.Kind, cause error, retryCount int64) {
	errorType := string(kind)
	var ce *coreerr.CoreError
	if errors.As(cause, &ce) && ce.Message == "NoSecretaryAssigned" {
		errorType = ce.Message
	}
	reason := stream.DLQReason{
		OriginalMessageID: msg.ID, ErrorType: errorType, ErrorMessage: cause.Error(), RetryCount: retryCount,
	}
	if env != nil && env.UserID != 0 {
		uid := env.UserID
		reason.UserID = &uid
	}
	if err := o.deps.StreamIn.SendToDLQ(ctx, msg.Payload, reason); err != nil {
		o.deps.Logger.Error("orchestrator: send to dlq failed", "message_id", msg.ID, "error", err)
		return
	}
	if err := o.deps.StreamIn.Ack(ctx, msg.ID); err != nil {
		o.deps.Logger.Error("orchestrator: ack after dlq failed", "message_id", msg.ID, "error", err)
	}
	if err := o.deps.Retry.Clear(ctx, msg.ID); err != nil {
		o.deps.Logger.Warn("orchestrator: clear retry counter after dlq failed", "message_id", msg.ID, "error", err)
	}
}
