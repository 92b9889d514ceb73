package llmclient

import "context"

// BatchRequestStatus is the closed, provider-agnostic status a submitted
// batch request settles into.
type BatchRequestStatus string

const (
	BatchRequestSucceeded BatchRequestStatus = "succeeded"
	BatchRequestErrored   BatchRequestStatus = "errored"
	BatchRequestExpired   BatchRequestStatus = "expired"
)

// BatchStatus is the closed lifecycle of the batch job itself, as reported
// by the provider's poll endpoint.
type BatchStatus string

const (
	BatchInProgress BatchStatus = "in_progress"
	BatchEnded      BatchStatus = "ended"
)

// BatchRequest is one turn submitted as part of a batch, tagged with a
// caller-chosen CustomID so results can be joined back to their source.
type BatchRequest struct {
	CustomID string
	Turn     Turn
}

// BatchResult is one settled entry from a collected batch.
type BatchResult struct {
	CustomID string
	Status   BatchRequestStatus
	Reply    Reply
	Error    string
}

// BatchProvider is the submit/poll/collect capability the memory extractor
// depends on for its periodic fact-extraction runs, kept separate from
// Client so a provider without native batch support can still serve
// single-turn Complete calls.
type BatchProvider interface {
	// SubmitBatch submits requests as one provider-side batch job and
	// returns its provider-assigned batch id.
	SubmitBatch(ctx context.Context, requests []BatchRequest) (string, error)
	// PollBatch reports whether providerBatchID has finished processing.
	PollBatch(ctx context.Context, providerBatchID string) (BatchStatus, error)
	// CollectBatch retrieves results for an ended batch, one BatchResult
	// per submitted BatchRequest (by CustomID).
	CollectBatch(ctx context.Context, providerBatchID string) ([]BatchResult, error)
}
