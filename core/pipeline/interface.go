package pipeline

import (
	"context"
	"errors"

	"github.com/siherrmann/biograph/core/resolver"
	"github.com/siherrmann/biograph/model"
)

// ExtractFunc turns one document into person mention candidates.
// Malformed mentions are dropped during validation, an error means the
// extraction collaborator itself failed.
type ExtractFunc func(ctx context.Context, document *model.Document) ([]*model.Candidate, error)

// ClassifyFunc decides whether a candidate denotes a real historical person
// and returns the label with its confidence.
type ClassifyFunc func(ctx context.Context, candidate *model.Candidate) (model.CandidateLabel, float64, error)

// StructureFunc normalizes a candidate's raw attributes into the typed
// schema.
type StructureFunc func(ctx context.Context, candidate *model.Candidate) (*model.StructuredAttributes, error)

// EmbedFunc generates a profile embedding used for similarity lookups during
// review.
type EmbedFunc func(text string) ([]float32, error)

// Route tells the engine what to do with a processed candidate.
type Route string

const (
	RouteResolve Route = "resolve"
	RouteReject  Route = "reject"
	RouteReview  Route = "review"
)

// RejectReasonFictional marks mentions classified as fictional or otherwise
// not a real person.
const RejectReasonFictional = "fictional"

// CandidateResult is the outcome of running one candidate through the
// classification and structuring stages.
type CandidateResult struct {
	Candidate *model.Candidate
	Route     Route
	Reason    string
}

// Pipeline combines the per document and per candidate stages.
type Pipeline struct {
	Extractor  ExtractFunc
	Classifier ClassifyFunc
	Structurer StructureFunc
	Embedder   EmbedFunc // Optional
	// Observer is notified when a candidate enters a stage. The engine uses
	// it to expose its state machine.
	Observer func(state model.RunState)
}

// NewPipeline creates a new processing pipeline.
func NewPipeline(extractor ExtractFunc, classifier ClassifyFunc, structurer StructureFunc) *Pipeline {
	return &Pipeline{
		Extractor:  extractor,
		Classifier: classifier,
		Structurer: structurer,
	}
}

// SetEmbedder sets the profile embedding function.
func (p *Pipeline) SetEmbedder(embedder EmbedFunc) {
	p.Embedder = embedder
}

func (p *Pipeline) notify(state model.RunState) {
	if p.Observer != nil {
		p.Observer(state)
	}
}

// ProcessCandidate runs one candidate through classification and structuring
// and decides its route. Malformed collaborator output that exhausted its
// repair retries routes the candidate to review instead of failing, only an
// unreachable collaborator is returned as an error.
func (p *Pipeline) ProcessCandidate(ctx context.Context, candidate *model.Candidate, classifyThreshold float64) (*CandidateResult, error) {
	p.notify(model.StateClassifying)
	label, confidence, err := p.Classifier(ctx, candidate)
	if err != nil {
		if Unreachable(err) {
			return nil, err
		}
		candidate.Attributes = minimalAttributes(candidate)
		return &CandidateResult{Candidate: candidate, Route: RouteReview, Reason: resolver.ReasonClassificationFailed}, nil
	}
	candidate.Label = label
	candidate.LabelConfidence = confidence

	// A low confidence verdict in either direction goes to a human, a false
	// negative would remove a real person for good.
	if confidence < classifyThreshold {
		candidate.Attributes = minimalAttributes(candidate)
		return &CandidateResult{Candidate: candidate, Route: RouteReview, Reason: resolver.ReasonLowConfidence}, nil
	}

	if label != model.LabelRealPerson {
		return &CandidateResult{Candidate: candidate, Route: RouteReject, Reason: RejectReasonFictional}, nil
	}

	p.notify(model.StateStructuring)
	attrs, err := p.Structurer(ctx, candidate)
	if err != nil {
		if Unreachable(err) {
			return nil, err
		}
		candidate.Attributes = minimalAttributes(candidate)
		return &CandidateResult{Candidate: candidate, Route: RouteReview, Reason: resolver.ReasonStructuringFailed}, nil
	}
	candidate.Attributes = attrs

	return &CandidateResult{Candidate: candidate, Route: RouteResolve}, nil
}

// minimalAttributes keeps the bare mention so a candidate that could not be
// structured still reaches review instead of being lost.
func minimalAttributes(candidate *model.Candidate) *model.StructuredAttributes {
	return &model.StructuredAttributes{Name: candidate.Name}
}

// Unreachable reports whether the error marks a collaborator as unreachable
// rather than a malformed response.
func Unreachable(err error) bool {
	var unreachable interface{ Unreachable() bool }
	return errors.As(err, &unreachable) && unreachable.Unreachable()
}
