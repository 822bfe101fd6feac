package ai

import (
	"context"
	"iter"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

// Mentor defines the upstream AI operations.
// This interface is implemented by the gRPC client.
type Mentor interface {
	// GenerateHint produces hint text for the requested level.
	GenerateHint(ctx context.Context, req HintRequest) (*HintResponse, error)

	// Evaluate grades a submission against the problem rubric.
	Evaluate(ctx context.Context, req EvaluationRequest) (*domain.Evaluation, error)

	// Pair streams next-step suggestions.
	Pair(ctx context.Context, req PairRequest) iter.Seq2[*PairSuggestion, error]

	// Close releases resources
	Close()
}

// Ensure GrpcClient implements Mentor.
var _ Mentor = (*GrpcClient)(nil)
