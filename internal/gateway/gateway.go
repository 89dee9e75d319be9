// ABOUTME: Typed interface to the external completion service
// ABOUTME: Covers chat completions with tools, model listing, and fine-tuning submission

package gateway

import (
	"context"
	"io"

	"github.com/symphonylabs/symphony/internal/tools"
	"github.com/symphonylabs/symphony/internal/turn"
)

// ModelInfo describes one model available at the completion service.
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// FineTuneJob describes a submitted fine-tuning job.
type FineTuneJob struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Status       string `json:"status"`
	TrainingFile string `json:"training_file"`
}

// Completer is the orchestrator's view of the completion service. Given the
// prior message sequence, a model identifier, and the callable-function
// catalog, Complete returns one assistant message: either terminal content or
// a set of requested tool invocations.
type Completer interface {
	Complete(ctx context.Context, messages []turn.Message, modelID string, catalog []tools.Descriptor) (turn.Message, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
	CreateFineTune(ctx context.Context, trainingData io.Reader, modelID string) (*FineTuneJob, error)
}
