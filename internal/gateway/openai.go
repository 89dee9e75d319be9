// ABOUTME: OpenAI implementation of the Completer interface using the official Go SDK
// ABOUTME: Non-streaming chat completions with tools, model listing, file upload, fine-tune jobs

package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/symphonylabs/symphony/internal/tools"
	"github.com/symphonylabs/symphony/internal/turn"
)

// OpenAIGateway implements Completer against the OpenAI API.
type OpenAIGateway struct {
	client openai.Client
	logger *slog.Logger
}

// NewOpenAIGateway creates a gateway. baseURL may be empty for the default
// API endpoint; the API key is required.
func NewOpenAIGateway(baseURL, apiKey string, logger *slog.Logger) (*OpenAIGateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIGateway{
		client: openai.NewClient(opts...),
		logger: logger.With("component", "gateway"),
	}, nil
}

// Complete sends the ordered message sequence and the function catalog to the
// completion API and returns the assistant's reply as a single message.
func (g *OpenAIGateway) Complete(ctx context.Context, messages []turn.Message, modelID string, catalog []tools.Descriptor) (turn.Message, error) {
	params := openai.ChatCompletionNewParams{
		Messages: toCompletionMessages(messages),
		Model:    openai.ChatModel(modelID),
	}
	if len(catalog) > 0 {
		params.Tools = toCompletionTools(catalog)
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return turn.Message{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return turn.Message{}, fmt.Errorf("chat completion returned no choices")
	}

	reply := fromCompletionMessage(completion.Choices[0].Message)
	g.logger.Debug("completion received",
		"model", modelID,
		"tool_calls", len(reply.ToolCalls),
	)
	return reply, nil
}

// ListModels returns the models available at the completion service.
func (g *OpenAIGateway) ListModels(ctx context.Context) ([]ModelInfo, error) {
	page, err := g.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}

	models := make([]ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	return models, nil
}

// CreateFineTune uploads the JSONL training corpus and submits a fine-tuning
// job referencing the given model.
func (g *OpenAIGateway) CreateFineTune(ctx context.Context, trainingData io.Reader, modelID string) (*FineTuneJob, error) {
	file, err := g.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(trainingData, "training-data.jsonl", "application/jsonl"),
		Purpose: openai.FilePurposeFineTune,
	})
	if err != nil {
		return nil, fmt.Errorf("uploading training file: %w", err)
	}

	job, err := g.client.FineTuning.Jobs.New(ctx, openai.FineTuningJobNewParams{
		Model:        openai.FineTuningJobNewParamsModel(modelID),
		TrainingFile: file.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fine-tuning job: %w", err)
	}

	g.logger.Info("fine-tuning job submitted",
		"job_id", job.ID,
		"model", modelID,
		"training_file", file.ID,
	)
	return &FineTuneJob{
		ID:           job.ID,
		Model:        job.Model,
		Status:       string(job.Status),
		TrainingFile: job.TrainingFile,
	}, nil
}
