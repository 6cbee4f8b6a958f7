package llm

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"github.com/hiyaok/guardbot/internal/infra"
)

// OpenAIScorer is the OpenAI-compatible counterpart of GeminiScorer.
// BaseURL allows pointing it at any compatible endpoint.
type OpenAIScorer struct {
	client *openai.Client
	model  string
	store  scoreStore
	logger *log.Entry
}

func NewOpenAIScorer(apiKey, model, baseURL string, store scoreStore) *OpenAIScorer {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIScorer{
		client: openai.NewClientWithConfig(config),
		model:  model,
		store:  store,
		logger: log.WithField("object", "OpenAIScorer"),
	}
}

// Score fires and forgets: the rating call runs off the message path.
func (o *OpenAIScorer) Score(_ context.Context, userID int64, text string) {
	go infra.GoRecoverable(0, "spam scorer", func() {
		ctx, cancel := context.WithTimeout(context.Background(), scoreTimeout)
		defer cancel()

		score, err := o.rate(ctx, text)
		if err != nil {
			o.logger.WithError(err).Debug("cant rate message")
			return
		}
		if err := o.store.SetUserSpamScore(ctx, userID, score); err != nil {
			o.logger.WithError(err).Debug("cant store spam score")
		}
	})
}

func (o *OpenAIScorer) rate(ctx context.Context, text string) (int, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0,
		MaxTokens:   8,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return 0, err
	}
	if len(resp.Choices) == 0 {
		return 0, errors.New("empty response")
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	score, err := strconv.Atoi(answer)
	if err != nil {
		return 0, errors.Wrapf(err, "unparsable rating %q", answer)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}
