package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/hiyaok/guardbot/internal/db"
	"github.com/hiyaok/guardbot/internal/infra"
)

const scoreTimeout = 15 * time.Second

const systemPrompt = "You are a spam rating system for chat messages. " +
	"Rate the following message from 0 to 100, where 0 is clearly legitimate " +
	"and 100 is clearly spam (advertising, scams, inappropriate content). " +
	"Respond with the number only."

type scoreStore interface {
	SetUserSpamScore(ctx context.Context, userID int64, score int) error
}

// GeminiScorer rates messages in the background and stores the result as
// the sender's spam score. Scores are advisory, nothing is deleted or
// restricted because of them.
type GeminiScorer struct {
	client *genai.Client
	model  *genai.GenerativeModel
	store  scoreStore
	logger *log.Entry
}

func NewGeminiScorer(ctx context.Context, apiKey, model string, store scoreStore) (*GeminiScorer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "cant create genai client")
	}
	generative := client.GenerativeModel(model)
	generative.SetTemperature(0)
	generative.SetMaxOutputTokens(8)
	generative.ResponseMIMEType = "text/plain"
	generative.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	return &GeminiScorer{
		client: client,
		model:  generative,
		store:  store,
		logger: log.WithField("object", "GeminiScorer"),
	}, nil
}

// Score fires and forgets: the rating call runs off the message path.
func (g *GeminiScorer) Score(_ context.Context, userID int64, text string) {
	go infra.GoRecoverable(0, "spam scorer", func() {
		ctx, cancel := context.WithTimeout(context.Background(), scoreTimeout)
		defer cancel()

		score, err := g.rate(ctx, text)
		if err != nil {
			g.logger.WithError(err).Debug("cant rate message")
			return
		}
		if err := g.store.SetUserSpamScore(ctx, userID, score); err != nil {
			g.logger.WithError(err).Debug("cant store spam score")
		}
	})
}

func (g *GeminiScorer) rate(ctx context.Context, text string) (int, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return 0, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return 0, errors.New("empty response")
	}
	var answer string
	for _, part := range resp.Candidates[0].Content.Parts {
		answer += fmt.Sprintf("%v", part)
	}
	score, err := strconv.Atoi(strings.TrimSpace(answer))
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

func (g *GeminiScorer) Close() error {
	return g.client.Close()
}

var _ scoreStore = (db.Client)(nil)
