package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/evidence-triage/internal/domain/classify"
	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
	"github.com/bryanwahyu/evidence-triage/internal/infra/classifier/prompt"
)

const maxTokens = 1024

// Resolver turns an opaque payloadRef into a URL the model can fetch,
// typically a presigned object-store URL.
type Resolver interface {
	PayloadURL(ctx context.Context, payloadRef string) (string, error)
}

type Client struct {
	*openai.Client
	Model    string
	Resolver Resolver
}

func NewClient(apiKey, model string, resolver Resolver) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model, Resolver: resolver}
}

// wire format yang diminta dari model
type classification struct {
	Category        string            `json:"category"`
	Confidence      int               `json:"confidence"`
	ExtractedFields map[string]string `json:"extracted_fields"`
}

var validCategories = map[string]evidence.Category{
	"transaction-slip": evidence.CategoryTransactionSlip,
	"weapon":           evidence.CategoryWeapon,
	"drug":             evidence.CategoryDrug,
	"adult-content":    evidence.CategoryAdultContent,
	"suspicious-site":  evidence.CategorySuspiciousSite,
	"benign":           evidence.CategoryBenign,
	"other":            evidence.CategoryOther,
}

// Classify implements the classifier gateway port. No side effects beyond
// the external call; safe for concurrent use.
func (c *Client) Classify(ctx context.Context, payloadRef string) (classify.Result, error) {
	fileURL, err := c.Resolver.PayloadURL(ctx, payloadRef)
	if err != nil {
		return classify.Result{}, fmt.Errorf("%w: resolving payload: %v", classify.ErrUnavailable, err)
	}

	model := c.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(fileURL)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return classify.Result{}, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return classify.Result{}, fmt.Errorf("%w: empty completion", classify.ErrUnavailable)
	}

	var out classification
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return classify.Result{}, fmt.Errorf("%w: malformed classifier output: %v", classify.ErrUnavailable, err)
	}
	cat, ok := validCategories[out.Category]
	if !ok {
		cat = evidence.CategoryOther
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 100 {
		out.Confidence = 100
	}
	return classify.Result{Category: cat, Confidence: out.Confidence, ExtractedFields: out.ExtractedFields}, nil
}

// mapError translates provider errors into the gateway taxonomy.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", classify.ErrTimeout, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusBadRequest, http.StatusUnsupportedMediaType:
			return fmt.Errorf("%w: %v", classify.ErrUnsupported, err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %v", classify.ErrTimeout, err)
		}
	}
	return fmt.Errorf("%w: %v", classify.ErrUnavailable, err)
}
