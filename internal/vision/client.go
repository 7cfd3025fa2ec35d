package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/routelens/routelens/internal/models"
)

const defaultAPIURL = "https://api.openai.com/v1/chat/completions"

// ChatClient is the transport-level capability of the external vision
// service: one structured prompt plus encoded frames in, raw text out.
type ChatClient interface {
	Complete(ctx context.Context, prompt string, images [][]byte) (string, error)
}

type OpenAIClient struct {
	apiKey      string
	model       string
	apiURL      string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:      apiKey,
		model:       model,
		apiURL:      defaultAPIURL,
		maxTokens:   1500,
		temperature: 0.3,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string, images [][]byte) (string, error) {
	content := make([]openAIContentPart, 0, len(images)+1)
	content = append(content, openAIContentPart{Type: "text", Text: prompt})
	for _, img := range images {
		content = append(content, openAIContentPart{
			Type: "image_url",
			ImageURL: &openAIImageURL{
				URL: fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(img)),
			},
		})
	}

	reqBody := openAIRequest{
		Model:       c.model,
		Messages:    []openAIMessage{{Role: "user", Content: content}},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &models.PipelineError{Kind: models.KindVision, Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", &models.PipelineError{Kind: models.KindVision, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &models.PipelineError{Kind: models.KindVision, Message: "call vision service", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &models.PipelineError{Kind: models.KindVision, Message: "read response", Retryable: true, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &models.PipelineError{
			Kind:      models.KindVision,
			Message:   fmt.Sprintf("vision service returned %d", resp.StatusCode),
			Retryable: true,
		}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &models.PipelineError{Kind: models.KindVision, Message: "unmarshal response", Err: err}
	}
	if parsed.Error != nil {
		return "", &models.PipelineError{Kind: models.KindVision, Message: "vision service error: " + parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return "", &models.PipelineError{Kind: models.KindVision, Message: "empty response from vision service"}
	}

	return parsed.Choices[0].Message.Content, nil
}
