package engine

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Default Gemini model names.
const (
	DefaultChatModel      = "gemini-2.5-flash"
	DefaultEmbeddingModel = "text-embedding-004"
)

// Client wraps the Gemini client with the chat and embedding models the
// game uses.
type Client struct {
	client         *genai.Client
	chatModel      *genai.GenerativeModel
	embeddingModel *genai.EmbeddingModel
}

// NewClient creates a Gemini client. An empty modelName uses
// DefaultChatModel.
func NewClient(ctx context.Context, apiKey, modelName string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultChatModel
	}

	return &Client{
		client:         client,
		chatModel:      client.GenerativeModel(modelName),
		embeddingModel: client.EmbeddingModel(DefaultEmbeddingModel),
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// ChatModel returns the configured chat model.
func (c *Client) ChatModel() *genai.GenerativeModel {
	return c.chatModel
}

// EmbedderID names the embedding model, so stores can tell which vector
// space they hold.
func (c *Client) EmbedderID() string {
	return "gemini/" + DefaultEmbeddingModel
}

// Embed generates an embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.embeddingModel.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Embedding.Values, nil
}
