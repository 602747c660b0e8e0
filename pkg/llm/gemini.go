package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

type Gemini struct {
	client     *genai.Client
	model      string
	embedModel string
	dimension  int
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{
		client:     client,
		model:      model,
		embedModel: cfg.EmbeddingModel,
		dimension:  cfg.Dimension,
	}, nil
}

func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), gc)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini returned empty response")
	}
	return text, nil
}

func (g *Gemini) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	if g.embedModel == "" {
		return nil, errors.New("embedding model not configured")
	}

	contents := make([]*genai.Content, 0, len(inputs))
	for _, s := range inputs {
		contents = append(contents, genai.NewContentFromText(s, genai.RoleUser))
	}
	ec := &genai.EmbedContentConfig{}
	if g.dimension > 0 {
		ec.OutputDimensionality = genai.Ptr(int32(g.dimension))
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, ec)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("gemini embeddings: requested=%d returned=%d", len(inputs), len(resp.Embeddings))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}
