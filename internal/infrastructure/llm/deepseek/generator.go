package deepseek

import (
	"context"
	"fmt"
	"strings"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/resilience"
)

// Generator runs chat completions over assembled prompts. Low temperature
// keeps grounded answers close to the retrieved context.
type Generator struct {
	client    *Client
	executor  *resilience.Executor
	maxTokens int
}

func NewGenerator(client *Client, executor *resilience.Executor, maxTokens int) *Generator {
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &Generator{
		client:    client,
		executor:  executor,
		maxTokens: maxTokens,
	}
}

func (g *Generator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	request := map[string]any{
		"model": g.client.chatModel,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": 0.3,
		"max_tokens":  g.maxTokens,
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	call := func(callCtx context.Context) error {
		response.Choices = nil
		return g.client.postJSON(callCtx, "/v1/chat/completions", request, &response, "generate")
	}

	var err error
	if g.executor != nil {
		err = g.executor.Execute(ctx, "deepseek.generate", call, classifyProviderError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapProviderError(domain.ErrGenerationProvider, "generate answer", err)
	}

	if len(response.Choices) == 0 {
		return "", domain.WrapError(domain.ErrGenerationProvider, "generate answer", fmt.Errorf("provider returned no choices"))
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}
