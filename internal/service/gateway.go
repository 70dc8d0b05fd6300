package service

import (
	"context"
	"fmt"
	"strings"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/config"
	"biogenie-go/internal/feature"
	"biogenie-go/internal/model"
	"biogenie-go/pkg/llm"
)

// SynthesisRequest 是交给合成网关的输入：问题、检索到的分块和年级。
type SynthesisRequest struct {
	Profile  feature.Profile
	Question string
	Category string
	Chunks   []model.SimilarityResult
}

// SynthesisResult 是网关的输出。Sources 为 nil 表示网关未给出出处，由调用方按分块补齐。
type SynthesisResult struct {
	Answer  string
	Sources []string
}

// Gateway 定义了答案合成操作。
type Gateway interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisResult, error)
}

type llmGateway struct {
	client   llm.Client
	refStart string
	refEnd   string
}

// NewLLMGateway 创建一个基于聊天模型的 Gateway。
func NewLLMGateway(client llm.Client, prompt config.LLMPromptConfig) Gateway {
	refStart, refEnd := prompt.RefStart, prompt.RefEnd
	if refStart == "" {
		refStart = "RETRIEVED CONTEXT FROM OFFICIAL BIOTECHNOLOGY NOTES:"
	}
	if refEnd == "" {
		refEnd = "---"
	}
	return &llmGateway{client: client, refStart: refStart, refEnd: refEnd}
}

func (g *llmGateway) Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisResult, error) {
	messages := []llm.Message{
		{Role: "system", Content: req.Profile.SystemPrompt},
		{Role: "user", Content: g.buildUserMessage(req)},
	}
	answer, err := g.client.Complete(ctx, messages, nil)
	if err != nil {
		return SynthesisResult{}, apperr.Transient("synthesize answer", err)
	}
	if answer == "" {
		return SynthesisResult{}, apperr.Transient("synthesize answer", fmt.Errorf("empty answer"))
	}
	return SynthesisResult{Answer: answer}, nil
}

func (g *llmGateway) buildUserMessage(req SynthesisRequest) string {
	var sb strings.Builder
	sb.WriteString(g.refStart)
	sb.WriteString("\n")
	for i, r := range req.Chunks {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		sb.WriteString(fmt.Sprintf("[%d] %s\n%s", i+1, r.Chunk.Citation(), r.Chunk.Content))
	}
	sb.WriteString("\n")
	sb.WriteString(g.refEnd)
	if req.Category != "" {
		sb.WriteString("\n\nCLASS: ")
		sb.WriteString(req.Category)
	}
	sb.WriteString("\n\nSTUDENT QUESTION: ")
	sb.WriteString(req.Profile.Shape(req.Question))
	return sb.String()
}
