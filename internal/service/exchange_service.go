// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/config"
	"biogenie-go/internal/feature"
	"biogenie-go/internal/model"
	"biogenie-go/internal/notify"
	"biogenie-go/internal/search"
	"biogenie-go/internal/session"
	"biogenie-go/pkg/embedding"
	"biogenie-go/pkg/log"
)

// GeneralCategory 表示不按年级过滤。
const GeneralCategory = "general"

// AskRequest 是一次提问。SessionID 为空时会在首轮问答写入时创建会话。
type AskRequest struct {
	Feature   string `json:"feature"`
	Question  string `json:"question"`
	Category  string `json:"category"`
	SessionID string `json:"sessionId"`
}

// AskResult 是返回给调用方的结果。Saved 为 false 时答案仍然有效，只是未能写入会话。
type AskResult struct {
	Answer            string   `json:"answer"`
	Sources           []string `json:"sources"`
	SessionID         string   `json:"sessionId,omitempty"`
	Saved             bool     `json:"saved"`
	NotCovered        bool     `json:"notCovered"`
	InjectionDetected bool     `json:"injectionDetected"`
}

// RAGPolicy 是检索与兜底回答的策略参数。
type RAGPolicy struct {
	Threshold      float64
	TopK           int
	Categories     []string
	MaxQuestionLen int
	NotCoveredText string
	RefusalText    string
}

// PolicyFromConfig 从配置构造 RAGPolicy。
func PolicyFromConfig(cfg config.RAGConfig) RAGPolicy {
	return RAGPolicy{
		Threshold:      cfg.Threshold,
		TopK:           cfg.TopK,
		Categories:     cfg.Categories,
		MaxQuestionLen: cfg.MaxQuestionLen,
		NotCoveredText: cfg.NotCoveredText,
		RefusalText:    cfg.RefusalText,
	}
}

// ExchangeService 定义了检索增强问答的编排操作，六个工具共用这一份实现。
type ExchangeService interface {
	Ask(ctx context.Context, store session.Store, req AskRequest) (*AskResult, error)
}

type exchangeService struct {
	embedder embedding.Client
	engine   search.Engine
	gateway  Gateway
	features *feature.Registry
	hub      *notify.Hub
	policy   RAGPolicy
	now      func() time.Time
}

// NewExchangeService 创建一个新的 ExchangeService 实例。年级枚举为空属于配置错误。
func NewExchangeService(embedder embedding.Client, engine search.Engine, gateway Gateway, features *feature.Registry, hub *notify.Hub, policy RAGPolicy) (ExchangeService, error) {
	if len(policy.Categories) == 0 {
		return nil, apperr.Configuration("rag.categories must not be empty")
	}
	if policy.TopK <= 0 {
		return nil, apperr.Configuration("rag.top_k must be positive")
	}
	if policy.Threshold < 0 || policy.Threshold > 1 {
		return nil, apperr.Configuration("rag.threshold must be within [0,1]")
	}
	return &exchangeService{
		embedder: embedder,
		engine:   engine,
		gateway:  gateway,
		features: features,
		hub:      hub,
		policy:   policy,
		now:      time.Now,
	}, nil
}

// Ask 执行一次问答：校验、检索、合成（或兜底）、写入会话、发布刷新信号。
func (s *exchangeService) Ask(ctx context.Context, store session.Store, req AskRequest) (*AskResult, error) {
	question := strings.TrimSpace(req.Question)
	profile, category, err := s.validate(req.Feature, question, req.Category)
	if err != nil {
		return nil, err
	}
	log.Infof("[ExchangeService] 收到提问, feature: %s, category: %s, session: %s", req.Feature, category, req.SessionID)

	// 续写已有会话前先确认归属，避免为无权访问的会话消耗一次生成
	if req.SessionID != "" {
		if _, err := store.LoadSession(ctx, req.SessionID); err != nil {
			if apperr.IsForbidden(err) || apperr.IsNotFound(err) {
				return nil, err
			}
			log.Warnf("[ExchangeService] 读取会话失败, 继续回答: %v", err)
		}
	}

	result, err := s.answer(ctx, profile, question, category)
	if err != nil {
		return nil, err
	}

	s.record(ctx, store, req, question, result)
	return result, nil
}

func (s *exchangeService) validate(featureTag, question, category string) (feature.Profile, string, error) {
	profile, ok := s.features.Get(featureTag)
	if !ok {
		return feature.Profile{}, "", apperr.InvalidInput("unknown feature %q", featureTag)
	}
	if question == "" {
		return feature.Profile{}, "", apperr.InvalidInput("question cannot be empty")
	}
	if s.policy.MaxQuestionLen > 0 && utf8.RuneCountInString(question) > s.policy.MaxQuestionLen {
		return feature.Profile{}, "", apperr.InvalidInput("question exceeds %d characters", s.policy.MaxQuestionLen)
	}
	if category == "" || category == GeneralCategory {
		return profile, "", nil
	}
	for _, c := range s.policy.Categories {
		if c == category {
			return profile, category, nil
		}
	}
	return feature.Profile{}, "", apperr.InvalidInput("unknown category %q", category)
}

// answer 产出回答但不写入会话。
func (s *exchangeService) answer(ctx context.Context, profile feature.Profile, question, category string) (*AskResult, error) {
	if isPromptInjection(question) {
		log.Warnf("[ExchangeService] 检测到提示词注入, feature: %s", profile.Tag)
		return &AskResult{Answer: s.policy.RefusalText, Sources: []string{}, InjectionDetected: true}, nil
	}

	vector, err := s.embedder.CreateEmbedding(ctx, question)
	if err != nil {
		log.Errorf("[ExchangeService] 向量化问题失败: %v", err)
		if apperr.IsConfiguration(err) || apperr.IsTransient(err) {
			return nil, err
		}
		return nil, apperr.Transient("embed question", err)
	}

	hits, err := s.engine.Search(ctx, search.Query{
		Embedding: vector,
		Threshold: s.policy.Threshold,
		Limit:     s.policy.TopK,
		Category:  category,
	})
	if err != nil {
		log.Errorf("[ExchangeService] 检索失败: %v", err)
		return nil, err
	}
	if len(hits) == 0 {
		log.Infof("[ExchangeService] 资料中没有超过阈值 %.2f 的内容", s.policy.Threshold)
		return &AskResult{Answer: s.policy.NotCoveredText, Sources: []string{}, NotCovered: true}, nil
	}
	log.Infof("[ExchangeService] 检索到 %d 个分块, 最高分 %.3f", len(hits), hits[0].Score)

	synth, err := s.gateway.Synthesize(ctx, SynthesisRequest{
		Profile:  profile,
		Question: question,
		Category: category,
		Chunks:   hits,
	})
	if err != nil {
		log.Errorf("[ExchangeService] 合成回答失败: %v", err)
		if apperr.IsTransient(err) {
			return nil, err
		}
		return nil, apperr.Transient("synthesize answer", err)
	}

	sources := synth.Sources
	if sources == nil {
		sources = citations(hits)
	}
	return &AskResult{Answer: synth.Answer, Sources: sources}, nil
}

// record 把这一轮问答写入会话。写入失败只把 Saved 置为 false，不影响回答。
func (s *exchangeService) record(ctx context.Context, store session.Store, req AskRequest, question string, result *AskResult) {
	now := s.now()
	user := model.UserMessage(question, now)
	bot := model.AssistantMessage(result.Answer, result.Sources, now)

	var (
		sess *model.ChatSession
		err  error
	)
	if req.SessionID != "" {
		result.SessionID = req.SessionID
		sess, err = store.AppendExchange(ctx, req.SessionID, user, bot)
	} else {
		sess, err = store.OpenSession(ctx, req.Feature, session.DeriveTitle(question), user, bot)
	}
	if err != nil {
		log.Errorf("[ExchangeService] 会话写入失败, feature: %s, session: %s, error: %v", req.Feature, req.SessionID, err)
		result.Saved = false
		return
	}

	result.SessionID = sess.ID
	result.Saved = true
	s.hub.Topic(store.Scope(), req.Feature).Publish()
}

// citations 按出现顺序去重生成 "章节 (来源)" 形式的引用。
func citations(hits []model.SimilarityResult) []string {
	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		c := h.Chunk.Citation()
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
