package handler

import (
	"biogenie-go/internal/feature"
	"biogenie-go/internal/middleware"
	"biogenie-go/internal/service"
	"biogenie-go/internal/session"
	"biogenie-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ExchangeHandler 处理六个工具的提问请求。
type ExchangeHandler struct {
	exchangeService service.ExchangeService
	selector        *session.Selector
	features        *feature.Registry
}

// NewExchangeHandler 创建一个新的 ExchangeHandler 实例。
func NewExchangeHandler(exchangeService service.ExchangeService, selector *session.Selector, features *feature.Registry) *ExchangeHandler {
	return &ExchangeHandler{exchangeService: exchangeService, selector: selector, features: features}
}

// AskRequest 是提问 API 的请求体结构，feature 取自路径。
type AskRequest struct {
	Question  string `json:"question" binding:"required"`
	Category  string `json:"category"`
	SessionID string `json:"sessionId"`
}

// Ask 处理 POST /features/:feature/ask。
// 会话写入失败时仍返回 200，data.saved 为 false。
func (h *ExchangeHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[ExchangeHandler] 请求格式错误: %v", err)
		badRequest(c, "无效的请求负载：question 不能为空")
		return
	}

	store, err := h.selector.For(middleware.IdentityFrom(c))
	if err != nil {
		fail(c, err)
		return
	}

	result, err := h.exchangeService.Ask(c.Request.Context(), store, service.AskRequest{
		Feature:   c.Param("feature"),
		Question:  req.Question,
		Category:  req.Category,
		SessionID: req.SessionID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	if !result.Saved {
		log.Warnf("[ExchangeHandler] 回答已生成但未保存, feature: %s", c.Param("feature"))
	}
	ok(c, result)
}

type featureView struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
}

// ListFeatures 返回可用的工具列表。
func (h *ExchangeHandler) ListFeatures(c *gin.Context) {
	tags := h.features.Tags()
	out := make([]featureView, 0, len(tags))
	for _, tag := range tags {
		p, _ := h.features.Get(tag)
		out = append(out, featureView{Tag: p.Tag, Name: p.Name})
	}
	ok(c, out)
}
