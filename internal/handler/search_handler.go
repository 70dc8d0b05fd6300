package handler

import (
	"strconv"

	"biogenie-go/internal/service"
	"biogenie-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 按余弦阈值直接检索分块，不经过合成。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	category := c.Query("category")
	topK, err := strconv.Atoi(c.DefaultQuery("topK", "0"))
	if err != nil || topK < 0 {
		topK = 0
	}
	log.Infof("[SearchHandler] 收到检索请求, query: %s, category: %s, topK: %d", query, category, topK)

	results, err := h.searchService.Search(c.Request.Context(), query, category, topK)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, results)
}
