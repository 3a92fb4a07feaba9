// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"faq-rag-go/internal/middleware"
	"faq-rag-go/internal/model"
	"faq-rag-go/internal/service"
	"faq-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// Request limits for /ask.
const (
	MinQueryLen = 3
	MaxQueryLen = 512
	MinK        = 1
	MaxK        = 5
	DefaultK    = 3
)

// AskHandler 处理问答请求。
type AskHandler struct {
	askService service.AskService
}

// NewAskHandler 创建一个新的 AskHandler 实例。
func NewAskHandler(askService service.AskService) *AskHandler {
	return &AskHandler{askService: askService}
}

// validationError 对应 422 响应。
type validationError struct {
	detail string
}

func (e *validationError) Error() string { return e.detail }

// parseAskParams 校验 query 与 k，query 长度按字符计算。
func parseAskParams(query string, hasQuery bool, rawK string) (string, int, error) {
	if !hasQuery {
		return "", 0, &validationError{"query: field required"}
	}
	if n := utf8.RuneCountInString(query); n < MinQueryLen || n > MaxQueryLen {
		return "", 0, &validationError{fmt.Sprintf("query: length must be between %d and %d characters", MinQueryLen, MaxQueryLen)}
	}

	k := DefaultK
	if rawK != "" {
		v, err := strconv.Atoi(rawK)
		if err != nil {
			return "", 0, &validationError{"k: value is not a valid integer"}
		}
		k = v
	}
	if k < MinK || k > MaxK {
		return "", 0, &validationError{fmt.Sprintf("k: must be between %d and %d", MinK, MaxK)}
	}
	return query, k, nil
}

// Ask 是 POST /api/v1/ask 的处理函数，参数可以放在 URL 查询串或表单中。
func (h *AskHandler) Ask(c *gin.Context) {
	requestID := middleware.GetRequestID(c)

	query, hasQuery := c.GetQuery("query")
	if !hasQuery {
		query, hasQuery = c.GetPostForm("query")
	}
	rawK, hasK := c.GetQuery("k")
	if !hasK {
		rawK = c.PostForm("k")
	}

	query, k, err := parseAskParams(query, hasQuery, rawK)
	if err != nil {
		log.Warnf("[AskHandler] 参数校验失败, request_id=%s: %v", requestID, err)
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "Unprocessable Entity", Detail: err.Error()})
		return
	}

	resp, err := h.askService.Ask(c.Request.Context(), requestID, query, k)
	if err != nil {
		writeAskError(c, requestID, err)
		return
	}

	log.Infof("[AskHandler] 请求处理成功, request_id=%s, timings=%+v", requestID, resp.Timings)
	c.JSON(http.StatusOK, resp)
}

func writeAskError(c *gin.Context, requestID string, err error) {
	var nre *service.NotReadyError
	if errors.As(err, &nre) {
		log.Warnf("[AskHandler] 服务未就绪, request_id=%s: %v", requestID, err)
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{Error: "Service Unavailable", Detail: nre.Detail})
		return
	}
	log.Errorf("[AskHandler] 未处理的错误, request_id=%s: %v", requestID, err)
	middleware.InternalError(c)
}
