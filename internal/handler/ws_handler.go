package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"faq-rag-go/internal/middleware"
	"faq-rag-go/internal/model"
	"faq-rag-go/internal/service"
	"faq-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// wsAskMessage 是客户端发送的一帧。k 缺省时使用默认值。
type wsAskMessage struct {
	Query *string `json:"query"`
	K     *int    `json:"k"`
}

// WSHandler 在一个 WebSocket 连接上处理多次问答。
type WSHandler struct {
	askService service.AskService
}

// NewWSHandler 创建一个新的 WSHandler。
func NewWSHandler(askService service.AskService) *WSHandler {
	return &WSHandler{askService: askService}
}

// Handle 处理一个传入的 WebSocket 连接，每个文本帧对应一次问答。
func (h *WSHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("[WSHandler] WebSocket 连接已建立, request_id=%s", middleware.GetRequestID(c))
	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("[WSHandler] 从 WebSocket 读取消息失败: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		frame := h.answer(c, message)
		b, _ := json.Marshal(frame)
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Warnf("[WSHandler] 写入 WebSocket 失败: %v", err)
			return
		}
	}
}

// answer 返回 AskResponse 或 ErrorResponse，每帧使用独立的请求 ID。
func (h *WSHandler) answer(c *gin.Context, message []byte) interface{} {
	requestID := uuid.NewString()

	var msg wsAskMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return model.ErrorResponse{Error: "Unprocessable Entity", Detail: "body: invalid JSON"}
	}
	query := ""
	if msg.Query != nil {
		query = *msg.Query
	}
	rawK := ""
	if msg.K != nil {
		rawK = strconv.Itoa(*msg.K)
	}
	query, k, err := parseAskParams(query, msg.Query != nil, rawK)
	if err != nil {
		return model.ErrorResponse{Error: "Unprocessable Entity", Detail: err.Error()}
	}

	resp, err := h.askService.Ask(c.Request.Context(), requestID, query, k)
	if err != nil {
		var nre *service.NotReadyError
		if errors.As(err, &nre) {
			return model.ErrorResponse{Error: "Service Unavailable", Detail: nre.Detail}
		}
		log.Errorf("[WSHandler] 未处理的错误, request_id=%s: %v", requestID, err)
		return model.ErrorResponse{Error: "Internal Server Error", Detail: "request_id=" + requestID}
	}
	return resp
}
