package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/types"
)

// ProgressSource *artifact.ProgressHub 满足该接口
type ProgressSource interface {
	Subscribe() (<-chan artifact.ProgressEvent, func())
}

// ProgressHandler 通过 websocket 推送加载进度
type ProgressHandler struct {
	hub          ProgressSource
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewProgressHandler 创建进度流处理器
func NewProgressHandler(hub ProgressSource, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		hub:          hub,
		writeTimeout: 5 * time.Second,
		logger:       logger.With(zap.String("component", "progress_stream")),
	}
}

// Register 注册路由
func (h *ProgressHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/loader/progress", h.HandleStream)
}

// HandleStream 升级为 websocket 并推送 ProgressEvent（JSON 文本帧）。
// 可选 query 参数 size 只推送该规格的事件。
// @Summary 加载进度流
// @Tags 加载器
// @Router /api/v1/loader/progress [get]
func (h *ProgressHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	var filter artifact.Size
	if s := r.URL.Query().Get("size"); s != "" {
		size, err := artifact.ParseSize(s)
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, err.Error(), h.logger)
			return
		}
		filter = size
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	events, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	// 客户端只读；CloseRead 在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())
	h.logger.Debug("progress subscriber connected", zap.String("size", string(filter)))

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "progress hub closed")
				return
			}
			if filter != "" && ev.Size != filter {
				continue
			}
			if err := h.write(ctx, conn, ev); err != nil {
				h.logger.Debug("progress subscriber gone", zap.Error(err))
				return
			}
		}
	}
}

func (h *ProgressHandler) write(ctx context.Context, conn *websocket.Conn, ev artifact.ProgressEvent) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
