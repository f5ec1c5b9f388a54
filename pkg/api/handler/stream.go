package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LENAX/frame-scheduler/pkg/api/dto"
	"github.com/LENAX/frame-scheduler/pkg/core/engine"
)

const (
	// streamWriteWait 单条消息写超时
	streamWriteWait = 10 * time.Second
	// streamPongWait 等待客户端pong的时长
	streamPongWait = 60 * time.Second
	// streamPingPeriod 心跳间隔，必须小于streamPongWait
	streamPingPeriod = streamPongWait / 2
)

// StreamHandler 轨迹推流处理器
// 通过WebSocket把总线上已完成的周期轨迹实时推送给调试查看器
type StreamHandler struct {
	engine   *engine.Engine
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler 创建StreamHandler
func NewStreamHandler(eng *engine.Engine) *StreamHandler {
	return &StreamHandler{
		engine: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: eng.Logger(),
	}
}

// Stream 订阅轨迹推流
// GET /api/v1/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	bus := h.engine.Bus()
	if bus == nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, "轨迹总线未启用"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("⚠️ [Stream] WebSocket升级失败", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	traces, err := bus.Subscribe(ctx)
	if err != nil {
		h.write(conn, dto.StreamMessage{Type: "error", Message: err.Error()})
		return
	}

	// 覆盖服务器ReadTimeout留下的读截止时间，由pong续期
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	// 读循环只处理控制帧，客户端断开时结束推流
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, dto.StreamMessage{Type: "subscribed", Message: "trace.finished"}); err != nil {
		return
	}
	h.logger.Debug("🔌 [Stream] 客户端已订阅", zap.String("remote", conn.RemoteAddr().String()))

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-traces:
			if !ok {
				// 总线关闭
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "bus closed"),
					time.Now().Add(streamWriteWait))
				return
			}
			if err := h.write(conn, dto.StreamMessage{Type: "trace", Data: t}); err != nil {
				h.logger.Debug("🔌 [Stream] 推送失败，断开连接", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) write(conn *websocket.Conn, msg dto.StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(msg)
}
