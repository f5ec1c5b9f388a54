package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TopicTraceFinished 周期轨迹完成的主题
const TopicTraceFinished = "trace.finished"

// Bus 执行轨迹事件总线（对外导出）
// 基于watermill gochannel，进程内发布已完成的轨迹，供API推流等订阅方消费
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *zap.Logger
}

// NewBus 创建事件总线
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            64,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewStdLogger(false, false),
	)
	return &Bus{pubsub: pubsub, logger: logger}
}

// Publish 发布轨迹
func (b *Bus) Publish(t *ExecutionTrace) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("序列化轨迹失败: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("cycle_id", t.CycleID)
	msg.Metadata.Set("frame", strconv.FormatUint(t.Frame, 10))
	msg.Metadata.Set("incomplete", strconv.FormatBool(t.Incomplete))
	msg.Metadata.Set("timestamp", t.EndedAt.Format(time.RFC3339Nano))

	if err := b.pubsub.Publish(TopicTraceFinished, msg); err != nil {
		return fmt.Errorf("发布轨迹失败: %w", err)
	}
	return nil
}

// Subscribe 订阅已完成的轨迹，ctx取消后返回的channel关闭
func (b *Bus) Subscribe(ctx context.Context) (<-chan *ExecutionTrace, error) {
	messages, err := b.pubsub.Subscribe(ctx, TopicTraceFinished)
	if err != nil {
		return nil, fmt.Errorf("订阅轨迹失败: %w", err)
	}

	out := make(chan *ExecutionTrace)
	go func() {
		defer close(out)
		for msg := range messages {
			var t ExecutionTrace
			if err := json.Unmarshal(msg.Payload, &t); err != nil {
				b.logger.Warn("⚠️ 解析轨迹消息失败", zap.String("uuid", msg.UUID), zap.Error(err))
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- &t:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close 关闭总线，所有订阅channel随之关闭
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
