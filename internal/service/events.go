package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"oxigame/internal/model"
	"oxigame/internal/repository"
	"oxigame/pkg/idgen"

	"gorm.io/gorm"
)

// accountEvent 写入 outbox 的消息体
type accountEvent struct {
	EventNo    string      `json:"event_no"`
	EventType  string      `json:"event_type"`
	AccountID  string      `json:"account_id"`
	OccurredAt string      `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

type eventWriter struct {
	outboxRepo *repository.OutboxRepository
	topic      string
}

// write 与状态变更在同一事务内写入，由 OutboxSender 异步投递
//
// 消息 key 使用账户ID，同一账户的事件落在同一个分区
func (w eventWriter) write(ctx context.Context, tx *gorm.DB, eventType, accountID string, now time.Time, data interface{}) error {
	payload, err := json.Marshal(accountEvent{
		EventNo:    idgen.GenerateEventNo(),
		EventType:  eventType,
		AccountID:  accountID,
		OccurredAt: now.UTC().Format(time.RFC3339),
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: accountID,
		EventType:  eventType,
		Topic:      w.topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := w.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入事件失败: %w", err)
	}
	return nil
}
