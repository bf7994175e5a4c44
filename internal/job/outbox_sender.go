package job

import (
	"context"
	"time"

	"oxigame/internal/config"
	"oxigame/internal/model"
	"oxigame/internal/repository"
	"oxigame/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Publisher 事件发送方，生产环境为 *mq.Producer
type Publisher interface {
	SendMessage(topic, key, value string) error
}

// OutboxSender 轮询 outbox 表，把账户事件投递到 Kafka
//
// 事件与账户变更在同一个数据库事务中写入，投递失败只会延迟，不会丢失
type OutboxSender struct {
	outboxRepo    *repository.OutboxRepository
	publisher     Publisher
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
	maxRetryCount int
}

func NewOutboxSender(db *gorm.DB, publisher Publisher, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outboxRepo:    repository.NewOutboxRepository(db),
		publisher:     publisher,
		stopCh:        make(chan struct{}),
		interval:      time.Duration(cfg.Business.OutboxIntervalMs) * time.Millisecond,
		batchSize:     cfg.Business.OutboxBatchSize,
		maxRetryCount: cfg.Business.MaxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	logger.Log.Info("[OutboxSender] 事件发送任务启动", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			logger.Log.Info("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		logger.Log.Error("[OutboxSender] 查询事件失败", zap.Error(err))
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := s.publisher.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)

	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			logger.Log.Error("[OutboxSender] 更新事件状态失败", zap.Int64("id", msg.ID), zap.Error(updateErr))
		} else {
			logger.Log.Debug("[OutboxSender] 事件发送成功",
				zap.Int64("id", msg.ID), zap.String("event", msg.EventType), zap.String("key", msg.MessageKey))
		}
		return
	}

	logger.Log.Warn("[OutboxSender] 事件发送失败", zap.Int64("id", msg.ID), zap.Error(err))

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		logger.Log.Error("[OutboxSender] 增加重试次数失败", zap.Int64("id", msg.ID), zap.Error(err))
	}

	if msg.RetryCount+1 >= s.maxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			logger.Log.Error("[OutboxSender] 标记事件失败状态失败", zap.Int64("id", msg.ID), zap.Error(err))
		} else {
			logger.Log.Warn("[OutboxSender] 事件超过最大重试次数，标记为失败", zap.Int64("id", msg.ID))
		}
	}
}
