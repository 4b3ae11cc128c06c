package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lvdashuaibi/onevote/config"
	"github.com/lvdashuaibi/onevote/internal/model"
	"github.com/segmentio/kafka-go"
)

const maxWorkers = 8

// MessageHandler 处理一条投票事件
type MessageHandler func(ctx context.Context, event *model.VoteEvent) error

// Consumer 以消费者组方式并发消费投票事件
type Consumer struct {
	readers []*kafka.Reader
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewConsumer(cfg config.KafkaConfig, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka brokers或topic未配置")
	}

	workers := partitionCount(cfg, logger)
	if workers > maxWorkers {
		workers = maxWorkers
	}

	// 同一消费者组内的多个reader由broker分配分区
	readers := make([]*kafka.Reader, 0, workers)
	for i := 0; i < workers; i++ {
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6, // 10MB
			MaxWait:  time.Second,
		}))
	}
	logger.Info("创建Kafka消费者", "event", "kafka_consumer_created", "topic", cfg.Topic, "group_id", cfg.GroupID, "workers", workers)

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		readers: readers,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// partitionCount 读取主题分区数，失败时退化为单个worker
func partitionCount(cfg config.KafkaConfig, logger *slog.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		logger.Warn("连接Kafka读取分区失败", "event", "kafka_partition_lookup_failed", "error", err)
		return 1
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(cfg.Topic)
	if err != nil || len(partitions) == 0 {
		logger.Warn("读取分区信息失败", "event", "kafka_partition_lookup_failed", "error", err)
		return 1
	}
	return len(partitions)
}

// StartConsuming 开始消费消息，每个reader一个goroutine
func (c *Consumer) StartConsuming(handler MessageHandler) {
	for i, reader := range c.readers {
		c.wg.Add(1)
		go func(workerID int, r *kafka.Reader) {
			defer c.wg.Done()
			c.consumeMessages(workerID, r, handler)
		}(i, reader)
	}
}

func (c *Consumer) consumeMessages(workerID int, reader *kafka.Reader, handler MessageHandler) {
	for {
		m, err := reader.ReadMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("读取消息失败", "event", "kafka_read_failed", "worker", workerID, "error", err)
			select {
			case <-time.After(time.Second):
			case <-c.ctx.Done():
				return
			}
			continue
		}

		event, err := decodeVoteEvent(m)
		if err != nil {
			c.logger.Warn("丢弃无法解析的消息", "event", "kafka_decode_failed", "worker", workerID, "partition", m.Partition, "offset", m.Offset, "error", err)
			continue
		}

		if err := handler(c.ctx, event); err != nil {
			c.logger.Warn("处理投票事件失败", "event", "kafka_handle_failed", "worker", workerID, "voter_id", event.VoterID, "error", err)
		}
	}
}

// Stop 停止消费
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()

	var errs []error
	for _, reader := range c.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
