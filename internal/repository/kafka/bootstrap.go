package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type ProducerConfig struct {
	Brokers           []string      `mapstructure:"brokers"`
	Topic             string        `mapstructure:"topic"`
	Partitions        int           `mapstructure:"partitions"`
	ReplicationFactor int           `mapstructure:"replication_factor"`
	PublishTimeout    time.Duration `mapstructure:"publish_timeout"`
}

// BootstrapProducer makes sure the topic exists and returns a producer for
// it. A topic that cannot be confirmed is logged and left to auto-creation.
func BootstrapProducer(ctx context.Context, cfg ProducerConfig, logger *zap.Logger) *Producer {
	if err := EnsureTopic(ctx, cfg.Brokers, TopicSpec{
		Name:              cfg.Topic,
		NumPartitions:     cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
		MaxWait:           5 * time.Second,
	}, logger); err != nil && logger != nil {
		logger.Warn("ensure topic", zap.String("topic", cfg.Topic), zap.Error(err))
	}
	return NewProducer(cfg.Brokers, cfg.Topic).WithLogger(logger)
}
