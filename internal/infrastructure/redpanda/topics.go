package redpanda

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Topics carrying the advisor audit trail.
const (
	TopicAssessments = "advisor.assessments"
	TopicAdvice      = "advisor.advice"
	TopicRejections  = "advisor.rejections"
	TopicEscalations = "advisor.escalations"
	TopicDeadLetter  = "advisor.deadletter"
)

// TopicConfig holds configuration for one topic.
type TopicConfig struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Configs           map[string]*string
}

// DefaultTopicConfigs returns the advisor topic set. Assessment and
// escalation records keep a 90-day retention for clinical review; the rest
// age out after a week.
func DefaultTopicConfigs() []TopicConfig {
	ptr := func(s string) *string { return &s }

	longRetention := map[string]*string{
		"retention.ms":     ptr("7776000000"), // 90 days
		"cleanup.policy":   ptr("delete"),
		"compression.type": ptr("lz4"),
	}
	shortRetention := map[string]*string{
		"retention.ms":     ptr("604800000"), // 7 days
		"cleanup.policy":   ptr("delete"),
		"compression.type": ptr("lz4"),
	}

	return []TopicConfig{
		{Name: TopicAssessments, Partitions: 6, ReplicationFactor: 1, Configs: longRetention},
		{Name: TopicEscalations, Partitions: 3, ReplicationFactor: 1, Configs: longRetention},
		{Name: TopicAdvice, Partitions: 6, ReplicationFactor: 1, Configs: shortRetention},
		{Name: TopicRejections, Partitions: 3, ReplicationFactor: 1, Configs: shortRetention},
		{Name: TopicDeadLetter, Partitions: 3, ReplicationFactor: 1, Configs: shortRetention},
	}
}

// Admin provides topic administration.
type Admin struct {
	client *kadm.Client
	logger *zap.Logger
}

// NewAdmin creates an admin client.
func NewAdmin(brokers []string, logger *zap.Logger) (*Admin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	kgoClient, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Admin{
		client: kadm.NewClient(kgoClient),
		logger: logger,
	}, nil
}

// CreateTopics creates the given topics, tolerating ones that already exist.
func (a *Admin) CreateTopics(ctx context.Context, configs []TopicConfig) error {
	for _, cfg := range configs {
		resp, err := a.client.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor, cfg.Configs, cfg.Name)
		if err != nil {
			return fmt.Errorf("failed to create topic %s: %w", cfg.Name, err)
		}

		for _, r := range resp {
			if r.Err != nil {
				if r.Err.Error() == "TOPIC_ALREADY_EXISTS" {
					a.logger.Info("topic already exists", zap.String("topic", r.Topic))
					continue
				}
				return fmt.Errorf("failed to create topic %s: %w", r.Topic, r.Err)
			}
			a.logger.Info("topic created",
				zap.String("topic", r.Topic),
				zap.Int32("partitions", cfg.Partitions))
		}
	}
	return nil
}

// EnsureTopics creates the full advisor topic set.
func (a *Admin) EnsureTopics(ctx context.Context) error {
	return a.CreateTopics(ctx, DefaultTopicConfigs())
}

// ListTopics lists all topic names on the cluster.
func (a *Admin) ListTopics(ctx context.Context) ([]string, error) {
	topics, err := a.client.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}

	var names []string
	for _, t := range topics {
		names = append(names, t.Topic)
	}
	return names, nil
}

// GroupLag returns the per-partition lag of a consumer group, keyed by topic.
func (a *Admin) GroupLag(ctx context.Context, groupID string) (map[string]map[int32]int64, error) {
	described, err := a.client.Lag(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer group lag: %w", err)
	}

	result := make(map[string]map[int32]int64)
	described.Each(func(l kadm.DescribedGroupLag) {
		for topic, partitions := range l.Lag {
			if result[topic] == nil {
				result[topic] = make(map[int32]int64)
			}
			for partition, lag := range partitions {
				result[topic][partition] = lag.Lag
			}
		}
	})
	return result, nil
}

// Close closes the admin client.
func (a *Admin) Close() {
	a.client.Close()
}

// HealthCheck verifies broker connectivity.
func HealthCheck(ctx context.Context, brokers []string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
