package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vibe-presenting/server/internal/models"
)

// FeedbackTTL bounds how long a slide's feedback list lives in Redis
const FeedbackTTL = 7 * 24 * time.Hour

// RedisFeedbackStore keeps collaboration messages in one Redis list per slide
type RedisFeedbackStore struct {
	client *redis.Client
}

// NewRedisFeedbackStore connects to Redis at redisURL
func NewRedisFeedbackStore(redisURL string) (*RedisFeedbackStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisFeedbackStore{client: client}, nil
}

// Close closes the Redis connection
func (s *RedisFeedbackStore) Close() error {
	return s.client.Close()
}

// feedbackKey returns the Redis key for a slide's feedback list
func feedbackKey(presentationID, slideID string) string {
	return fmt.Sprintf("feedback:%s:%s", presentationID, slideID)
}

// AppendFeedback pushes a message onto the slide's list and refreshes its TTL
func (s *RedisFeedbackStore) AppendFeedback(ctx context.Context, msg *models.CollaborationMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal collaboration message: %w", err)
	}

	key := feedbackKey(msg.PresentationID, msg.SlideID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, FeedbackTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append collaboration message: %w", err)
	}
	return nil
}

// ListFeedback returns the slide's messages in insertion order
func (s *RedisFeedbackStore) ListFeedback(ctx context.Context, presentationID, slideID string) ([]models.CollaborationMessage, error) {
	results, err := s.client.LRange(ctx, feedbackKey(presentationID, slideID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get collaboration messages: %w", err)
	}

	messages := make([]models.CollaborationMessage, 0, len(results))
	for _, data := range results {
		var msg models.CollaborationMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			slog.Warn("skipping undecodable collaboration message", "key", feedbackKey(presentationID, slideID), "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
