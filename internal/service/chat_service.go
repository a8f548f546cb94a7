package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/metrics"
	"github.com/cwrk-planet/chat-service/internal/pagination"
	"github.com/cwrk-planet/chat-service/internal/storage"
)

const DefaultMaxMessageLength = 4000

type ChatConfig struct {
	MaxMessageLength int
	DefaultPageSize  int
	MaxPageSize      int
}

type ChatService struct {
	messages storage.Messages
	access   *AccessService
	cfg      ChatConfig
}

func NewChatService(messages storage.Messages, access *AccessService, cfg ChatConfig) *ChatService {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = pagination.DefaultSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = pagination.MaxSize
	}
	return &ChatService{messages: messages, access: access, cfg: cfg}
}

// Validate trims content and rejects empty or oversized messages.
func (s *ChatService) Validate(content string) (string, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return "", domain.ErrEmptyContent
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxMessageLength {
		return "", domain.ErrContentTooLong
	}
	return text, nil
}

// Save validates and persists one message. Store failures are reported as
// ErrPersistence and never retried.
func (s *ChatService) Save(ctx context.Context, channelID, userID, content string) (*domain.Message, error) {
	text, err := s.Validate(content)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	msg, err := s.messages.CreateMessage(ctx, channelID, userID, text)
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, fmt.Errorf("%w: create message: %v", domain.ErrPersistence, err)
	}
	return msg, nil
}

type HistoryPage struct {
	Messages   []domain.Message // oldest first
	Page       pagination.Page
	HasMore    bool
	TotalCount int
}

// FetchPage returns the page-th most recent block of the channel history.
// It is a pure read.
func (s *ChatService) FetchPage(ctx context.Context, userID, channelID string, page pagination.Page) (*HistoryPage, error) {
	if _, err := s.access.CanRead(ctx, userID, channelID); err != nil {
		return nil, err
	}

	page = page.Normalize(s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	msgs, total, err := s.messages.ListMessages(ctx, channelID, page.Offset(), page.Size, storage.NewestFirst)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", domain.ErrPersistence, err)
	}

	return &HistoryPage{
		Messages:   pagination.Reverse(msgs),
		Page:       page,
		HasMore:    page.HasMore(total),
		TotalCount: total,
	}, nil
}
