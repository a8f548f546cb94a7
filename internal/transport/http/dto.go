package http

import (
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/pkg/protocol"

	"github.com/samber/lo"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type CreateChannelRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	IsPrivate   bool    `json:"isPrivate"`
}

type AddMemberRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type ChannelItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	IsPrivate   bool      `json:"isPrivate"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type ChannelsListResponse struct {
	Channels []ChannelItem `json:"channels"`
}

type MemberItem struct {
	UserID   string    `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type MembersResponse struct {
	Members []MemberItem `json:"members"`
}

type SeedResponse struct {
	Channel ChannelItem       `json:"channel"`
	Message *protocol.Message `json:"message,omitempty"`
	Created bool              `json:"created"`
}

type MessageResponse struct {
	Message protocol.Message `json:"message"`
}

type HistoryResponse struct {
	Messages   []protocol.Message `json:"messages"`
	HasMore    bool               `json:"hasMore"`
	TotalCount int                `json:"totalCount"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
}

func toChannelItem(c *domain.Channel) ChannelItem {
	return ChannelItem{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		IsPrivate:   c.IsPrivate,
		OwnerID:     c.OwnerID,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toChannelItems(list []domain.Channel) []ChannelItem {
	return lo.Map(list, func(c domain.Channel, _ int) ChannelItem { return toChannelItem(&c) })
}

func toMemberItem(m *domain.Membership) MemberItem {
	return MemberItem{UserID: m.UserID, Role: string(m.Role), JoinedAt: m.JoinedAt}
}

func toHistoryResponse(p *service.HistoryPage) HistoryResponse {
	return HistoryResponse{
		Messages:   lo.Map(p.Messages, func(m domain.Message, _ int) protocol.Message { return protocol.FromDomain(&m) }),
		HasMore:    p.HasMore,
		TotalCount: p.TotalCount,
		Page:       p.Page.Number,
		Limit:      p.Page.Size,
	}
}
