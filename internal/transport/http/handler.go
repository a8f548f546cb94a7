package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cwrk-planet/chat-service/internal/auth"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/pagination"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/pkg/protocol"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

// Submitter persists a message and fans it out to realtime subscribers.
type Submitter interface {
	Submit(ctx context.Context, userID, channelID, content string) (*domain.Message, error)
}

type Handler struct {
	channelSvc *service.ChannelService
	chatSvc    *service.ChatService
	submitter  Submitter
}

func NewHandler(channels *service.ChannelService, chat *service.ChatService, submitter Submitter) *Handler {
	return &Handler{
		channelSvc: channels,
		chatSvc:    chat,
		submitter:  submitter,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrValidation
	}
	return nil
}

func userID(r *http.Request) string {
	s, _ := auth.SessionFromContext(r.Context())
	return s.UserID
}

// GET /channels
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	list, err := h.channelSvc.ListVisible(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, "ListChannels", err)
		return
	}
	writeJSON(w, http.StatusOK, ChannelsListResponse{Channels: toChannelItems(list)})
}

// POST /channels
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json", Code: string(protocol.CodeBadRequest)})
		return
	}
	ch, err := h.channelSvc.Create(r.Context(), userID(r), service.CreateChannelInput{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		writeError(w, r, "CreateChannel", err)
		return
	}
	writeJSON(w, http.StatusCreated, toChannelItem(ch))
}

// POST /channels/seed
func (h *Handler) SeedGeneral(w http.ResponseWriter, r *http.Request) {
	res, err := h.channelSvc.SeedGeneral(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, "SeedGeneral", err)
		return
	}
	resp := SeedResponse{Channel: toChannelItem(res.Channel), Created: res.Created}
	if res.Message != nil {
		resp.Message = lo.ToPtr(protocol.FromDomain(res.Message))
	}
	writeJSON(w, lo.Ternary(res.Created, http.StatusCreated, http.StatusOK), resp)
}

// GET /channels/{id}
func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := h.channelSvc.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "GetChannel", err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelItem(ch))
}

// GET /channels/{id}/members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	list, err := h.channelSvc.Members(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "ListMembers", err)
		return
	}
	items := lo.Map(list, func(m domain.Membership, _ int) MemberItem { return toMemberItem(&m) })
	writeJSON(w, http.StatusOK, MembersResponse{Members: items})
}

// POST /channels/{id}/members
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json", Code: string(protocol.CodeBadRequest)})
		return
	}
	m, err := h.channelSvc.AddMember(r.Context(), userID(r), chi.URLParam(r, "id"), service.AddMemberInput{
		UserID: req.UserID,
		Role:   domain.Role(req.Role),
	})
	if err != nil {
		writeError(w, r, "AddMember", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberItem(m))
}

// GET /channels/{id}/messages?page=&limit=
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	page := pagination.Page{Number: queryInt(r, "page"), Size: queryInt(r, "limit")}

	res, err := h.chatSvc.FetchPage(r.Context(), userID(r), chi.URLParam(r, "id"), page)
	if err != nil {
		writeError(w, r, "GetMessages", err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryResponse(res))
}

// POST /channels/{id}/messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json", Code: string(protocol.CodeBadRequest)})
		return
	}
	msg, err := h.submitter.Submit(r.Context(), userID(r), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, r, "SendMessage", err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: protocol.FromDomain(msg)})
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
