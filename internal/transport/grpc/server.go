package grpcx

import (
	"context"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/auth"
	"github.com/cwrk-planet/chat-service/internal/broker"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/logger"
	"github.com/cwrk-planet/chat-service/internal/metrics"
	"github.com/cwrk-planet/chat-service/internal/pagination"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/pkg/protocol"

	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type Broker interface {
	Join(ctx context.Context, c broker.Conn, channelID string) error
	Disconnect(c broker.Conn)
	Submit(ctx context.Context, userID, channelID, content string) (*domain.Message, error)
}

type Server struct {
	chatSvc   *service.ChatService
	broker    Broker
	queueSize int
}

func NewServer(chatSvc *service.ChatService, b Broker, queueSize int) *Server {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Server{chatSvc: chatSvc, broker: b, queueSize: queueSize}
}

var _ ChatServiceServer = (*Server)(nil)

// -------- helpers --------

func userFromCtx(ctx context.Context) (string, error) {
	sess, ok := auth.SessionFromContext(ctx)
	if !ok || sess.UserID == "" {
		return "", status.Error(codes.Unauthenticated, "missing session")
	}
	return sess.UserID, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, pagination.ErrInvalidToken):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrAccessDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrPersistence), errors.Is(err, domain.ErrTransport):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

type historyResponse struct {
	Messages      []protocol.Message `json:"messages"`
	HasMore       bool               `json:"hasMore"`
	TotalCount    int                `json:"totalCount"`
	Page          int                `json:"page"`
	PageSize      int                `json:"pageSize"`
	NextPageToken string             `json:"nextPageToken,omitempty"`
}

// -------- methods --------

// FetchHistory: {channelId, page?, pageSize?, pageToken?}
func (s *Server) FetchHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	channelID := str(in, "channelId")
	if channelID == "" {
		return nil, status.Error(codes.InvalidArgument, "channelId is required")
	}

	page := pagination.Page{Number: num(in, "page"), Size: num(in, "pageSize")}
	if p, ok, err := pagination.DecodeToken(channelID, str(in, "pageToken")); err != nil {
		return nil, mapErr(err)
	} else if ok {
		page = p
	}

	res, err := s.chatSvc.FetchPage(ctx, userID, channelID, page)
	if err != nil {
		return nil, mapErr(err)
	}

	out := historyResponse{
		Messages:   lo.Map(res.Messages, func(m domain.Message, _ int) protocol.Message { return protocol.FromDomain(&m) }),
		HasMore:    res.HasMore,
		TotalCount: res.TotalCount,
		Page:       res.Page.Number,
		PageSize:   res.Page.Size,
	}
	if res.HasMore {
		if out.NextPageToken, err = pagination.EncodeToken(channelID, res.Page.Next()); err != nil {
			return nil, mapErr(err)
		}
	}
	return toStruct(out)
}

// SendMessage: {channelId, content} -> protocol message
func (s *Server) SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := s.broker.Submit(ctx, userID, str(in, "channelId"), str(in, "content"))
	if err != nil {
		return nil, mapErr(err)
	}
	return toStruct(protocol.FromDomain(msg))
}

// Subscribe: {channelIds: [...]} streams protocol envelopes until the client
// goes away or the connection is evicted.
func (s *Server) Subscribe(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	userID, err := userFromCtx(ctx)
	if err != nil {
		return err
	}
	channels := lo.Uniq(append(strList(in, "channelIds"), lo.Compact([]string{str(in, "channelId")})...))
	if len(channels) == 0 {
		return status.Error(codes.InvalidArgument, "channelIds is required")
	}

	c := newStreamConn(userID, s.queueSize)
	metrics.ActiveConnections.WithLabelValues("grpc").Inc()
	defer metrics.ActiveConnections.WithLabelValues("grpc").Dec()
	defer s.broker.Disconnect(c)

	for _, channelID := range channels {
		if err := s.broker.Join(ctx, c, channelID); err != nil {
			return mapErr(err)
		}
	}

	for {
		select {
		case ev := <-c.queue:
			if err := send(stream, ev); err != nil {
				logger.Ctx(ctx).Debug("grpc subscribe send failed", "conn", c.id, "user", userID, "err", err)
				return err
			}
		case <-c.closed:
			return status.Error(codes.Unavailable, "subscriber evicted")
		case <-ctx.Done():
			return nil
		}
	}
}

func send(stream grpc.ServerStreamingServer[structpb.Struct], ev protocol.Event) error {
	out, err := EventToStruct(ev)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.Send(out)
}
