package grpcx

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/auth"
	"github.com/cwrk-planet/chat-service/internal/broker"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/internal/sqlite"
	"github.com/cwrk-planet/chat-service/pkg/protocol"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type testEnv struct {
	conn     *grpc.ClientConn
	client   *ChatClient
	signer   *auth.Signer
	channels *service.ChannelService
	broker   *broker.Broker
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	authCfg := auth.Config{Issuer: "test", Audience: "chat"}

	access := service.NewAccessService(store, store)
	chat := service.NewChatService(store, access, service.ChatConfig{})
	b := broker.New(broker.NewRegistry(), access, chat)

	gs, _ := NewGRPCServer(NewServer(chat, b, 16), auth.NewVerifier(&key.PublicKey, authCfg), 5*time.Second)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return testEnv{
		conn:     conn,
		client:   NewChatClient(conn),
		signer:   auth.NewSigner(key, authCfg, time.Hour),
		channels: service.NewChannelService(store, store, access, chat),
		broker:   b,
	}
}

func (e testEnv) ctx(t *testing.T, userID string) context.Context {
	t.Helper()
	token, err := e.signer.Sign(auth.Session{UserID: userID})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestGRPC_FetchHistoryPages(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)
	ctx := e.ctx(t, "alice")

	ch, err := e.channels.Create(context.Background(), "alice", service.CreateChannelInput{Name: "busy"})
	req.NoError(err)
	for i := 1; i <= 45; i++ {
		_, err := e.client.SendMessage(ctx, mustStruct(t, map[string]any{"channelId": ch.ID, "content": fmt.Sprintf("m%d", i)}))
		req.NoError(err)
	}

	// first page by number
	out, err := e.client.FetchHistory(ctx, mustStruct(t, map[string]any{"channelId": ch.ID, "page": 1, "pageSize": 20}))
	req.NoError(err)
	req.Len(out.Fields["messages"].GetListValue().GetValues(), 20)
	req.True(out.Fields["hasMore"].GetBoolValue())
	req.EqualValues(45, out.Fields["totalCount"].GetNumberValue())

	// follow tokens to the end
	token := out.Fields["nextPageToken"].GetStringValue()
	req.NotEmpty(token)
	out, err = e.client.FetchHistory(ctx, mustStruct(t, map[string]any{"channelId": ch.ID, "pageToken": token}))
	req.NoError(err)
	req.EqualValues(2, out.Fields["page"].GetNumberValue())

	out, err = e.client.FetchHistory(ctx, mustStruct(t, map[string]any{"channelId": ch.ID, "pageToken": out.Fields["nextPageToken"].GetStringValue()}))
	req.NoError(err)
	msgs := out.Fields["messages"].GetListValue().GetValues()
	req.Len(msgs, 5)
	req.Equal("m1", msgs[0].GetStructValue().Fields["content"].GetStringValue())
	req.False(out.Fields["hasMore"].GetBoolValue())
	req.NotContains(out.Fields, "nextPageToken")
}

func TestGRPC_Errors(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)

	secret, err := e.channels.Create(context.Background(), "alice", service.CreateChannelInput{Name: "secret", IsPrivate: true})
	req.NoError(err)

	_, err = e.client.FetchHistory(context.Background(), mustStruct(t, map[string]any{"channelId": secret.ID}))
	req.Equal(codes.Unauthenticated, status.Code(err))

	_, err = e.client.FetchHistory(e.ctx(t, "mallory"), mustStruct(t, map[string]any{"channelId": secret.ID}))
	req.Equal(codes.PermissionDenied, status.Code(err))

	_, err = e.client.FetchHistory(e.ctx(t, "mallory"), mustStruct(t, map[string]any{"channelId": "nope"}))
	req.Equal(codes.NotFound, status.Code(err))

	_, err = e.client.FetchHistory(e.ctx(t, "alice"), mustStruct(t, map[string]any{"channelId": secret.ID, "pageToken": "garbage"}))
	req.Equal(codes.InvalidArgument, status.Code(err))

	_, err = e.client.SendMessage(e.ctx(t, "alice"), mustStruct(t, map[string]any{"channelId": secret.ID, "content": " "}))
	req.Equal(codes.InvalidArgument, status.Code(err))
}

func TestGRPC_SubscribeReceivesBroadcast(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)
	ch, err := e.channels.Create(context.Background(), "alice", service.CreateChannelInput{Name: "general"})
	req.NoError(err)

	stream, err := e.client.Subscribe(e.ctx(t, "bob"), mustStruct(t, map[string]any{"channelIds": []any{ch.ID}}))
	req.NoError(err)

	first, err := stream.Recv()
	req.NoError(err)
	ev, err := EventFromStruct(first)
	req.NoError(err)
	req.Equal(protocol.Joined{ChannelID: ch.ID}, ev)

	_, err = e.client.SendMessage(e.ctx(t, "alice"), mustStruct(t, map[string]any{"channelId": ch.ID, "content": "hello"}))
	req.NoError(err)

	next, err := stream.Recv()
	req.NoError(err)
	ev, err = EventFromStruct(next)
	req.NoError(err)
	msg, ok := ev.(protocol.Message)
	req.True(ok)
	req.Equal("hello", msg.Content)
	req.Equal("alice", msg.UserID)
}

func TestGRPC_SubscribePrivateDenied(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)
	secret, err := e.channels.Create(context.Background(), "alice", service.CreateChannelInput{Name: "secret", IsPrivate: true})
	req.NoError(err)

	stream, err := e.client.Subscribe(e.ctx(t, "mallory"), mustStruct(t, map[string]any{"channelId": secret.ID}))
	req.NoError(err)
	_, err = stream.Recv()
	req.Equal(codes.PermissionDenied, status.Code(err))
	req.Empty(e.broker.Subscribers(secret.ID))
}

func TestGRPC_HealthIsOpen(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)

	resp, err := healthpb.NewHealthClient(e.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_SERVING, resp.Status)
}
