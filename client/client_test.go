package client

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/auth"
	"github.com/cwrk-planet/chat-service/internal/broker"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/internal/sqlite"
	httpx "github.com/cwrk-planet/chat-service/internal/transport/http"
	"github.com/cwrk-planet/chat-service/internal/transport/ws"
	"github.com/cwrk-planet/chat-service/pkg/protocol"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// trackingListener remembers accepted connections so tests can drop them.
type trackingListener struct {
	net.Listener

	mu    sync.Mutex
	conns []net.Conn
}

func (l *trackingListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err == nil {
		l.mu.Lock()
		l.conns = append(l.conns, c)
		l.mu.Unlock()
	}
	return c, err
}

func (l *trackingListener) dropAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.conns {
		_ = c.Close()
	}
	l.conns = nil
}

type testEnv struct {
	srv      *httptest.Server
	lis      *trackingListener
	signer   *auth.Signer
	channels *service.ChannelService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, func(s broker.MessageSaver) broker.MessageSaver { return s })
}

// newTestEnvWith lets a test wrap the message store behind the broker.
func newTestEnvWith(t *testing.T, wrap func(broker.MessageSaver) broker.MessageSaver) *testEnv {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	authCfg := auth.Config{Issuer: "test", Audience: "chat"}
	verifier := auth.NewVerifier(&key.PublicKey, authCfg)

	access := service.NewAccessService(store, store)
	chat := service.NewChatService(store, access, service.ChatConfig{})
	channels := service.NewChannelService(store, store, access, chat)
	users := service.NewUserService(store)
	b := broker.New(broker.NewRegistry(), access, wrap(chat))

	router := httpx.NewRouter(httpx.NewHandler(channels, chat, b), ws.NewServer(b, verifier, users, ws.Config{}), verifier, users, httpx.RouterConfig{})
	srv := httptest.NewUnstartedServer(router)
	lis := &trackingListener{Listener: srv.Listener}
	srv.Listener = lis
	srv.Start()
	t.Cleanup(func() {
		lis.dropAll()
		srv.Close()
	})

	return &testEnv{srv: srv, lis: lis, signer: auth.NewSigner(key, authCfg, time.Hour), channels: channels}
}

func (e *testEnv) client(t *testing.T, userID string) *Client {
	t.Helper()
	token, err := e.signer.Sign(auth.Session{UserID: userID, Name: userID, Email: userID + "@example.com"})
	require.NoError(t, err)
	c, err := New(Options{BaseURL: e.srv.URL, Token: token, ReconnectDelay: 20 * time.Millisecond, ReconnectAttempts: 3, SendTimeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func (e *testEnv) general(t *testing.T) string {
	t.Helper()
	res, err := e.channels.SeedGeneral(context.Background(), "alice")
	require.NoError(t, err)
	return res.Channel.ID
}

func connect(t *testing.T, c *Client, channelID string) *Session {
	t.Helper()
	s, err := c.Connect(context.Background(), channelID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type inbox struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (i *inbox) add(m protocol.Message) {
	i.mu.Lock()
	i.msgs = append(i.msgs, m)
	i.mu.Unlock()
}

func (i *inbox) len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.msgs)
}

func TestSession_SendAndSubscribe(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)
	channelID := e.general(t)

	alice := connect(t, e.client(t, "alice"), channelID)
	bob := connect(t, e.client(t, "bob"), channelID)

	var got inbox
	unsubscribe := bob.SubscribeToMessages(got.add)
	defer unsubscribe()

	msg, err := alice.SendMessage(context.Background(), "hello")
	req.NoError(err)
	req.Equal("hello", msg.Content)
	req.Equal("alice", msg.Author.ID)

	req.Eventually(func() bool { return got.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	req.Equal(msg.ID, got.msgs[0].ID)
}

func TestSession_SendMessageValidatesLocally(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)
	s := connect(t, e.client(t, "alice"), e.general(t))

	_, err := s.SendMessage(context.Background(), "  ")
	req.ErrorIs(err, ErrValidation)
}

func TestSession_RemoteValidationError(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)
	s := connect(t, e.client(t, "alice"), e.general(t))

	long := make([]byte, service.DefaultMaxMessageLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := s.SendMessage(context.Background(), string(long))
	req.ErrorIs(err, ErrValidation)
}

func TestSession_UnsubscribeIsIdempotent(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)
	channelID := e.general(t)
	s := connect(t, e.client(t, "alice"), channelID)

	var before, after inbox
	unsubscribe := s.SubscribeToMessages(before.add)
	keep := s.SubscribeToMessages(after.add)
	defer keep()

	_, err := s.SendMessage(context.Background(), "one")
	req.NoError(err)
	req.Eventually(func() bool { return before.len() == 1 && after.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	unsubscribe()
	unsubscribe()

	_, err = s.SendMessage(context.Background(), "two")
	req.NoError(err)
	req.Eventually(func() bool { return after.len() == 2 }, 2*time.Second, 10*time.Millisecond)
	req.Equal(1, before.len())
}

func TestClient_ConnectPrivateChannelDenied(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)
	secret, err := e.channels.Create(context.Background(), "alice", service.CreateChannelInput{Name: "secret", IsPrivate: true})
	req.NoError(err)

	_, err = e.client(t, "mallory").Connect(context.Background(), secret.ID)
	req.ErrorIs(err, ErrAccessDenied)
}

func TestClient_ConnectUnauthorized(t *testing.T) {
	e := newTestEnv(t)
	c, err := New(Options{BaseURL: e.srv.URL, Token: "garbage"})
	require.NoError(t, err)

	_, err = c.Connect(context.Background(), e.general(t))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_History(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)
	channelID := e.general(t)
	c := e.client(t, "alice")
	s := connect(t, c, channelID)

	// general already holds the welcome message: 44 more make 45
	for i := 2; i <= 45; i++ {
		_, err := s.SendMessage(context.Background(), fmt.Sprintf("m%d", i))
		req.NoError(err)
	}

	page1, err := c.History(context.Background(), channelID, 1, 20)
	req.NoError(err)
	req.Len(page1.Messages, 20)
	req.True(page1.HasMore)
	req.Equal("m45", page1.Messages[19].Content)

	page3, err := c.History(context.Background(), channelID, 3, 20)
	req.NoError(err)
	req.Len(page3.Messages, 5)
	req.False(page3.HasMore)

	page4, err := c.History(context.Background(), channelID, 4, 20)
	req.NoError(err)
	req.Empty(page4.Messages)
	req.False(page4.HasMore)

	_, err = c.History(context.Background(), "missing", 1, 20)
	req.ErrorIs(err, ErrNotFound)
}

func TestSession_ReconnectsAndRejoins(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)
	channelID := e.general(t)
	s := connect(t, e.client(t, "alice"), channelID)

	var got inbox
	defer s.SubscribeToMessages(got.add)()

	// When the connection drops
	e.lis.dropAll()

	// Then the session comes back, rejoined, and keeps delivering
	var msg protocol.Message
	req.Eventually(func() bool {
		var err error
		msg, err = s.SendMessage(context.Background(), "after reconnect")
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)
	req.NoError(s.Err())
	req.Eventually(func() bool {
		got.mu.Lock()
		defer got.mu.Unlock()
		for _, m := range got.msgs {
			if m.ID == msg.ID {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_GivesUpAfterAttempts(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)
	s := connect(t, e.client(t, "alice"), e.general(t))

	// Given a server that stops accepting
	req.NoError(e.srv.Listener.Close())
	e.lis.dropAll()

	// Then the session fails with a transport error
	req.Eventually(func() bool { return s.Err() != nil }, 3*time.Second, 10*time.Millisecond)
	req.ErrorIs(s.Err(), ErrTransport)

	_, err := s.SendMessage(context.Background(), "anyone?")
	req.ErrorIs(err, ErrTransport)
}

func TestPool_RefCounting(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)
	channelID := e.general(t)
	pool := NewPool(e.client(t, "alice"))
	defer pool.Close()

	s1, release1, err := pool.Acquire(context.Background(), channelID)
	req.NoError(err)
	s2, release2, err := pool.Acquire(context.Background(), channelID)
	req.NoError(err)
	req.Same(s1, s2)
	req.Equal(1, pool.Len())

	release1()
	release1()
	req.NoError(s1.Err())

	release2()
	req.ErrorIs(s1.Err(), ErrClosed)
	req.Zero(pool.Len())

	// a fresh acquire opens a new session
	s3, release3, err := pool.Acquire(context.Background(), channelID)
	req.NoError(err)
	defer release3()
	req.NotSame(s1, s3)
}

func TestPool_AcquireFailure(t *testing.T) {
	req := require.New(t)
	e := newTestEnv(t)
	secret, err := e.channels.Create(context.Background(), "alice", service.CreateChannelInput{Name: "secret", IsPrivate: true})
	req.NoError(err)
	pool := NewPool(e.client(t, "mallory"))

	_, _, err = pool.Acquire(context.Background(), secret.ID)
	req.ErrorIs(err, ErrAccessDenied)
	req.Zero(pool.Len())
}

// stalledSaver holds every Save until release is closed.
type stalledSaver struct {
	*service.ChatService
	entered chan struct{}
	release chan struct{}
}

func (s stalledSaver) Save(ctx context.Context, channelID, userID, content string) (*domain.Message, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return s.ChatService.Save(ctx, channelID, userID, content)
}

func TestSession_InFlightSendFailsOnDisconnect(t *testing.T) {
	req := require.New(t)
	saver := stalledSaver{entered: make(chan struct{}, 1), release: make(chan struct{})}
	e := newTestEnvWith(t, func(s broker.MessageSaver) broker.MessageSaver {
		saver.ChatService = s.(*service.ChatService)
		return saver
	})
	defer close(saver.release)
	s := connect(t, e.client(t, "alice"), e.general(t))

	// Given a send the server has not acknowledged yet
	errs := make(chan error, 1)
	go func() {
		_, err := s.SendMessage(context.Background(), "are you there?")
		errs <- err
	}()
	select {
	case <-saver.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("send never reached the store")
	}

	// When the connection drops
	e.lis.dropAll()

	// Then the send fails with a transport error instead of hanging
	select {
	case err := <-errs:
		req.ErrorIs(err, ErrTransport)
	case <-time.After(time.Second):
		t.Fatal("in-flight send did not fail")
	}
}

func TestClient_ConnectSkipsBroadcastsBeforeJoin(t *testing.T) {
	req := require.New(t)

	// Given a server that lets a broadcast overtake the join ack
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		channelID := r.URL.Query().Get("channelId")
		for _, ev := range []protocol.Event{
			protocol.Message{ID: "m1", ChannelID: channelID, Content: "early"},
			protocol.Joined{ChannelID: channelID},
		} {
			data, _ := protocol.Encode(ev)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, Token: "t"})
	req.NoError(err)

	// When connecting, then the session opens
	s, err := c.Connect(context.Background(), "general")
	req.NoError(err)
	req.NoError(s.Close())
}

func newBareSession() *Session {
	return &Session{channelID: "general", subs: make(map[uint64]*subscription)}
}

func TestSession_UnsubscribeDuringCallback(t *testing.T) {
	req := require.New(t)
	s := newBareSession()

	entered := make(chan struct{})
	finish := make(chan struct{})
	var calls atomic.Int32
	unsubscribe := s.SubscribeToMessages(func(protocol.Message) {
		if calls.Add(1) == 1 {
			close(entered)
			<-finish
		}
	})

	// Given a callback in progress
	go s.dispatch(protocol.Message{ID: "m1"})
	<-entered

	// When another goroutine unsubscribes
	returned := make(chan struct{})
	go func() {
		unsubscribe()
		close(returned)
	}()
	close(finish)
	<-returned

	// Then nothing is delivered afterwards
	s.dispatch(protocol.Message{ID: "m2"})
	req.Equal(int32(1), calls.Load())
}

func TestSession_UnsubscribeFromCallback(t *testing.T) {
	req := require.New(t)
	s := newBareSession()

	var calls atomic.Int32
	var unsubscribe func()
	unsubscribe = s.SubscribeToMessages(func(protocol.Message) {
		calls.Add(1)
		unsubscribe()
	})

	s.dispatch(protocol.Message{ID: "m1"})
	s.dispatch(protocol.Message{ID: "m2"})
	req.Equal(int32(1), calls.Load())
}

func TestSession_AtMostTheRunningCallbackOutlivesUnsubscribe(t *testing.T) {
	req := require.New(t)

	for i := 0; i < 500; i++ {
		s := newBareSession()
		var unsubscribed atomic.Bool
		var after atomic.Int32
		unsubscribe := s.SubscribeToMessages(func(protocol.Message) {
			if unsubscribed.Load() {
				after.Add(1)
			}
		})

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 50; j++ {
				s.dispatch(protocol.Message{ID: "m"})
			}
		}()
		unsubscribe()
		unsubscribed.Store(true)
		<-done

		req.LessOrEqual(after.Load(), int32(1), "iteration %d", i)
	}
}
