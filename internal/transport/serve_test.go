package transport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErgoTechKG/wechat-cc/internal/testutil"
)

var (
	alice = Contact{ID: "u1", Nickname: "Alice"}
	bob   = Contact{ID: "u2", Nickname: "Bob"}
)

func echo(_ context.Context, m Message) (string, bool) {
	return "re: " + m.Text, true
}

func newTestServer(ft *fakeTransport, h Handler) *Server {
	s := NewServer(ft, h, testutil.Logger())
	s.partInterval = time.Millisecond
	s.retryDelay = time.Millisecond
	return s
}

func TestServeRepliesUntilEOF(t *testing.T) {
	ft := newFakeTransport()
	ft.inbox <- Message{From: alice, Text: "hello"}
	ft.inbox <- Message{From: bob, Text: "hey"}
	close(ft.inbox)

	require.NoError(t, newTestServer(ft, echo).Serve(context.Background()))

	assert.ElementsMatch(t, []sent{
		{To: alice, Text: "re: hello"},
		{To: bob, Text: "re: hey"},
	}, ft.Sent())
}

func TestServeNoReply(t *testing.T) {
	ft := newFakeTransport()
	ft.inbox <- Message{From: alice, Text: "hello"}
	ft.inbox <- Message{From: bob, Text: "hey"}
	close(ft.inbox)

	silent := func(_ context.Context, m Message) (string, bool) {
		if m.From.ID == "u1" {
			return "ignored", false
		}
		return "", true
	}
	require.NoError(t, newTestServer(ft, silent).Serve(context.Background()))
	assert.Empty(t, ft.Sent())
}

func TestServeSplitsAndPacesLongReplies(t *testing.T) {
	ft := newFakeTransport()
	start := time.Now()
	ft.clock = func() int64 { return int64(time.Since(start)) }
	ft.inbox <- Message{From: alice, Text: "long"}
	close(ft.inbox)

	long := strings.Repeat("a", 4500)
	s := newTestServer(ft, func(context.Context, Message) (string, bool) { return long, true })
	s.partInterval = 20 * time.Millisecond
	require.NoError(t, s.Serve(context.Background()))

	got := ft.Sent()
	require.Len(t, got, 3)
	var joined string
	for _, p := range got {
		joined += p.Text
	}
	assert.Equal(t, long, joined, "parts arrive in order")
	assert.GreaterOrEqual(t, got[2].At-got[0].At, int64(35*time.Millisecond))
}

func TestServeStartError(t *testing.T) {
	ft := newFakeTransport()
	ft.startErr = errors.New("bad token")

	err := newTestServer(ft, echo).Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start transport: bad token")
}

func TestServeRetriesReceiveErrors(t *testing.T) {
	ft := newFakeTransport()
	ft.recvErrs = []error{errors.New("network down"), errors.New("still down")}
	ft.inbox <- Message{From: alice, Text: "hello"}
	close(ft.inbox)

	require.NoError(t, newTestServer(ft, echo).Serve(context.Background()))
	assert.Equal(t, []sent{{To: alice, Text: "re: hello"}}, ft.Sent())
}

func TestServeStopsOnCancel(t *testing.T) {
	ft := newFakeTransport()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- newTestServer(ft, echo).Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeWaitsForInFlightReplies(t *testing.T) {
	ft := newFakeTransport()
	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(_ context.Context, m Message) (string, bool) {
		close(started)
		<-release
		return "finally", true
	}
	ft.inbox <- Message{From: alice, Text: "slow"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestServer(ft, slow).Serve(ctx) }()

	<-started
	cancel()
	select {
	case <-done:
		t.Fatal("Serve returned with a reply in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, []sent{{To: alice, Text: "finally"}}, ft.Sent())
}

func TestServeTrimsAndSkipsBlankMessages(t *testing.T) {
	ft := newFakeTransport()
	ft.inbox <- Message{From: alice, Text: "   "}
	ft.inbox <- Message{From: alice, Text: "  hello \n"}
	close(ft.inbox)

	require.NoError(t, newTestServer(ft, echo).Serve(context.Background()))
	assert.Equal(t, []sent{{To: alice, Text: "re: hello"}}, ft.Sent())
}
