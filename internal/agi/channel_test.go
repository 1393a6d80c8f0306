// ABOUTME: End-to-end tests for Channel driving a net.Pipe as a mock Asterisk peer.

package agi

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAsterisk wraps the server side of a net.Pipe and exposes line-based
// send/receive helpers so tests can play the role of Asterisk.
type mockAsterisk struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newMockPair(t *testing.T) (*Channel, *mockAsterisk) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})

	ch := NewChannel(clientConn, Options{})
	mock := &mockAsterisk{conn: serverConn, reader: bufio.NewReader(serverConn)}
	return ch, mock
}

func (m *mockAsterisk) sendHeaders(t *testing.T, headers string) {
	t.Helper()
	_, err := m.conn.Write([]byte(headers + "\n"))
	require.NoError(t, err)
}

func (m *mockAsterisk) expectLine(t *testing.T) string {
	t.Helper()
	line, err := m.reader.ReadString('\n')
	require.NoError(t, err)
	return line
}

func (m *mockAsterisk) reply(t *testing.T, line string) {
	t.Helper()
	_, err := m.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

const standardHeaders = "agi_network: yes\n" +
	"agi_uniqueid: 1700000000.1\n" +
	"agi_channel: SIP/1000-1\n"

func TestChannel_SimpleAnswerThenHangup(t *testing.T) {
	ch, mock := newMockPair(t)
	go ch.Run()

	mock.sendHeaders(t, standardHeaders)
	require.NoError(t, ch.Ready(context.Background()))

	errCh := make(chan error, 1)
	go func() { errCh <- ch.Answer(context.Background()) }()
	assert.Equal(t, "ANSWER\n", mock.expectLine(t))
	mock.reply(t, "200 result=0")
	require.NoError(t, <-errCh)

	go func() { errCh <- ch.HangupChannel(context.Background()) }()
	assert.Equal(t, "HANGUP\n", mock.expectLine(t))
	mock.reply(t, "200 result=1")
	require.NoError(t, <-errCh)
}

func TestChannel_SubmitBeforeReadyBlocksUntilHeadersParsed(t *testing.T) {
	ch, mock := newMockPair(t)
	go ch.Run()

	errCh := make(chan error, 1)
	go func() { errCh <- ch.Answer(context.Background()) }()

	// Nothing should reach the wire while headers are still outstanding.
	require.NoError(t, mock.conn.SetReadDeadline(time.Now().Add(20*time.Millisecond)))
	_, err := mock.reader.ReadString('\n')
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout(), "ANSWER reached the wire before headers were sent")
	require.NoError(t, mock.conn.SetReadDeadline(time.Time{}))

	mock.sendHeaders(t, standardHeaders)

	assert.Equal(t, "ANSWER\n", mock.expectLine(t))
	mock.reply(t, "200 result=0")
	require.NoError(t, <-errCh)
}

func TestChannel_GetVariableSuccess(t *testing.T) {
	ch, mock := newMockPair(t)
	go ch.Run()

	mock.sendHeaders(t, standardHeaders)
	require.NoError(t, ch.Ready(context.Background()))

	type result struct {
		val string
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		v, err := ch.GetVariable(context.Background(), "foo")
		resultCh <- result{v, err}
	}()

	assert.Equal(t, "GET VARIABLE foo\n", mock.expectLine(t))
	mock.reply(t, "200 result=1 (bar)")

	r := <-resultCh
	require.NoError(t, r.err)
	assert.Equal(t, "bar", r.val)
}

func TestChannel_GetVariableUnset(t *testing.T) {
	ch, mock := newMockPair(t)
	go ch.Run()

	mock.sendHeaders(t, standardHeaders)
	require.NoError(t, ch.Ready(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := ch.GetVariable(context.Background(), "foo")
		errCh <- err
	}()

	mock.expectLine(t)
	mock.reply(t, "200 result=0")

	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Variable not set")
}

func TestChannel_HangupDuringQueue(t *testing.T) {
	ch, mock := newMockPair(t)
	go ch.Run()

	mock.sendHeaders(t, standardHeaders)
	require.NoError(t, ch.Ready(context.Background()))

	inFlightCh := make(chan error, 1)
	go func() { _, err := ch.GetVariable(context.Background(), "A"); inFlightCh <- err }()
	mock.expectLine(t) // GET VARIABLE A consumed off the wire; response withheld.

	waitingCh := make(chan error, 1)
	go func() {
		_, err := ch.GetVariable(context.Background(), "B")
		waitingCh <- err
	}()
	require.Eventually(t, func() bool {
		size, _, _ := ch.QueueStats()
		return size == 1
	}, time.Second, time.Millisecond)

	mock.reply(t, "HANGUP")

	for _, errCh := range []chan error{inFlightCh, waitingCh} {
		err := <-errCh
		require.Error(t, err)
		var agiErr *Error
		require.ErrorAs(t, err, &agiErr)
		assert.Equal(t, KindChannelDead, agiErr.Kind)
		assert.Equal(t, ReasonHangup, agiErr.Reason)
	}

	assert.False(t, ch.IsAlive())
}

func TestChannel_ReadyBlocksUntilHeadersComplete(t *testing.T) {
	ch, mock := newMockPair(t)
	go ch.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	readyDone := make(chan error, 1)
	go func() { readyDone <- ch.Ready(ctx) }()

	select {
	case err := <-readyDone:
		t.Fatalf("Ready returned before headers arrived: %v", err)
	case <-time.After(10 * time.Millisecond):
	}

	mock.sendHeaders(t, standardHeaders)
	require.NoError(t, <-readyDone)
}

func TestChannel_MetadataPopulatedAfterReady(t *testing.T) {
	ch, mock := newMockPair(t)
	go ch.Run()

	mock.sendHeaders(t, standardHeaders)
	require.NoError(t, ch.Ready(context.Background()))

	meta := ch.Metadata()
	require.NotNil(t, meta)
	assert.Equal(t, "1700000000.1", meta.UniqueID)
	assert.Equal(t, "SIP/1000-1", meta.Channel)
}
