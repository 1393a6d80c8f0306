// ABOUTME: Tests for the CommandLibrary verbs: wire formatting and result-code classification.

package agi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyChannel(t *testing.T) (*Channel, *mockAsterisk) {
	t.Helper()
	ch, mock := newMockPair(t)
	go ch.Run()
	mock.sendHeaders(t, standardHeaders)
	require.NoError(t, ch.Ready(context.Background()))
	return ch, mock
}

func TestCommands_SetVariable_Success(t *testing.T) {
	ch, mock := readyChannel(t)

	errCh := make(chan error, 1)
	go func() { errCh <- ch.SetVariable(context.Background(), "FOO", "bar") }()

	assert.Equal(t, "SET VARIABLE FOO bar\n", mock.expectLine(t))
	mock.reply(t, "200 result=1")
	require.NoError(t, <-errCh)
}

func TestCommands_SetVariable_RejectsNonPositiveResult(t *testing.T) {
	ch, mock := readyChannel(t)

	errCh := make(chan error, 1)
	go func() { errCh <- ch.SetVariable(context.Background(), "FOO", "bar") }()

	mock.expectLine(t)
	mock.reply(t, "200 result=-1")

	err := <-errCh
	require.Error(t, err)
	var agiErr *Error
	require.ErrorAs(t, err, &agiErr)
	assert.Equal(t, KindCommandRejected, agiErr.Kind)
}

func TestCommands_SetVariable_RejectsZeroResult(t *testing.T) {
	ch, mock := readyChannel(t)

	errCh := make(chan error, 1)
	go func() { errCh <- ch.SetVariable(context.Background(), "FOO", "bar") }()

	mock.expectLine(t)
	mock.reply(t, "200 result=0")

	err := <-errCh
	require.Error(t, err)
	var agiErr *Error
	require.ErrorAs(t, err, &agiErr)
	assert.Equal(t, KindCommandRejected, agiErr.Kind)
}

func TestCommands_DatabaseDelTree_ReturnsExistence(t *testing.T) {
	ch, mock := readyChannel(t)

	type result struct {
		existed bool
		err     error
	}
	resultCh := make(chan result, 1)
	go func() {
		existed, err := ch.DatabaseDelTree(context.Background(), "family", "")
		resultCh <- result{existed, err}
	}()

	assert.Equal(t, "DATABASE DELTREE family\n", mock.expectLine(t))
	mock.reply(t, "200 result=0")

	r := <-resultCh
	require.NoError(t, r.err)
	assert.False(t, r.existed)
}

func TestCommands_ChannelStatus_ReturnsEnumeration(t *testing.T) {
	ch, mock := readyChannel(t)

	resultCh := make(chan ChannelState, 1)
	errCh := make(chan error, 1)
	go func() {
		state, err := ch.ChannelStatus(context.Background())
		resultCh <- state
		errCh <- err
	}()

	mock.expectLine(t)
	mock.reply(t, "200 result=6")

	assert.Equal(t, ChannelStateUp, <-resultCh)
	require.NoError(t, <-errCh)
}

func TestCommands_StreamFile_ChecksPlaybackStatus(t *testing.T) {
	ch, mock := readyChannel(t)

	type result struct {
		r   PlaybackResult
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		r, err := ch.StreamFile(context.Background(), "hello", "0123456789", 0)
		resultCh <- result{r, err}
	}()

	assert.Equal(t, "STREAM FILE hello 0123456789 0\n", mock.expectLine(t))
	mock.reply(t, "200 result=0 endpos=16000")

	assert.Equal(t, "GET VARIABLE PLAYBACKSTATUS\n", mock.expectLine(t))
	mock.reply(t, "200 result=1 (SUCCESS)")

	r := <-resultCh
	require.NoError(t, r.err)
	assert.Equal(t, 16000, r.r.EndPos)
}

func TestCommands_StreamFile_RejectsOnFailedPlaybackStatus(t *testing.T) {
	ch, mock := readyChannel(t)

	type result struct {
		r   PlaybackResult
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		r, err := ch.StreamFile(context.Background(), "hello", "", 0)
		resultCh <- result{r, err}
	}()

	mock.expectLine(t)
	mock.reply(t, "200 result=0 endpos=1000")
	mock.expectLine(t)
	mock.reply(t, "200 result=1 (FAILED)")

	r := <-resultCh
	require.Error(t, r.err)
}

func TestCommands_WaitForDigit_TimeoutWhenResultZero(t *testing.T) {
	ch, mock := readyChannel(t)

	type result struct {
		r   DigitResult
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		r, err := ch.WaitForDigit(context.Background(), 3*time.Second)
		resultCh <- result{r, err}
	}()

	assert.Equal(t, "WAIT FOR DIGIT 3000\n", mock.expectLine(t))
	mock.reply(t, "200 result=0")

	r := <-resultCh
	require.NoError(t, r.err)
	assert.True(t, r.r.Timeout)
	assert.Empty(t, r.r.Digits)
}

func TestCommands_WaitForDigit_ReturnsPressedDigit(t *testing.T) {
	ch, mock := readyChannel(t)

	type result struct {
		r   DigitResult
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		r, err := ch.WaitForDigit(context.Background(), 3*time.Second)
		resultCh <- result{r, err}
	}()

	mock.expectLine(t)
	mock.reply(t, "200 result=53") // ASCII '5'

	r := <-resultCh
	require.NoError(t, r.err)
	assert.Equal(t, "5", r.r.Digits)
	assert.False(t, r.r.Timeout)
}

func TestCommands_Dial_MapsKnownDialStatus(t *testing.T) {
	ch, mock := readyChannel(t)

	type result struct {
		r   DialResult
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		r, err := ch.Dial(context.Background(), "SIP/1001", 30*time.Second, "")
		resultCh <- result{r, err}
	}()

	assert.Equal(t, "EXEC Dial SIP/1001,30\n", mock.expectLine(t))
	mock.reply(t, "200 result=0")

	assert.Equal(t, "GET VARIABLE DIALSTATUS\n", mock.expectLine(t))
	mock.reply(t, "200 result=1 (BUSY)")

	r := <-resultCh
	require.NoError(t, r.err)
	assert.Equal(t, DialStatusBusy, r.r.Status)
}

func TestCommands_Dial_UnrecognizedStatusIsError(t *testing.T) {
	ch, mock := readyChannel(t)

	type result struct {
		r   DialResult
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		r, err := ch.Dial(context.Background(), "SIP/1001", 30*time.Second, "")
		resultCh <- result{r, err}
	}()

	mock.expectLine(t)
	mock.reply(t, "200 result=0")
	mock.expectLine(t)
	mock.reply(t, "200 result=1 (SOMETHING_WEIRD)")

	r := <-resultCh
	require.Error(t, r.err)
}

func TestCommands_RecordFile_AppliesBeepAndSilence(t *testing.T) {
	ch, mock := readyChannel(t)

	resultCh := make(chan error, 1)
	go func() {
		_, err := ch.RecordFile(context.Background(), "voicemail", RecordOptions{
			Beep:    true,
			Silence: 5 * time.Second,
			Timeout: 10 * time.Second,
		})
		resultCh <- err
	}()

	assert.Equal(t, "RECORD FILE voicemail wav # 10000 BEEP s=5\n", mock.expectLine(t))
	mock.reply(t, "200 result=0 endpos=1000")
	require.NoError(t, <-resultCh)
}

func TestCommands_Break_ClosesChannelOnSuccess(t *testing.T) {
	ch, mock := readyChannel(t)

	errCh := make(chan error, 1)
	go func() { errCh <- ch.Break(context.Background()) }()

	assert.Equal(t, "ASYNCAGI BREAK\n", mock.expectLine(t))
	mock.reply(t, "200 result=1")

	require.NoError(t, <-errCh)
	require.Eventually(t, func() bool { return !ch.IsAlive() }, time.Second, time.Millisecond)
}
