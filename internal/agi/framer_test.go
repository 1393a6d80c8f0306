// ABOUTME: Tests for the Framer's INIT/WAITING record-splitting state machine.

package agi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFramer_InitState_SingleFeedHeaderBlock(t *testing.T) {
	f := newFramer()
	records := f.feed([]byte("agi_network: yes\nagi_uniqueid: 123\n\n"))
	assert.Equal(t, []string{"agi_network: yes\nagi_uniqueid: 123"}, records)
	assert.Equal(t, stateWaiting, f.state)
}

func TestFramer_InitState_SplitAcrossFeeds(t *testing.T) {
	f := newFramer()
	records := f.feed([]byte("agi_network: yes\n"))
	assert.Empty(t, records)
	assert.Equal(t, stateInit, f.state)

	records = f.feed([]byte("agi_uniqueid: 123\n\n"))
	assert.Equal(t, []string{"agi_network: yes\nagi_uniqueid: 123"}, records)
	assert.Equal(t, stateWaiting, f.state)
}

func TestFramer_WaitingState_SingleLine(t *testing.T) {
	f := newFramer()
	f.feed([]byte("\n\n"))
	records := f.feed([]byte("200 result=1\n"))
	assert.Equal(t, []string{"200 result=1"}, records)
}

func TestFramer_WaitingState_MultipleLinesInOneFeed(t *testing.T) {
	f := newFramer()
	f.feed([]byte("\n\n"))
	records := f.feed([]byte("200 result=1\n200 result=0\nHANGUP\n"))
	assert.Equal(t, []string{"200 result=1", "200 result=0", "HANGUP"}, records)
}

func TestFramer_WaitingState_EmptyLinesDiscarded(t *testing.T) {
	f := newFramer()
	f.feed([]byte("\n\n"))
	records := f.feed([]byte("\n\n200 result=1\n\n"))
	assert.Equal(t, []string{"200 result=1"}, records)
}

func TestFramer_WaitingState_PartialLineBuffered(t *testing.T) {
	f := newFramer()
	f.feed([]byte("\n\n"))
	records := f.feed([]byte("200 resu"))
	assert.Empty(t, records)

	records = f.feed([]byte("lt=1\n"))
	assert.Equal(t, []string{"200 result=1"}, records)
}

func TestFramer_CarriageReturnTrimmed(t *testing.T) {
	f := newFramer()
	f.feed([]byte("\n\n"))
	records := f.feed([]byte("200 result=1\r\n"))
	assert.Equal(t, []string{"200 result=1"}, records)
}

func TestFramer_DoesNotAdvanceWithoutTerminator(t *testing.T) {
	f := newFramer()
	records := f.feed([]byte("agi_network: yes\nagi_uniqueid: 123\n"))
	assert.Empty(t, records)
	assert.Equal(t, stateInit, f.state)
}
