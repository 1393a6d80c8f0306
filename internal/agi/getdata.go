// ABOUTME: Composite multi-digit collector for GetData, built from STREAM FILE + WAIT FOR DIGIT.
// ABOUTME: Exists because native GET DATA cannot express an inter-digit timeout distinct from the total.

package agi

import (
	"context"
	"strings"
	"time"
)

// getDataComposite implements the composite collection mode: it plays
// soundFile once (interruptible by any DTMF), then repeatedly waits for
// individual digits bounded by interDigitTimeout, until maxDigits digits
// have been collected or the total budget (which starts only after
// playback ends) is exhausted.
func (c *Channel) getDataComposite(ctx context.Context, soundFile string, totalTimeout time.Duration, maxDigits int, interDigitTimeout time.Duration) (DigitResult, error) {
	var digits strings.Builder

	playback, err := c.StreamFile(ctx, soundFile, "0123456789*#", 0)
	if err != nil {
		// A rejected PLAYBACKSTATUS still means no audio problem occurred
		// at the protocol level for digits already collected; but the
		// collector only begins from a successful STREAM FILE, so
		// propagate.
		return DigitResult{}, err
	}
	if playback.Digit != "" {
		digits.WriteString(playback.Digit)
	}

	if digits.Len() >= maxDigits {
		return DigitResult{Digits: digits.String(), Timeout: false}, nil
	}

	deadline := time.Now().Add(totalTimeout)
	for digits.Len() < maxDigits {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		perCall := interDigitTimeout
		if remaining < perCall {
			perCall = remaining
		}

		// WaitForDigit sends its argument in milliseconds, matching real
		// Asterisk's WAIT FOR DIGIT wire format.
		result, err := c.WaitForDigit(ctx, perCall)
		if err != nil {
			return DigitResult{}, err
		}
		if result.Digits == "" {
			return DigitResult{Digits: digits.String(), Timeout: digits.Len() == 0}, nil
		}
		digits.WriteString(result.Digits)
	}

	return DigitResult{Digits: digits.String(), Timeout: digits.Len() == 0}, nil
}
