// ABOUTME: CommandLibrary is one typed method per AGI verb.
// ABOUTME: Each method formats the wire string, submits via the queue, and classifies the reply.

package agi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DialStatus enumerates the DIALSTATUS channel variable values set by
// the Dial dialplan application.
type DialStatus string

const (
	DialStatusAnswer      DialStatus = "ANSWER"
	DialStatusBusy        DialStatus = "BUSY"
	DialStatusNoAnswer    DialStatus = "NOANSWER"
	DialStatusCancel      DialStatus = "CANCEL"
	DialStatusCongestion  DialStatus = "CONGESTION"
	DialStatusChanUnavail DialStatus = "CHANUNAVAIL"
	DialStatusDontCall    DialStatus = "DONTCALL"
	DialStatusTorture     DialStatus = "TORTURE"
	DialStatusInvalidArgs DialStatus = "INVALIDARGS"
)

// PlaybackStatus enumerates the CPLAYBACKSTATUS channel variable values
// set by CONTROL STREAM FILE.
type PlaybackStatus string

const (
	PlaybackStatusSuccess PlaybackStatus = "SUCCESS"
	PlaybackStatusFailed  PlaybackStatus = "FAILED"
)

func submitVerb(ctx context.Context, c *Channel, parts ...string) (*Response, error) {
	return c.Submit(ctx, strings.Join(parts, " "), nil)
}

// --- Trivial assertive verbs ---

// Answer answers the channel.
func (c *Channel) Answer(ctx context.Context) error {
	return c.assertiveVerb(ctx, "answer channel", "ANSWER")
}

// Noop sends a no-op, used as a liveness probe.
func (c *Channel) Noop(ctx context.Context) error {
	return c.assertiveVerb(ctx, "noop", "NOOP")
}

// HangupChannel terminates the call via the HANGUP verb (distinct from
// Channel.Close, which tears down the local connection). Success requires
// result > 0.
func (c *Channel) HangupChannel(ctx context.Context) error {
	return c.positiveResultVerb(ctx, "hangup channel", "HANGUP")
}

// SetContext changes the dialplan context the channel will resume in.
func (c *Channel) SetContext(ctx context.Context, name string) error {
	return c.assertiveVerb(ctx, "set context", "SET CONTEXT", name)
}

// SetExtension changes the dialplan extension the channel will resume in.
func (c *Channel) SetExtension(ctx context.Context, ext string) error {
	return c.assertiveVerb(ctx, "set extension", "SET EXTENSION", ext)
}

// SetPriority changes the dialplan priority the channel will resume at.
func (c *Channel) SetPriority(ctx context.Context, priority string) error {
	return c.assertiveVerb(ctx, "set priority", "SET PRIORITY", priority)
}

// SetVariable sets a channel variable. Success requires result > 0.
func (c *Channel) SetVariable(ctx context.Context, name, value string) error {
	return c.positiveResultVerb(ctx, "set variable", "SET VARIABLE", name, quoteArg(value))
}

// SetAutoHangup schedules the channel to hang up automatically after
// seconds of being up, or disables it if seconds == 0.
func (c *Channel) SetAutoHangup(ctx context.Context, seconds int) error {
	return c.assertiveVerb(ctx, "set autohangup", "SET AUTOHANGUP", strconv.Itoa(seconds))
}

// SetMusic toggles music on hold, optionally naming a specific class.
func (c *Channel) SetMusic(ctx context.Context, on bool, class string) error {
	state := "off"
	if on {
		state = "on"
	}
	args := []string{"SET MUSIC", state}
	if class != "" {
		args = append(args, class)
	}
	return c.assertiveVerb(ctx, "set music", args...)
}

// TDDMode toggles TDD transmission mode on the channel.
func (c *Channel) TDDMode(ctx context.Context, mode string) error {
	return c.assertiveVerb(ctx, "set tdd mode", "TDD MODE", mode)
}

// Verbose logs a message through Asterisk's verbose message system.
func (c *Channel) Verbose(ctx context.Context, message string, level int) error {
	return c.assertiveVerb(ctx, "verbose", "VERBOSE", quoteArg(message), strconv.Itoa(level))
}

// SendImage sends an image to a display-capable channel.
func (c *Channel) SendImage(ctx context.Context, image string) error {
	return c.assertiveVerb(ctx, "send image", "SEND IMAGE", image)
}

// SendText sends text to a display-capable channel.
func (c *Channel) SendText(ctx context.Context, text string) error {
	return c.assertiveVerb(ctx, "send text", "SEND TEXT", quoteArg(text))
}

// GoSub transfers control to a dialplan subroutine.
func (c *Channel) GoSub(ctx context.Context, dialplanContext, extension, priority string, args ...string) error {
	parts := []string{"GOSUB", dialplanContext, extension, priority}
	if len(args) > 0 {
		parts = append(parts, strings.Join(args, "|"))
	}
	return c.assertiveVerb(ctx, "gosub", parts...)
}

// assertiveVerb submits a command and treats the -1 failure sentinel as
// rejection. Most AGI verbs that don't return data reply with result=0 on
// success (ANSWER, NOOP, SET CONTEXT/EXTENSION/PRIORITY, ...); only a
// handful (SET VARIABLE, HANGUP) use a positive result to mean success, and
// those verbs check that themselves.
func (c *Channel) assertiveVerb(ctx context.Context, label string, parts ...string) error {
	resp, err := submitVerb(ctx, c, parts...)
	if err != nil {
		return err
	}
	if resp.Code != 200 || resp.Result < 0 {
		return newCommandRejectedError(strings.Join(parts, " "), fmt.Sprintf("%s failed (result=%d)", label, resp.Result))
	}
	return nil
}

// positiveResultVerb submits a command for the minority of verbs (SET
// VARIABLE, HANGUP) where success is signaled by result > 0 rather than
// result == 0; result <= 0 is a rejection for these.
func (c *Channel) positiveResultVerb(ctx context.Context, label string, parts ...string) error {
	resp, err := submitVerb(ctx, c, parts...)
	if err != nil {
		return err
	}
	if resp.Code != 200 || resp.Result <= 0 {
		return newCommandRejectedError(strings.Join(parts, " "), fmt.Sprintf("%s failed (result=%d)", label, resp.Result))
	}
	return nil
}

// --- Getters ---

// GetVariable reads a channel variable. Unset variables are reported as
// a command-rejected error.
func (c *Channel) GetVariable(ctx context.Context, name string) (string, error) {
	resp, err := submitVerb(ctx, c, "GET VARIABLE", name)
	if err != nil {
		return "", err
	}
	if resp.Result != 1 {
		return "", newCommandRejectedError("GET VARIABLE "+name, "Variable not set")
	}
	return resp.NoKey(), nil
}

// GetFullVariable reads a channel variable, evaluating dialplan
// functions embedded in the expression (Asterisk's GET FULL VARIABLE).
func (c *Channel) GetFullVariable(ctx context.Context, expression string) (string, error) {
	resp, err := submitVerb(ctx, c, "GET FULL VARIABLE", quoteArg(expression))
	if err != nil {
		return "", err
	}
	if resp.Result != 1 {
		return "", newCommandRejectedError("GET FULL VARIABLE "+expression, "Variable not set")
	}
	return resp.NoKey(), nil
}

// DatabaseGet reads a value from the Asterisk internal database.
func (c *Channel) DatabaseGet(ctx context.Context, family, key string) (string, error) {
	resp, err := submitVerb(ctx, c, "DATABASE GET", family, key)
	if err != nil {
		return "", err
	}
	if resp.Result != 1 {
		return "", newCommandRejectedError("DATABASE GET "+family+" "+key, "key not found")
	}
	return resp.NoKey(), nil
}

// --- Database mutators ---

// DatabasePut writes a value into the Asterisk internal database.
func (c *Channel) DatabasePut(ctx context.Context, family, key, value string) error {
	return c.assertiveVerb(ctx, "database put", "DATABASE PUT", family, key, quoteArg(value))
}

// DatabaseDel removes a single key from the Asterisk internal database.
func (c *Channel) DatabaseDel(ctx context.Context, family, key string) error {
	return c.assertiveVerb(ctx, "database del", "DATABASE DEL", family, key)
}

// DatabaseDelTree removes an entire family (or sub-tree within a
// family) from the Asterisk internal database. Returns whether the tree
// existed, rather than erroring when it did not.
func (c *Channel) DatabaseDelTree(ctx context.Context, family, keyTree string) (bool, error) {
	parts := []string{"DATABASE DELTREE", family}
	if keyTree != "" {
		parts = append(parts, keyTree)
	}
	resp, err := submitVerb(ctx, c, parts...)
	if err != nil {
		return false, err
	}
	return resp.Result == 1, nil
}

// --- Status ---

// ChannelState enumerates the values Asterisk reports from CHANNEL STATUS.
type ChannelState int

const (
	ChannelStateDown ChannelState = iota
	ChannelStateReserved
	ChannelStateOffHook
	ChannelStateDialing
	ChannelStateRing
	ChannelStateRinging
	ChannelStateUp
	ChannelStateBusy
	ChannelStateDialingOffHook
	ChannelStatePreRing
)

// ChannelStatus returns the channel's current state.
func (c *Channel) ChannelStatus(ctx context.Context) (ChannelState, error) {
	resp, err := submitVerb(ctx, c, "CHANNEL STATUS")
	if err != nil {
		return ChannelStateDown, err
	}
	return ChannelState(resp.Result), nil
}

// --- Playback ---

// PlaybackResult is the outcome of a playback verb: the digit, if any,
// that interrupted playback, and the stream position it stopped at.
type PlaybackResult struct {
	Digit  string
	EndPos int
}

// StreamFile plays a sound file, interruptible by any digit in
// escapeDigits, starting at the given sample offset. It additionally
// confirms PLAYBACKSTATUS == SUCCESS via GetVariable.
func (c *Channel) StreamFile(ctx context.Context, filename, escapeDigits string, offset int) (PlaybackResult, error) {
	resp, err := submitVerb(ctx, c, "STREAM FILE", filename, quoteArg(escapeDigits), strconv.Itoa(offset))
	if err != nil {
		return PlaybackResult{}, err
	}
	if resp.Result < 0 {
		return PlaybackResult{}, newCommandRejectedError("STREAM FILE "+filename, "stream file failed")
	}
	status, err := c.GetVariable(ctx, "PLAYBACKSTATUS")
	if err != nil {
		return PlaybackResult{}, err
	}
	if status != "SUCCESS" {
		return PlaybackResult{}, newCommandRejectedError("STREAM FILE "+filename, "playback status: "+status)
	}
	return PlaybackResult{Digit: resp.Char("result"), EndPos: resp.Number("endpos")}, nil
}

// GetOption plays a sound file, interruptible by any digit in
// escapeDigits, with a play timeout.
func (c *Channel) GetOption(ctx context.Context, filename, escapeDigits string, timeout time.Duration) (PlaybackResult, error) {
	resp, err := submitVerb(ctx, c, "GET OPTION", filename, quoteArg(escapeDigits), strconv.Itoa(int(timeout.Milliseconds())))
	if err != nil {
		return PlaybackResult{}, err
	}
	if resp.Result < 0 {
		return PlaybackResult{}, newCommandRejectedError("GET OPTION "+filename, "get option failed")
	}
	return PlaybackResult{Digit: resp.Char("result"), EndPos: resp.Number("endpos")}, nil
}

func (c *Channel) sayVerb(ctx context.Context, label, verb, value, escapeDigits string) (PlaybackResult, error) {
	resp, err := submitVerb(ctx, c, verb, value, quoteArg(escapeDigits))
	if err != nil {
		return PlaybackResult{}, err
	}
	if resp.Result < 0 {
		return PlaybackResult{}, newCommandRejectedError(verb+" "+value, label+" failed")
	}
	return PlaybackResult{Digit: resp.Char("result")}, nil
}

// SayAlpha annunciates a string character by character.
func (c *Channel) SayAlpha(ctx context.Context, value, escapeDigits string) (PlaybackResult, error) {
	return c.sayVerb(ctx, "say alpha", "SAY ALPHA", value, escapeDigits)
}

// SayDigits annunciates a digit string digit by digit.
func (c *Channel) SayDigits(ctx context.Context, value, escapeDigits string) (PlaybackResult, error) {
	return c.sayVerb(ctx, "say digits", "SAY DIGITS", value, escapeDigits)
}

// SayNumber annunciates a number.
func (c *Channel) SayNumber(ctx context.Context, value, escapeDigits string) (PlaybackResult, error) {
	return c.sayVerb(ctx, "say number", "SAY NUMBER", value, escapeDigits)
}

// SayPhonetic annunciates a string using its phonetic alphabet.
func (c *Channel) SayPhonetic(ctx context.Context, value, escapeDigits string) (PlaybackResult, error) {
	return c.sayVerb(ctx, "say phonetic", "SAY PHONETIC", value, escapeDigits)
}

// SayDate annunciates a date given as a Unix timestamp.
func (c *Channel) SayDate(ctx context.Context, unixTime int64, escapeDigits string) (PlaybackResult, error) {
	return c.sayVerb(ctx, "say date", "SAY DATE", strconv.FormatInt(unixTime, 10), escapeDigits)
}

// SayTime annunciates a time given as a Unix timestamp.
func (c *Channel) SayTime(ctx context.Context, unixTime int64, escapeDigits string) (PlaybackResult, error) {
	return c.sayVerb(ctx, "say time", "SAY TIME", strconv.FormatInt(unixTime, 10), escapeDigits)
}

// SayDateTime annunciates a date and time given as a Unix timestamp,
// using the named format and timezone (both may be empty for defaults).
func (c *Channel) SayDateTime(ctx context.Context, unixTime int64, escapeDigits, format, zone string) (PlaybackResult, error) {
	parts := []string{"SAY DATETIME", strconv.FormatInt(unixTime, 10), quoteArg(escapeDigits)}
	if format != "" {
		parts = append(parts, quoteArg(format))
	}
	if zone != "" {
		parts = append(parts, zone)
	}
	resp, err := submitVerb(ctx, c, parts...)
	if err != nil {
		return PlaybackResult{}, err
	}
	if resp.Result < 0 {
		return PlaybackResult{}, newCommandRejectedError("SAY DATETIME", "say datetime failed")
	}
	return PlaybackResult{Digit: resp.Char("result")}, nil
}

// --- DTMF collection ---

// DigitResult is the outcome of a DTMF collection verb.
type DigitResult struct {
	Digits  string
	Timeout bool
}

// WaitForDigit waits up to timeout for a single DTMF key press. timeout is
// sent in milliseconds, the unit real Asterisk's WAIT FOR DIGIT expects.
func (c *Channel) WaitForDigit(ctx context.Context, timeout time.Duration) (DigitResult, error) {
	resp, err := submitVerb(ctx, c, "WAIT FOR DIGIT", strconv.Itoa(int(timeout.Milliseconds())))
	if err != nil {
		return DigitResult{}, err
	}
	if resp.Result < 0 {
		return DigitResult{}, newCommandRejectedError("WAIT FOR DIGIT", "wait for digit failed")
	}
	if resp.Result == 0 {
		return DigitResult{Timeout: true}, nil
	}
	return DigitResult{Digits: resp.Char("result")}, nil
}

// ReceiveChar receives a single character over a text-capable channel.
func (c *Channel) ReceiveChar(ctx context.Context, timeout time.Duration) (DigitResult, error) {
	resp, err := submitVerb(ctx, c, "RECEIVE CHAR", strconv.Itoa(int(timeout.Milliseconds())))
	if err != nil {
		return DigitResult{}, err
	}
	if resp.Result < 0 {
		return DigitResult{}, newCommandRejectedError("RECEIVE CHAR", "receive char failed")
	}
	return DigitResult{Digits: resp.Char("result"), Timeout: resp.Boolean("timeout")}, nil
}

// ReceiveText receives a block of text over a text-capable channel.
func (c *Channel) ReceiveText(ctx context.Context, timeout time.Duration) (DigitResult, error) {
	resp, err := submitVerb(ctx, c, "RECEIVE TEXT", strconv.Itoa(int(timeout.Milliseconds())))
	if err != nil {
		return DigitResult{}, err
	}
	if resp.Result < 0 {
		return DigitResult{}, newCommandRejectedError("RECEIVE TEXT", "receive text failed")
	}
	return DigitResult{Digits: resp.NoKey(), Timeout: resp.Boolean("timeout")}, nil
}

// GetData plays a sound file and collects DTMF.
// When maxDigits <= 1 or interDigitTimeout <= 0 it issues the native
// GET DATA verb directly (simple mode); otherwise it builds the
// collection from STREAM FILE and WAIT FOR DIGIT primitives (composite
// mode) to honor an inter-digit timeout distinct from the total budget.
func (c *Channel) GetData(ctx context.Context, soundFile string, totalTimeout time.Duration, maxDigits int, interDigitTimeout time.Duration) (DigitResult, error) {
	if maxDigits <= 1 || interDigitTimeout <= 0 {
		return c.getDataSimple(ctx, soundFile, totalTimeout, maxDigits)
	}
	return c.getDataComposite(ctx, soundFile, totalTimeout, maxDigits, interDigitTimeout)
}

func (c *Channel) getDataSimple(ctx context.Context, soundFile string, totalTimeout time.Duration, maxDigits int) (DigitResult, error) {
	parts := []string{"GET DATA", soundFile, strconv.Itoa(int(totalTimeout.Milliseconds()))}
	if maxDigits > 0 {
		parts = append(parts, strconv.Itoa(maxDigits))
	}
	resp, err := submitVerb(ctx, c, parts...)
	if err != nil {
		return DigitResult{}, err
	}
	if resp.Result < 0 {
		return DigitResult{}, newCommandRejectedError("GET DATA "+soundFile, "get data failed")
	}
	return DigitResult{Digits: resp.NoKey(), Timeout: resp.Boolean("timeout")}, nil
}

// --- Dial ---

// DialResult is the outcome of Dial.
type DialResult struct {
	Status DialStatus
}

// Dial issues EXEC Dial and reports the resulting DIALSTATUS. An
// unrecognized status string is a command-rejected error rather than a
// zero-value DialStatus.
func (c *Channel) Dial(ctx context.Context, target string, timeout time.Duration, params string) (DialResult, error) {
	args := target
	if timeout > 0 {
		args += "," + strconv.Itoa(int(timeout.Seconds()))
	}
	if params != "" {
		args += "," + params
	}

	if _, err := submitVerb(ctx, c, "EXEC Dial", quoteArg(args)); err != nil {
		return DialResult{}, err
	}

	status, err := c.GetVariable(ctx, "DIALSTATUS")
	if err != nil {
		return DialResult{}, err
	}

	switch DialStatus(status) {
	case DialStatusAnswer, DialStatusBusy, DialStatusNoAnswer, DialStatusCancel,
		DialStatusCongestion, DialStatusChanUnavail, DialStatusDontCall,
		DialStatusTorture, DialStatusInvalidArgs:
		return DialResult{Status: DialStatus(status)}, nil
	default:
		return DialResult{}, newCommandRejectedError("EXEC Dial "+target, "unrecognized DIALSTATUS: "+status)
	}
}

// --- Recording ---

// RecordOptions configures RecordFile.
type RecordOptions struct {
	Format       string
	EscapeDigits string
	Timeout      time.Duration
	Silence      time.Duration
	Beep         bool
	Offset       int
}

// RecordResult is the outcome of RecordFile.
type RecordResult struct {
	Digit   string
	EndPos  int
	Timeout bool
}

// RecordFile records audio from the channel to a file.
func (c *Channel) RecordFile(ctx context.Context, filename string, opts RecordOptions) (RecordResult, error) {
	format := opts.Format
	if format == "" {
		format = "wav"
	}
	escapeDigits := opts.EscapeDigits
	if escapeDigits == "" {
		escapeDigits = "#"
	}
	timeoutMs := int(opts.Timeout.Milliseconds())
	if timeoutMs <= 0 {
		timeoutMs = -1
	}

	parts := []string{"RECORD FILE", filename, format, quoteArg(escapeDigits), strconv.Itoa(timeoutMs)}
	if opts.Offset > 0 {
		parts = append(parts, strconv.Itoa(opts.Offset))
	}
	if opts.Beep {
		parts = append(parts, "BEEP")
	}
	if opts.Silence > 0 {
		parts = append(parts, "s="+strconv.Itoa(int(opts.Silence.Seconds())))
	}

	resp, err := submitVerb(ctx, c, parts...)
	if err != nil {
		return RecordResult{}, err
	}
	if resp.Result < 0 {
		return RecordResult{}, newCommandRejectedError("RECORD FILE "+filename, "record file failed")
	}
	return RecordResult{
		Digit:   resp.Char("result"),
		EndPos:  resp.Number("endpos"),
		Timeout: resp.Boolean("timeout"),
	}, nil
}

// --- Control stream ---

// ControlStreamResult is the outcome of ControlStreamFile.
type ControlStreamResult struct {
	Status PlaybackStatus
	Offset int
}

// ControlStreamFile plays a file with in-band pause/rewind/fast-forward
// controls, then reads CPLAYBACKSTATUS and CPLAYBACKOFFSET.
func (c *Channel) ControlStreamFile(ctx context.Context, filename, escapeDigits string, skipMs int, fwdChar, rewChar, pauseChar string, offsetMs int) (ControlStreamResult, error) {
	parts := []string{"CONTROL STREAM FILE", filename, quoteArg(escapeDigits), strconv.Itoa(skipMs)}
	parts = append(parts, orDefault(fwdChar, "\"\""), orDefault(rewChar, "\"\""), orDefault(pauseChar, "\"\""))
	if offsetMs > 0 {
		parts = append(parts, strconv.Itoa(offsetMs))
	}

	if _, err := submitVerb(ctx, c, parts...); err != nil {
		return ControlStreamResult{}, err
	}

	status, err := c.GetVariable(ctx, "CPLAYBACKSTATUS")
	if err != nil {
		return ControlStreamResult{}, err
	}
	offsetStr, err := c.GetVariable(ctx, "CPLAYBACKOFFSET")
	if err != nil {
		return ControlStreamResult{}, err
	}
	offset, _ := strconv.Atoi(offsetStr)

	ps := PlaybackStatusFailed
	if status == string(PlaybackStatusSuccess) {
		ps = PlaybackStatusSuccess
	}
	return ControlStreamResult{Status: ps, Offset: offset}, nil
}

// --- Async break ---

// Break issues ASYNCAGI BREAK, returning AsyncAGI control to the
// dialplan. On success the channel is closed: no further commands will
// be accepted on this connection.
func (c *Channel) Break(ctx context.Context) error {
	resp, err := submitVerb(ctx, c, "ASYNCAGI BREAK")
	if err != nil {
		return err
	}
	if resp.Result != 1 {
		return newCommandRejectedError("ASYNCAGI BREAK", "async break failed")
	}
	_ = c.Close()
	return nil
}

func quoteArg(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
