// ABOUTME: CallMetadata holds the immutable call fields parsed from the AGI header block.
// ABOUTME: HeaderParser populates it exactly once, before the channel becomes ready.

package agi

import "strings"

// CallMetadata is an immutable (after header parsing) record of named
// string fields extracted from the AGI header block. Unknown agi_*
// suffixes are dropped silently; fields never set by Asterisk remain the
// empty string.
type CallMetadata struct {
	Network       string
	NetworkScript string
	Request       string
	Channel       string
	Language      string
	Type          string
	UniqueID      string
	Version       string
	CallerID      string
	CallerIDName  string
	CallingPres   string
	CallingANI2   string
	CallingTON    string
	CallingTNS    string
	DNID          string
	RDNIS         string
	Context       string
	Extension     string
	Priority      string
	Enhanced      string
	AccountCode   string
	ThreadID      string
}

// fieldSetters maps the agi_ suffix (after stripping the "agi_" prefix) to
// the CallMetadata field it populates.
var fieldSetters = map[string]func(*CallMetadata, string){
	"network":        func(m *CallMetadata, v string) { m.Network = v },
	"network_script": func(m *CallMetadata, v string) { m.NetworkScript = v },
	"request":        func(m *CallMetadata, v string) { m.Request = v },
	"channel":        func(m *CallMetadata, v string) { m.Channel = v },
	"language":       func(m *CallMetadata, v string) { m.Language = v },
	"type":           func(m *CallMetadata, v string) { m.Type = v },
	"uniqueid":       func(m *CallMetadata, v string) { m.UniqueID = v },
	"version":        func(m *CallMetadata, v string) { m.Version = v },
	"callerid":       func(m *CallMetadata, v string) { m.CallerID = v },
	"calleridname":   func(m *CallMetadata, v string) { m.CallerIDName = v },
	"callingpres":    func(m *CallMetadata, v string) { m.CallingPres = v },
	"callingani2":    func(m *CallMetadata, v string) { m.CallingANI2 = v },
	"callington":     func(m *CallMetadata, v string) { m.CallingTON = v },
	"callingtns":     func(m *CallMetadata, v string) { m.CallingTNS = v },
	"dnid":           func(m *CallMetadata, v string) { m.DNID = v },
	"rdnis":          func(m *CallMetadata, v string) { m.RDNIS = v },
	"context":        func(m *CallMetadata, v string) { m.Context = v },
	"extension":      func(m *CallMetadata, v string) { m.Extension = v },
	"priority":       func(m *CallMetadata, v string) { m.Priority = v },
	"enhanced":       func(m *CallMetadata, v string) { m.Enhanced = v },
	"accountcode":    func(m *CallMetadata, v string) { m.AccountCode = v },
	"threadid":       func(m *CallMetadata, v string) { m.ThreadID = v },
}

// parseHeaderRecord splits a header record (as delivered by the Framer's
// INIT-state record) on newline, then on the first ":" per line. Lines
// whose key does not begin with "agi_" are ignored; unknown agi_
// suffixes are dropped silently.
func parseHeaderRecord(record string) (*CallMetadata, error) {
	meta := &CallMetadata{}

	lines := strings.Split(record, "\n")
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, newProtocolError("malformed header line: " + line)
		}

		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])

		if !strings.HasPrefix(key, "agi_") {
			continue
		}
		suffix := key[len("agi_"):]

		if setter, ok := fieldSetters[suffix]; ok {
			setter(meta, value)
		}
	}

	return meta, nil
}
