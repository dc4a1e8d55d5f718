// Package permalink recognizes chat-workspace message permalinks inside
// arbitrary source text and converts their compact timestamps to the dotted
// wire form.
package permalink

import (
	"regexp"
	"strings"
)

// Permalink is a parsed message link. Timestamp and ThreadTS are dotted
// "seconds.microseconds" strings as the workspace API expects them.
type Permalink struct {
	Raw       string `json:"raw"`
	Workspace string `json:"workspace"`
	ChannelID string `json:"channel_id"`
	Timestamp string `json:"timestamp"`
	ThreadTS  string `json:"thread_ts,omitempty"`
}

// IsThreadLink reports whether the link targets a reply inside a thread.
func (p Permalink) IsThreadLink() bool {
	return p.ThreadTS != ""
}

// Match is one recognized permalink with its byte offsets in the scanned
// text. ChannelStart/ChannelEnd bound the channel-ID path segment, the
// sub-range the channel-name layer decorates.
type Match struct {
	Start        int       `json:"start"`
	End          int       `json:"end"`
	ChannelStart int       `json:"channel_start"`
	ChannelEnd   int       `json:"channel_end"`
	Link         Permalink `json:"link"`
}

// Grammar pieces. Channel IDs are uppercase alphanumeric starting with a
// letter, the "p" prefix is literal lowercase, and the compact timestamp
// carries at least seven digits (six of them microseconds).
const (
	workspacePart = `([A-Za-z0-9][A-Za-z0-9-]*)`
	pathPart      = `/archives/([A-Z][A-Z0-9]+)/p(\d{7,})(?:\?thread_ts=(\d+\.\d+))?`
)

// DefaultHost is matched when a Matcher is built without explicit hosts.
const DefaultHost = "slack.com"

// Matcher holds the compiled grammar for a set of workspace hosts. Matchers
// are immutable and safe for concurrent use; every call runs a fresh scan
// with no shared cursor.
type Matcher struct {
	scan  *regexp.Regexp
	exact *regexp.Regexp
}

// New compiles a matcher for the given hosts. With no hosts it matches
// DefaultHost only.
func New(hosts ...string) *Matcher {
	if len(hosts) == 0 {
		hosts = []string{DefaultHost}
	}
	quoted := make([]string, len(hosts))
	for i, h := range hosts {
		quoted[i] = regexp.QuoteMeta(h)
	}
	pattern := `https://` + workspacePart + `\.(?:` + strings.Join(quoted, `|`) + `)` + pathPart
	return &Matcher{
		scan:  regexp.MustCompile(pattern),
		exact: regexp.MustCompile(`^` + pattern + `$`),
	}
}

// Parse returns the permalink encoded by raw, which must be exactly one
// permalink with nothing around it. Non-matching input returns ok=false;
// malformed links are not errors, just not links.
func (m *Matcher) Parse(raw string) (Permalink, bool) {
	idx := m.exact.FindStringSubmatchIndex(raw)
	if idx == nil {
		return Permalink{}, false
	}
	return m.link(raw, idx), true
}

// FindAll scans text and returns every permalink match in order. The slice
// is freshly allocated per call.
func (m *Matcher) FindAll(text string) []Match {
	idxs := m.scan.FindAllStringSubmatchIndex(text, -1)
	if len(idxs) == 0 {
		return nil
	}
	out := make([]Match, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, m.match(text, idx, 0))
	}
	return out
}

// First returns the first match beginning at or after the byte offset from.
func (m *Matcher) First(text string, from int) (Match, bool) {
	if from < 0 {
		from = 0
	}
	if from >= len(text) {
		return Match{}, false
	}
	idx := m.scan.FindStringSubmatchIndex(text[from:])
	if idx == nil {
		return Match{}, false
	}
	return m.match(text, idx, from), true
}

// At returns the match whose range contains the byte offset, if any. The
// scan restarts from the top of the text on every call.
func (m *Matcher) At(text string, offset int) (Match, bool) {
	pos := 0
	for {
		mt, ok := m.First(text, pos)
		if !ok || mt.Start > offset {
			return Match{}, false
		}
		if offset < mt.End {
			return mt, true
		}
		pos = mt.End
	}
}

func (m *Matcher) match(text string, idx []int, base int) Match {
	for i := range idx {
		if idx[i] >= 0 {
			idx[i] += base
		}
	}
	return Match{
		Start:        idx[0],
		End:          idx[1],
		ChannelStart: idx[4],
		ChannelEnd:   idx[5],
		Link:         m.link(text, idx),
	}
}

func (m *Matcher) link(text string, idx []int) Permalink {
	p := Permalink{
		Raw:       text[idx[0]:idx[1]],
		Workspace: text[idx[2]:idx[3]],
		ChannelID: text[idx[4]:idx[5]],
	}
	p.Timestamp, _ = SplitTimestamp(text[idx[6]:idx[7]])
	if idx[8] >= 0 {
		p.ThreadTS = text[idx[8]:idx[9]]
	}
	return p
}

// SplitTimestamp converts a compact permalink timestamp to the dotted wire
// form by splitting off the last six digits: "1609459200123456" becomes
// "1609459200.123456". This is string surgery, never numeric division, so
// the value survives beyond float precision.
func SplitTimestamp(compact string) (string, bool) {
	if len(compact) < 7 {
		return "", false
	}
	for _, r := range compact {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	cut := len(compact) - 6
	return compact[:cut] + "." + compact[cut:], true
}
