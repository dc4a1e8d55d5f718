package model

// Message represents a single chat message. Timestamp is the wire-format
// "seconds.microseconds" string and, together with ChannelID, identifies the
// message. Messages are never mutated after fetch; a fresh fetch replaces.
type Message struct {
	Timestamp   string       `json:"ts"`
	ChannelID   string       `json:"-"`
	AuthorID    string       `json:"user,omitempty"`
	Text        string       `json:"text"`
	ThreadTS    string       `json:"thread_ts,omitempty"`
	ReplyCount  int          `json:"reply_count,omitempty"`
	Files       []File       `json:"files,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Bot         *BotProfile  `json:"bot_profile,omitempty"`
}

// Key returns the cache key for a message, "channelID:timestamp".
func (m *Message) Key() string {
	return m.ChannelID + ":" + m.Timestamp
}

// IsThreadReply reports whether the message lives inside a thread under a
// different root message.
func (m *Message) IsThreadReply() bool {
	return m.ThreadTS != "" && m.ThreadTS != m.Timestamp
}

// Thread represents a root message plus its replies in chronological order.
// Every reply's ThreadTS equals Parent.Timestamp.
type Thread struct {
	Parent  Message   `json:"parent"`
	Replies []Message `json:"replies"`
}

// User represents a workspace member.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RealName    string `json:"real_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// DisplayLabel returns the best human-readable name for the user, falling
// back through display name, real name, and login.
func (u *User) DisplayLabel() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.RealName != "" {
		return u.RealName
	}
	return u.Name
}

// Channel represents a conversation the workspace API can describe.
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private,omitempty"`
}

// File represents an upload attached to a message.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Mimetype string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
	URL      string `json:"url_private,omitempty"`
	Thumb    string `json:"thumb_360,omitempty"`
}

// Attachment represents unfurled or bot-generated content on a message.
// Issue-reference extraction scans FromURL and TitleLink before body text.
type Attachment struct {
	FromURL   string `json:"from_url,omitempty"`
	TitleLink string `json:"title_link,omitempty"`
	Title     string `json:"title,omitempty"`
	Text      string `json:"text,omitempty"`
	Fallback  string `json:"fallback,omitempty"`
}

// BotProfile identifies the bot that posted a message, when one did.
type BotProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Issue represents a tracker work item resolved from a reference like
// "ENG-123". Identifier is the human-readable key and the cache key.
type Issue struct {
	ID         string     `json:"id"`
	Identifier string     `json:"identifier"`
	Title      string     `json:"title"`
	URL        string     `json:"url,omitempty"`
	State      IssueState `json:"state"`
}

// IssueState represents the workflow state of an issue.
type IssueState struct {
	Name string    `json:"name"`
	Type StateType `json:"type"`
}

// StateType categorizes a workflow state.
type StateType string

const (
	StateBacklog   StateType = "backlog"
	StateUnstarted StateType = "unstarted"
	StateStarted   StateType = "started"
	StateCompleted StateType = "completed"
	StateCanceled  StateType = "canceled"
)

// TrackerComment represents a comment created on a tracker issue.
type TrackerComment struct {
	ID   string `json:"id"`
	Body string `json:"body"`
	URL  string `json:"url,omitempty"`
}
