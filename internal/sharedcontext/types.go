package sharedcontext

import (
	"regexp"
	"time"
)

// EntryKind distinguishes an ordinary channel message from operational
// log/system entries.
type EntryKind string

const (
	KindMessage EntryKind = "message"
	KindLog     EntryKind = "log"
	KindSystem  EntryKind = "system"
)

// ChannelEntry is one append-only channel log record. id is monotonic
// within one context directory.
type ChannelEntry struct {
	ID        int64     `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Kind      EntryKind `json:"kind"`
	Content   string    `json:"content"`
	Mentions  []string  `json:"mentions,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// InboxMessage is a ChannelEntry addressed to a specific agent with
// id > lastAckedId for that agent.
type InboxMessage = ChannelEntry

// ResourceType is the content type of a stored Resource.
type ResourceType string

const (
	ResourceMarkdown ResourceType = "markdown"
	ResourceJSON     ResourceType = "json"
	ResourceText     ResourceType = "text"
	ResourceDiff     ResourceType = "diff"
)

// Resource is an opaque, globally-unique-within-a-context blob.
type Resource struct {
	ID        string       `json:"id"`
	Type      ResourceType `json:"type"`
	Content   string       `json:"content"`
	CreatedBy string       `json:"createdBy"`
	CreatedAt time.Time    `json:"createdAt"`
}

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_\-]+)`)

// extractMentions returns the distinct set of @mention targets in content,
// in first-occurrence order.
func extractMentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	if matches == nil {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
