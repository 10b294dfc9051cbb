package domain

type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// History is an ordered conversation, oldest first.
type History []Turn

// NewHistory starts a session with its system turn.
func NewHistory(systemPrompt string) History {
	return History{{Role: RoleSystem, Text: systemPrompt}}
}

// Clone returns a copy that can be appended to without aliasing h.
func (h History) Clone() History {
	out := make(History, len(h))
	copy(out, h)
	return out
}

// SystemPrompt returns the leading system turn text, if any.
func (h History) SystemPrompt() string {
	if len(h) > 0 && h[0].Role == RoleSystem {
		return h[0].Text
	}
	return ""
}

// Dialogue returns the turns after the system turn.
func (h History) Dialogue() History {
	if len(h) > 0 && h[0].Role == RoleSystem {
		return h[1:]
	}
	return h
}
