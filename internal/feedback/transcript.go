package feedback

import "strings"

// Chat roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one line of a coaching conversation.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// RenderTranscript formats messages as "ROLE: text" lines.
func RenderTranscript(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, strings.ToUpper(m.Role)+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}
