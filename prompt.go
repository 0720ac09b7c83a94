package geminiwebapi

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var reThink = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// RoleText is a single conversation turn before encoding.
type RoleText struct {
	Role string
	Text string
}

// NormalizeRole converts a role to a standard format (lowercase, 'model' ->
// 'assistant').
func NormalizeRole(role string) string {
	r := strings.ToLower(role)
	if r == "model" {
		return "assistant"
	}
	return r
}

// NeedRoleTags checks if a list of messages requires role tags.
func NeedRoleTags(msgs []RoleText) bool {
	for _, m := range msgs {
		if strings.ToLower(m.Role) != "user" {
			return true
		}
	}
	return false
}

// AddRoleTag wraps content with a role tag.
func AddRoleTag(role, content string, unclose bool) string {
	if role == "" {
		role = "user"
	}
	if unclose {
		return "<|im_start|>" + role + "\n" + content
	}
	return "<|im_start|>" + role + "\n" + content + "\n<|im_end|>"
}

// BuildPrompt constructs the final prompt from a list of messages.
func BuildPrompt(msgs []RoleText, tagged bool, appendAssistant bool) string {
	if len(msgs) == 0 {
		if tagged && appendAssistant {
			return AddRoleTag("assistant", "", true)
		}
		return ""
	}
	if !tagged {
		var sb strings.Builder
		for i, m := range msgs {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(m.Text)
		}
		return sb.String()
	}
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(AddRoleTag(m.Role, m.Text, false))
		sb.WriteString("\n")
	}
	if appendAssistant {
		sb.WriteString(AddRoleTag("assistant", "", true))
	}
	return strings.TrimSpace(sb.String())
}

// RemoveThinkTags strips a leading <think>...</think> block from a string.
func RemoveThinkTags(s string) string {
	return strings.TrimSpace(reThink.ReplaceAllString(s, ""))
}

// SanitizeAssistantMessages removes think tags from assistant messages.
func SanitizeAssistantMessages(msgs []RoleText) []RoleText {
	out := make([]RoleText, 0, len(msgs))
	for _, m := range msgs {
		if strings.ToLower(m.Role) == "assistant" {
			out = append(out, RoleText{Role: m.Role, Text: RemoveThinkTags(m.Text)})
		} else {
			out = append(out, m)
		}
	}
	return out
}

// PlanSend resolves what actually goes on the wire for a message history:
// the lineage of the longest stored session prefix that can be resumed, and
// the prompt encoding the turns not covered by it. Roles are normalized and
// assistant turns sanitized first; histories with mixed roles are encoded
// with role tags and an open assistant turn.
func PlanSend(records map[string]ConversationRecord, index map[string]string, clientID, model string, msgs []RoleText) ([]string, string) {
	norm := make([]RoleText, len(msgs))
	for i, m := range msgs {
		norm[i] = RoleText{Role: NormalizeRole(m.Role), Text: m.Text}
	}
	lineage, remaining := FindReusableSession(records, index, clientID, model, norm)
	if lineage == nil {
		remaining = norm
	}
	remaining = SanitizeAssistantMessages(remaining)
	tagged := NeedRoleTags(remaining)
	return lineage, BuildPrompt(remaining, tagged, tagged)
}

const continuationHint = "\n(More messages to come, please reply with just 'ok.')"

// ChunkByRunes splits s into rune-safe chunks of at most size runes.
func ChunkByRunes(s string, size int) []string {
	if size <= 0 {
		return []string{s}
	}
	chunks := make([]string, 0, (len(s)/size)+1)
	var buf strings.Builder
	count := 0
	for _, r := range s {
		buf.WriteRune(r)
		count++
		if count >= size {
			chunks = append(chunks, buf.String())
			buf.Reset()
			count = 0
		}
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	if len(chunks) == 0 {
		return []string{""}
	}
	return chunks
}

// SendWithSplit sends text through the chat session, splitting it into
// multiple turns when it exceeds maxChars runes. Intermediate chunks go out
// without files and, when useHint is set, with a short continuation notice;
// only the final chunk carries the files and its output is returned.
func SendWithSplit(chat *ChatSession, text string, files []string, maxChars int, useHint bool) (ModelOutput, error) {
	if chat == nil {
		return ModelOutput{}, &ValueError{Msg: "nil chat session"}
	}
	if maxChars <= 0 {
		maxChars = 1_000_000
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return chat.SendMessage(text, files)
	}

	hintLen := 0
	if useHint {
		hintLen = utf8.RuneCountInString(continuationHint)
	}
	chunkSize := maxChars - hintLen
	if chunkSize <= 0 {
		useHint = false
		chunkSize = maxChars
	}

	chunks := ChunkByRunes(text, chunkSize)
	for i := 0; i < len(chunks)-1; i++ {
		part := chunks[i]
		if useHint {
			part += continuationHint
		}
		if _, err := chat.SendMessage(part, nil); err != nil {
			return ModelOutput{}, err
		}
	}
	return chat.SendMessage(chunks[len(chunks)-1], files)
}
