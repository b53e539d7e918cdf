package session

// Conversation is the normalized shape of one entry under "conversations".
type Conversation struct {
	Messages []any  `json:"messages"`
	Preview  string `json:"preview"`
}

// upgradeConversations returns the mapping shape for raw. The second result
// is false when raw is absent, leaving the session untouched.
func upgradeConversations(raw any) (map[string]any, bool) {
	switch typed := raw.(type) {
	case nil:
		return nil, false
	case map[string]any:
		out := make(map[string]any, len(typed))
		for user, value := range typed {
			row, ok := value.(map[string]any)
			if !ok {
				continue
			}
			out[user] = conversationRow(row)
		}
		return out, true
	case []any:
		out := make(map[string]any, len(typed))
		for _, item := range typed {
			row, ok := item.(map[string]any)
			if !ok {
				continue
			}
			user, _ := row["user"].(string)
			if user == "" {
				user = "unknown"
			}
			out[user] = conversationRow(row)
		}
		return out, true
	default:
		return map[string]any{}, true
	}
}

func conversationRow(row map[string]any) map[string]any {
	messages, _ := row["messages"].([]any)
	if messages == nil {
		messages = []any{}
	}
	out := make(map[string]any, len(row)+2)
	for key, value := range row {
		if key == "user" {
			continue
		}
		out[key] = value
	}
	out["messages"] = messages
	out["preview"] = previewOf(messages)
	return out
}

func previewOf(messages []any) string {
	if len(messages) == 0 {
		return ""
	}
	switch last := messages[len(messages)-1].(type) {
	case string:
		return last
	case map[string]any:
		if content, ok := last["content"].(string); ok {
			return content
		}
		if text, ok := last["text"].(string); ok {
			return text
		}
	}
	return ""
}

// Conversations returns the normalized conversations keyed by username.
func (s *Session) Conversations() map[string]Conversation {
	out := map[string]Conversation{}
	_, _ = s.Decode(KeyConversations, &out)
	return out
}

// AppendMessage adds a message to the conversation with user and refreshes
// its preview.
func (s *Session) AppendMessage(user, sender, content string) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversations, _ := upgradeConversations(s.values[KeyConversations])
	if conversations == nil {
		conversations = map[string]any{}
	}
	row, _ := conversations[user].(map[string]any)
	if row == nil {
		row = map[string]any{"messages": []any{}}
	}
	messages, _ := row["messages"].([]any)
	messages = append(messages, map[string]any{"sender": sender, "content": content})
	row["messages"] = messages
	row["preview"] = previewOf(messages)
	conversations[user] = row
	s.values[KeyConversations] = conversations
	return Conversation{Messages: messages, Preview: row["preview"].(string)}
}
