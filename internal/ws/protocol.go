package ws

const (
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"

	QueryListConversations = "listConversations"
	QueryOpenConversation  = "openConversation"
	QueryListMessages      = "listMessages"
	QueryListTypingUsers   = "listTypingUsers"
	QueryOnlineStatus      = "onlineStatus"

	typeResult = "result"
	typeError  = "error"
)

type clientMessage struct {
	Op             string   `json:"op"`
	ID             string   `json:"id"`
	Query          string   `json:"query"`
	ConversationID string   `json:"conversation_id"`
	UserIDs        []string `json:"user_ids"`
}

type serverMessage struct {
	Type  string      `json:"type"`
	ID    string      `json:"id"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}
