package bus

// InboundMessage is one chat message entering the dispatcher. ReplyToID
// carries the platform ID of the message this one replies to; the
// dispatcher uses it to correlate numbered-list selections with the
// session that presented the list.
type InboundMessage struct {
	Channel   string `json:"channel"`
	SenderID  string `json:"sender_id"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`
	Content   string `json:"content"`
}

// OutboundMessage is a reply to be delivered by a channel. ReplyToID, when
// set, asks the channel to thread the reply onto that message.
type OutboundMessage struct {
	Channel   string `json:"channel"`
	ChatID    string `json:"chat_id"`
	ReplyToID string `json:"reply_to_id,omitempty"`
	Content   string `json:"content"`
}

// ConversationKey identifies the serial-processing unit: messages sharing
// a key are dispatched in arrival order.
func (m InboundMessage) ConversationKey() string {
	return m.Channel + ":" + m.ChatID
}
