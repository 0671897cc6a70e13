package model

// Sender tags who authored a chat message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// ChatMessage is one entry of a conversational view's log. Text is mutable
// only while Streaming is true.
type ChatMessage struct {
	ID        string `json:"id"`
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	Streaming bool   `json:"streaming,omitempty"`
}
