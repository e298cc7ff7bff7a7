package models

import "time"

// MessageTimeFormat renders timestamps the way the dashboard shows them.
const MessageTimeFormat = "03:04 PM"

type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatMessage is append-only. Sender.Name is denormalized at send time.
type ChatMessage struct {
	ID        string `json:"id"`
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

func FormatMessageTime(t time.Time) string {
	return t.Format(MessageTimeFormat)
}
