package models

import "time"

// Message represents an individual entry of the chat transcript. It contains the core components of a
// chat message including its unique identifier, who sent it, the display text, the precise time when the
// message was created, and the variant that decides how it is rendered.
type Message struct {
	ID        string
	Sender    Sender
	Text      string
	Timestamp time.Time
	Variant   Variant

	// Payload is filled for VariantResponse and VariantError messages.
	Payload *Payload
}

// Payload carries the structured part of a bot message.
type Payload struct {
	// SQL, Explanation, Table, ModelInfo and RowCount would be filled if the message is VariantResponse.
	SQL         string
	Explanation string
	Table       [][]any
	ModelInfo   string
	// RowCount is always len(Table), it never comes from the server's row_count field.
	RowCount int

	// Error would be filled if the message is VariantError. It holds the raw error detail, while the
	// message Text holds the human-readable explanation.
	Error string
}

// Sender represents who authored a message.
type Sender string

// Variant represents the rendering variant of a message.
type Variant string

const (
	// SenderUser represents a message typed by the user. A message with this sender is always VariantText.
	SenderUser Sender = "user"
	// SenderBot represents a message produced by the assistant.
	SenderBot Sender = "bot"

	// VariantText is a plain text message.
	VariantText Variant = "text"
	// VariantResponse is a structured answer holding SQL, explanation and result rows.
	VariantResponse Variant = "response"
	// VariantError is a failure notice.
	VariantError Variant = "error"
)

// Connectivity summarizes the outcome of the last health probe.
type Connectivity string

const (
	ConnectivityUnknown   Connectivity = "unknown"
	ConnectivityConnected Connectivity = "connected"
	ConnectivityError     Connectivity = "error"
)
