// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package inference

// Role tags a message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Part is one piece of message content: text, or an image by URL.
type Part struct {
	Text     string
	ImageURL string
}

// TextPart returns a text content part.
func TextPart(s string) Part { return Part{Text: s} }

// ImagePart returns an image content part.
func ImagePart(url string) Part { return Part{ImageURL: url} }

// Message is an ordered list of parts under one role.
type Message struct {
	Role  Role
	Parts []Part
}

// Request is one inference call.
type Request struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

// OpenAI-compatible wire shapes.

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stream    bool          `json:"stream"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

func (r Request) wire(stream bool) chatRequest {
	msgs := make([]chatMessage, len(r.Messages))
	for i, m := range r.Messages {
		parts := make([]contentPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			if p.ImageURL != "" {
				parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: p.ImageURL}})
				continue
			}
			parts = append(parts, contentPart{Type: "text", Text: p.Text})
		}
		msgs[i] = chatMessage{Role: string(m.Role), Content: parts}
	}
	return chatRequest{
		Model:     r.Model,
		Messages:  msgs,
		MaxTokens: r.MaxTokens,
		Stream:    stream,
	}
}
