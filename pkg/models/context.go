package models

// ContextType classifies a retrieved knowledge item by source.
type ContextType string

// Context item sources.
const (
	ContextLesson  ContextType = "lesson"
	ContextCode    ContextType = "code"
	ContextHistory ContextType = "history"
)

// ContextItem is one retrieved knowledge entry, token-costed and ranked.
type ContextItem struct {
	Type      ContextType `json:"type"`
	Content   string      `json:"content"`
	Relevance float64     `json:"relevance"`
	Tokens    int         `json:"tokens"`
	Source    string      `json:"source,omitempty"`
	Truncated bool        `json:"truncated,omitempty"`
}
