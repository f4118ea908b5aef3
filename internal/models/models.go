package models

// Chunk is a contiguous piece of an ingested document.
type Chunk struct {
	Content string
	Index   int
}

// SearchResult is one nearest-neighbor match. Lower distance is more similar.
type SearchResult struct {
	Content  string  `json:"content"`
	Distance float64 `json:"distance"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type PromptResponse struct {
	Query   string
	Source  string
	Content string
}
