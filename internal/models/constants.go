package models

const (
	SystemPrompt = "You are a helpful assistant."

	SearchResultsStart = "=== Start of search results ==="
	SearchResultsEnd   = "=== End of search results ==="
)

var (
	// PromptTemplate takes the query, the serialized results and the query again.
	PromptTemplate = `Here are some search results for "%s":

` + SearchResultsStart + `
%s
` + SearchResultsEnd + `

Base your answer only on the provided context. If the information needed is not in the context, please say so.

%s
`
)
