package rag

import "strings"

const contextDelimiter = "\n\n"

// BuildPrompt assembles the generator prompt: contexts in rank order, each
// prefixed with "- ", then the question. An empty context list still
// produces a prompt.
func BuildPrompt(question string, contexts []string) string {
	parts := make([]string, len(contexts))
	for i, c := range contexts {
		parts[i] = "- " + c
	}

	var b strings.Builder
	b.WriteString("Use the following context to answer the question.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(parts, contextDelimiter))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer concisely using only the context above.")
	return b.String()
}
