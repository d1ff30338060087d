package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt_OrdersContexts(t *testing.T) {
	p := BuildPrompt("Who wrote it?", []string{"first", "second"})

	assert.Contains(t, p, "- first\n\n- second")
	assert.Less(t, strings.Index(p, "- first"), strings.Index(p, "- second"))
	assert.Less(t, strings.Index(p, "- second"), strings.Index(p, "Question: Who wrote it?"))
	assert.Contains(t, p, "only the context")
}

func TestBuildPrompt_NoContexts(t *testing.T) {
	p := BuildPrompt("Anything?", nil)
	assert.Contains(t, p, "Context:\n\n\nQuestion: Anything?")
	assert.NotContains(t, p, "- ")
}
