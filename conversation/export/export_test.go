package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"discussion-facilitator/backend/conversation/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() Document {
	return Document{
		Topic:      "Uniforms",
		ExportedAt: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		Members:    []string{"ana", "ben"},
		Messages: []models.Message{
			{ID: 1, Author: "ana", Content: "I like them"},
			{ID: 2, Author: "ben", Content: "Too itchy"},
			{ID: 3, Author: "GPT4o", Content: "Why?"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": Markdown, "MD": Markdown, "markdown": Markdown, "txt": Text, "text": Text, "json": JSON}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("docx")
	assert.Error(t, err)
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Markdown, sampleDoc()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Chat Conversation\n"))
	assert.Contains(t, out, "**Topic:** Uniforms")
	assert.Contains(t, out, "3 messages · 2 participants")
	assert.Less(t, strings.Index(out, "**ana:** I like them"), strings.Index(out, "**GPT4o:** Why?"))
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Text, sampleDoc()))
	assert.Contains(t, buf.String(), "ben: Too itchy\n\n")
	assert.Contains(t, buf.String(), "Exported: 2024-03-01T12:30:00Z")
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, JSON, sampleDoc()))

	var doc Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, DefaultTitle, doc.Title)
	require.Len(t, doc.Messages, 3)
	assert.Equal(t, uint64(3), doc.Messages[2].ID)
}

func TestFileNameAndContentType(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 5, 0, time.UTC)
	assert.Equal(t, "conversation-20240301-123005.md", Markdown.FileName(at))
	assert.Equal(t, "conversation-20240301-123005.txt", Text.FileName(at))
	assert.Equal(t, "application/json; charset=utf-8", JSON.ContentType())
}
