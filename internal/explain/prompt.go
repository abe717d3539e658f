package explain

import (
	"strings"

	"github.com/nhle/codeinsight/internal/langdetect"
)

const systemPrompt = "You are a senior engineer explaining code to a colleague. " +
	"Describe what the code does, how the pieces fit together, and anything " +
	"surprising. Use short paragraphs and Markdown. Quote identifiers in " +
	"backticks and put any code you show in fenced blocks tagged with their language."

const chatSystemPrompt = "You are a senior engineer answering follow-up questions " +
	"about code the user shared earlier in this conversation. Be concise and " +
	"use Markdown. Put any code you show in fenced blocks tagged with their language."

// buildPrompt formats the explanation request for code. lang is used only
// to tag the fence.
func buildPrompt(code, lang string) string {
	var sb strings.Builder

	sb.WriteString("Explain the following ")
	sb.WriteString(lang)
	sb.WriteString(" code.\n\n")
	sb.WriteString(langdetect.FenceAs(code, lang))
	sb.WriteString("\n")

	return sb.String()
}
