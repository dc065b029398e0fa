package services

import (
	"fmt"
	"strings"

	"wingman/internal/pricing"
)

type Prompt struct {
	System string
	User   string
}

const systemPrompt = `You are a dating coach reviewing a message from a dating conversation.
Be honest, kind and specific. Never invent details that are not in the message.
Respond with a single JSON object and nothing else: no markdown, no code fences, no commentary.`

// BuildPrompt shapes the request for the resolved mode. Deeper modes ask for
// more fields; explain adds a reason to each suggested reply.
func BuildPrompt(mode pricing.Mode, explain bool, text string, imageCount int) Prompt {
	var sb strings.Builder

	sb.WriteString("Analyze the conversation below.\n\n")
	if text != "" {
		sb.WriteString("MESSAGE:\n\"\"\"\n")
		sb.WriteString(text)
		sb.WriteString("\n\"\"\"\n\n")
	}
	if imageCount > 0 {
		fmt.Fprintf(&sb, "%d screenshot(s) of the conversation are attached. Read them as part of the message.\n\n", imageCount)
	}

	reply := `"suggested_replies": [string]`
	if explain {
		reply = `"suggested_replies": [{"text": string, "why": string}]`
	}

	switch mode {
	case pricing.ModeDeep:
		sb.WriteString("Return JSON with exactly these fields:\n{\n")
		sb.WriteString(`  "summary": string,` + "\n")
		sb.WriteString(`  "tone": string,` + "\n")
		sb.WriteString(`  "interest_level": integer from 1 to 10,` + "\n")
		sb.WriteString(`  "interest_signals": [string],` + "\n")
		sb.WriteString(`  "red_flags": [string],` + "\n")
		sb.WriteString(`  "subtext": string,` + "\n")
		sb.WriteString(`  "strategy": string,` + "\n")
		sb.WriteString("  " + reply + "\n}\n")
		sb.WriteString("Give 5 suggested replies in different styles. Explain the subtext in depth.")
	case pricing.ModeExpanded:
		sb.WriteString("Return JSON with exactly these fields:\n{\n")
		sb.WriteString(`  "summary": string,` + "\n")
		sb.WriteString(`  "tone": string,` + "\n")
		sb.WriteString(`  "interest_signals": [string],` + "\n")
		sb.WriteString(`  "red_flags": [string],` + "\n")
		sb.WriteString("  " + reply + "\n}\n")
		sb.WriteString("Give 3 suggested replies.")
	default:
		sb.WriteString("Return JSON with exactly these fields:\n{\n")
		sb.WriteString(`  "summary": string,` + "\n")
		sb.WriteString(`  "tone": string,` + "\n")
		sb.WriteString("  " + reply + "\n}\n")
		sb.WriteString("Keep the summary to two sentences. Give 2 suggested replies.")
	}

	return Prompt{System: systemPrompt, User: sb.String()}
}
