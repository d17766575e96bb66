package llm

import "fmt"

// SummaryPrompt generates the prompt for consolidating a period of
// conversation and events into a context summary.
func SummaryPrompt(summaryType, transcript string) string {
	return fmt.Sprintf(`You are a memory consolidation system for a home companion assistant.
Summarize this %s period of conversation and household events.

TRANSCRIPT:
%s

Rules:
- Write 2-4 plain sentences capturing what happened and what mattered to the user
- Note decisions, plans, and anything the user asked to be reminded of
- Skip greetings, small talk, and routine device chatter
- Do not include URLs or code
- Return ONLY a JSON object, no other text

Return a JSON object:
{
  "summary": "the summary text",
  "key_points": ["short bullet", "..."],
  "topics": ["topic", "..."]
}`, summaryType, transcript)
}
