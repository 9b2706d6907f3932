package pipeline

import (
	"fmt"
	"strings"

	"mira/internal/model"
)

const analysisSystemPrompt = `You analyze conversation messages for a memory system. Respond with a single JSON object matching this schema exactly, no prose:
{
  "salience": 0.0-1.0, "mood": string|null, "intensity": 0.0-1.0, "intent": string|null,
  "topics": [string], "summary": string|null, "contains_code": bool, "programming_lang": string|null,
  "contains_error": bool, "error_type": string|null, "error_severity": string|null, "error_file": string|null,
  "should_embed": bool, "skip_reason": string|null
}
Salience anchors: trivial acknowledgements ("ok", "thanks") score below 0.3; substantive technical content scores 0.7-0.9; security or production-incident content scores 0.9-1.0.`

const batchAnalysisSystemPrompt = `You analyze a batch of conversation messages for a memory system. Respond with a single JSON array, one object per message, each tagged with "message_index" matching the input order, and otherwise following this schema exactly, no prose:
{
  "message_index": int, "salience": 0.0-1.0, "mood": string|null, "intensity": 0.0-1.0, "intent": string|null,
  "topics": [string], "summary": string|null, "contains_code": bool, "programming_lang": string|null,
  "contains_error": bool, "error_type": string|null, "error_severity": string|null, "error_file": string|null,
  "should_embed": bool, "skip_reason": string|null
}
Salience anchors: trivial acknowledgements score below 0.3; substantive technical content scores 0.7-0.9; security or production-incident content scores 0.9-1.0.`

// buildUserPrompt renders one message plus whatever prior context the
// caller supplies (typically the last few turns of the session) for the
// single-message analysis call.
func buildUserPrompt(content string, role model.Role, priorContext string) string {
	var b strings.Builder
	if priorContext != "" {
		b.WriteString("Prior context:\n")
		b.WriteString(priorContext)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Message to analyze (role=%s):\n%s", role, content)
	return b.String()
}

// buildBatchPrompt renders every unanalyzed message, indexed, for the
// batch analysis call.
func buildBatchPrompt(msgs []model.Message) string {
	var b strings.Builder
	b.WriteString("Messages to analyze:\n")
	for i, m := range msgs {
		fmt.Fprintf(&b, "[%d] (role=%s): %s\n", i, m.Role, m.Content)
	}
	return b.String()
}
