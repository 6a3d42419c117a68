package conversation

import (
	"strings"

	"github.com/promptwise/promptwise/internal/engine"
)

// Reply texts, in conversation order.
const (
	msgWelcome = "Send the prompt you want optimized."
	msgAskMode = "Which mode should I use? Options: clarity, depth, creative, " +
		"structured, deep-research."
	msgAskFollowup    = "The model may have follow-up questions for you. Answer them? (yes/no)"
	msgAskQuestions   = "Paste the questions you want addressed."
	msgAskPreferences = "Any preferences or constraints for the answers? Reply 'no' to skip."
	msgAskExplain     = "Want a breakdown of what changed and why? (yes/no)"
	msgDone           = "All done. Start a new conversation whenever you have another prompt."
	msgCanceled       = "Conversation canceled."
	msgNoSession      = "There is no active conversation. Start one to optimize a prompt."
	msgRetry          = "The optimizer is unavailable right now. Send that again to retry."
)

const analysisHeader = "Here is the breakdown of your prompt:"

// formatAnalysis renders a structured explanation as one message per
// section, in fixed order, skipping sections with nothing to say.
func formatAnalysis(a *engine.Analysis) []Outgoing {
	out := []Outgoing{message(analysisHeader)}

	if s := bulletSection("Strengths of the original prompt", a.OriginalPrompt.Strengths); s != "" {
		out = append(out, message(s))
	}
	if s := bulletSection("Weaknesses of the original prompt", a.OriginalPrompt.Weaknesses); s != "" {
		out = append(out, message(s))
	}
	if s := bulletSection("What the optimized version conveys better", a.UnderstandingImprovements); s != "" {
		out = append(out, message(s))
	}
	if s := bulletSection("Tips for future prompts", a.Tips); s != "" {
		out = append(out, message(s))
	}
	return out
}

// bulletSection renders a titled bullet list, or "" when items is empty.
func bulletSection(title string, items []string) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString(":")
	for _, item := range items {
		b.WriteString("\n• ")
		b.WriteString(item)
	}
	return b.String()
}
