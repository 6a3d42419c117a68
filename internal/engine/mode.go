package engine

import "strings"

// Mode names an optimization strategy. The set below is what the service
// understands natively; unknown modes are passed through to the backend
// unvalidated, which decides for itself what to do with them.
type Mode string

// Known optimization modes.
const (
	ModeClarity      Mode = "clarity"
	ModeDepth        Mode = "depth"
	ModeCreative     Mode = "creative"
	ModeStructured   Mode = "structured"
	ModeDeepResearch Mode = "deep-research"
)

// NormalizeMode canonicalizes user-supplied mode text. The underscore
// spelling of deep-research is accepted as an alias; anything unrecognized
// is returned lowercased and left for the backend to interpret.
func NormalizeMode(s string) Mode {
	m := strings.ToLower(strings.TrimSpace(s))
	if m == "deep_research" {
		return ModeDeepResearch
	}
	return Mode(m)
}

// OffersFollowup reports whether the conversation should offer the
// follow-up-questions branch after optimization. Only deep-research
// produces clarifying questions worth answering.
func (m Mode) OffersFollowup() bool {
	return m == ModeDeepResearch
}

// modeInstructions maps each known mode to its rewrite instruction.
// Unknown modes get a generic instruction naming the mode verbatim.
var modeInstructions = map[Mode]string{
	ModeClarity:      "Rewrite the prompt to be maximally clear and unambiguous. Remove filler, resolve vague references, and state the desired output explicitly.",
	ModeDepth:        "Rewrite the prompt to elicit a thorough, expert-level answer. Add requests for reasoning, trade-offs, and concrete examples.",
	ModeCreative:     "Rewrite the prompt to encourage original, imaginative output. Loosen constraints that force generic answers while keeping the core intent.",
	ModeStructured:   "Rewrite the prompt so the answer comes back in a well-defined structure. Specify sections, ordering, and format expectations.",
	ModeDeepResearch: "Rewrite the prompt as a deep-research brief. Expand scope and sourcing expectations, and list the clarifying questions a researcher would ask before starting.",
}

func optimizeSystemPrompt(mode Mode) string {
	instruction, ok := modeInstructions[mode]
	if !ok {
		instruction = "Rewrite the prompt according to the optimization style named \"" + string(mode) + "\"."
	}
	return "You are a prompt engineer. The user sends a raw prompt intended for a large language model. " +
		instruction + " Reply with the optimized prompt only, no commentary."
}

const explainSystemPrompt = `You are a prompt-engineering reviewer. Given an original prompt and its optimized rewrite, explain what changed and why it helps.

Embed a JSON object in your reply with exactly this shape:

{
  "original_prompt": {
    "strengths": ["..."],
    "weaknesses": ["..."]
  },
  "llm_understanding_improvements": ["..."],
  "tips_for_future_prompts": ["..."]
}

You may surround the JSON with prose.`

const followupSystemPrompt = `You are a research assistant refining a deep-research prompt. The model previously asked clarifying questions. Using the user's answers and preferences where given, and sensible defaults where not, produce the final refined research brief.`
