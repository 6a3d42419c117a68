package engine

import (
	"encoding/json"
	"strings"
)

// Analysis is the structured feedback block a model may embed in an
// explanation. Absence of a block is a normal outcome, not an error.
type Analysis struct {
	OriginalPrompt            PromptAssessment `json:"original_prompt"`
	UnderstandingImprovements []string         `json:"llm_understanding_improvements"`
	Tips                      []string         `json:"tips_for_future_prompts"`
}

// PromptAssessment holds the model's verdict on the original prompt.
type PromptAssessment struct {
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// isEmpty reports whether no section carries content. A parseable but fully
// empty block is treated the same as no block at all.
func (a *Analysis) isEmpty() bool {
	return len(a.OriginalPrompt.Strengths) == 0 &&
		len(a.OriginalPrompt.Weaknesses) == 0 &&
		len(a.UnderstandingImprovements) == 0 &&
		len(a.Tips) == 0
}

// ExtractAnalysis scans text for the first well-formed embedded JSON
// analysis block. It checks fenced ```json blocks first, then any balanced
// top-level object in the prose. ok is false when no parseable block with
// content exists.
func ExtractAnalysis(text string) (analysis *Analysis, ok bool) {
	for _, candidate := range jsonCandidates(text) {
		var a Analysis
		if err := json.Unmarshal([]byte(candidate), &a); err != nil {
			continue
		}
		if a.isEmpty() {
			continue
		}
		return &a, true
	}
	return nil, false
}

// jsonCandidates yields substrings of text that could be JSON objects, in
// scan order: fenced code blocks first, then balanced brace spans.
func jsonCandidates(text string) []string {
	var candidates []string

	// Fenced blocks: ```json ... ``` (and bare ``` fences holding an object).
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			break
		}
		body := rest[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:] // drop the language tag line
		}
		end := strings.Index(body, "```")
		if end < 0 {
			break
		}
		if block := strings.TrimSpace(body[:end]); strings.HasPrefix(block, "{") {
			candidates = append(candidates, block)
		}
		rest = body[end+3:]
	}

	// Balanced objects anywhere in the prose.
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if span, endIdx := balancedObject(text[i:]); span != "" {
			candidates = append(candidates, span)
			i += endIdx // skip past this object; nested objects were covered by it
		}
	}

	return candidates
}

// balancedObject returns the shortest prefix of s that forms a balanced
// brace span, honoring JSON string quoting and escapes. Returns ("", 0)
// when the braces never balance.
func balancedObject(s string) (string, int) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// quoted content never affects depth
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[:i+1], i
			}
		}
	}
	return "", 0
}
