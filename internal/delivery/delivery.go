// Package delivery decides how a generated text is handed back to a
// size-constrained messaging channel: as one message, as an ordered series
// of chunks, or as a file attachment.
//
// Selection is a pure function of the text length, so transports stay free
// of sizing logic and the policy is trivially testable.
package delivery

// Kind identifies the delivery strategy for a piece of text.
type Kind int

const (
	// Inline delivers the text as a single message.
	Inline Kind = iota
	// Chunked delivers the text as consecutive messages of at most
	// MaxInline characters each, in original order.
	Chunked
	// Attachment delivers the complete text as a file.
	Attachment
)

// String returns the strategy name for logging.
func (k Kind) String() string {
	switch k {
	case Inline:
		return "inline"
	case Chunked:
		return "chunked"
	case Attachment:
		return "attachment"
	default:
		return "unknown"
	}
}

const (
	// DefaultMaxInline is the single-message character limit used when the
	// caller does not configure one. Matches the common chat-transport cap.
	DefaultMaxInline = 4000

	// DefaultFilename is the suggested name for attachment delivery.
	DefaultFilename = "response.txt"

	// chunkFactor bounds chunked delivery: texts longer than
	// chunkFactor*maxInline become attachments instead.
	chunkFactor = 5
)

// Plan describes how to deliver one generated text.
// Exactly one of Text or Chunks is populated, depending on Kind:
// Inline and Attachment carry Text, Chunked carries Chunks.
type Plan struct {
	Kind     Kind
	Text     string
	Chunks   []string
	Filename string // set for Attachment only
}

// Select computes the delivery plan for text given the transport's
// single-message limit. maxInline <= 0 falls back to DefaultMaxInline.
//
// Lengths are measured in runes so multi-byte text is not split
// mid-character. Chunks concatenate back to the original text exactly.
func Select(text string, maxInline int) Plan {
	if maxInline <= 0 {
		maxInline = DefaultMaxInline
	}

	runes := []rune(text)
	switch {
	case len(runes) <= maxInline:
		return Plan{Kind: Inline, Text: text}

	case len(runes) <= chunkFactor*maxInline:
		chunks := make([]string, 0, (len(runes)+maxInline-1)/maxInline)
		for start := 0; start < len(runes); start += maxInline {
			end := min(start+maxInline, len(runes))
			chunks = append(chunks, string(runes[start:end]))
		}
		return Plan{Kind: Chunked, Chunks: chunks}

	default:
		return Plan{Kind: Attachment, Text: text, Filename: DefaultFilename}
	}
}
