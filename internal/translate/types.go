// Package translate defines core types shared across the translation pipeline.
package translate

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by pipeline stages.
var (
	// ErrEndOfFile reports that a chunk source has no more content.
	ErrEndOfFile = errors.New("end of file")
	// ErrNoTerminalEvent reports a stream that ended before the terminal frame.
	ErrNoTerminalEvent = errors.New("stream ended without terminal event")
)

// Chunk is a numbered unit of source text submitted as one remote request.
type Chunk struct {
	// Sequence is the 1-based ordinal assigned when the chunk was produced.
	Sequence uint64
	// ResumeOffset counts the read attempts made so far, blank groups included.
	ResumeOffset uint64
	// Text holds the joined source lines.
	Text string
}

// OutcomeKind tags the variant stored in an Outcome.
type OutcomeKind int

// Outcome variants.
const (
	OutcomeSuccess OutcomeKind = iota + 1
	OutcomeFailure
	OutcomeEndOfStream
)

// String returns a lowercase label used in logs and metrics.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeEndOfStream:
		return "end_of_stream"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome is the result of processing a chunk. Only the field matching Kind is set.
type Outcome struct {
	Kind    OutcomeKind
	Payload map[string]any
	Reason  string
}

// Success wraps the terminal payload returned by the remote workflow.
func Success(payload map[string]any) Outcome {
	return Outcome{Kind: OutcomeSuccess, Payload: payload}
}

// Failure records why a chunk produced no result.
func Failure(reason string) Outcome {
	return Outcome{Kind: OutcomeFailure, Reason: reason}
}

// EndOfStream is the outcome a worker reports once its source is exhausted.
func EndOfStream() Outcome {
	return Outcome{Kind: OutcomeEndOfStream}
}

// Message travels from workers to the sequencer.
type Message struct {
	Sequence     uint64
	ResumeOffset uint64
	Outcome      Outcome
}

// EndOfStreamMessage returns the sentinel a worker sends when it terminates.
// Its sequence is 0, which no real chunk uses.
func EndOfStreamMessage() Message {
	return Message{Outcome: EndOfStream()}
}

// IsEndOfStream reports whether m is a worker termination sentinel.
func (m Message) IsEndOfStream() bool {
	return m.Outcome.Kind == OutcomeEndOfStream
}

// Langs names the language pair of a run.
type Langs struct {
	Source string
	Target string
}

// Cursor is the persisted resume point of an input file.
type Cursor struct {
	TargetLang   string `json:"target_lang"`
	SourceLang   string `json:"source_lang"`
	HistoryLines uint64 `json:"history_lines"`
}

// Langs returns the language pair stored in the cursor.
func (c Cursor) Langs() Langs {
	return Langs{Source: c.SourceLang, Target: c.TargetLang}
}

// Request carries everything the remote workflow needs to translate one chunk.
type Request struct {
	SourceText string
	SourceLang string
	TargetLang string
	Term       string
}
