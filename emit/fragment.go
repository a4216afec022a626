// Package emit contains the four cooperating code emitters — AWK,
// grep-family, jq, and sort-family — each owning quoting and
// feature-flag decisions for its own utility, plus the shared Fragment
// type and shell-quoting helper that let the assembler compose their
// output safely.
package emit

// Format names the byte-stream shape a Fragment produces or expects,
// per spec §4.4: raw bytes/lines, a delimited stream with a known,
// static column order (no runtime header row), or newline-delimited
// json.
type Format int

const (
	// Raw is an unstructured line stream (grep-family input/output).
	Raw Format = iota
	// Delimited is a tsv/csv-like stream whose column order is known at
	// compile time — either because it came from a csv header the AWK
	// emitter already consumed, or because a jq conversion fragment
	// produced it positionally.
	Delimited
	// NDJSON is one json object per line (jq's native format).
	NDJSON
)

// Fragment is a partial shell command produced by one emitter. The
// assembler does not compare formats in general: the one conversion it
// inserts is a jq `@tsv` fragment between a jq run and a following AWK
// run or Sort. Distinct and Limit take a jq run's ndjson lines as they
// are.
type Fragment struct {
	// Command is the fragment's shell text, ready to be joined with the
	// rest of the pipeline using " | ". It never includes a trailing or
	// leading pipe.
	Command string

	InputFormat  Format
	OutputFormat Format

	// Columns is the known column order of a Delimited output, e.g. the
	// GroupBy keys followed by Agg aliases, or a Select's projection.
	// An NDJSON fragment from a jq run carries its Select's projection
	// here, if it has one, for a downstream @tsv conversion.
	Columns []string

	// Delim is the field delimiter of a Delimited output: ',' for a
	// csv-sourced AWK pipeline, '\t' when the stream passed through a
	// jq @tsv conversion.
	Delim byte

	// TakesFileArg reports whether Command accepts the source path (or
	// glob) as a trailing file operand. The assembler reads it only on
	// the first fragment of a pipeline; when it is false there, the
	// source is fed in through `cat` or `find ... | xargs -0 cat`.
	TakesFileArg bool
}
