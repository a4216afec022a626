package emit

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shellspark/shellspark/plan"
)

var jqIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// jqField renders a field access, preferring the bare `.name` form the
// spec's literal examples show (`select(.status >= 400)`) when name is a
// safe identifier, and falling back to bracket indexing with a
// json-escaped string literal otherwise, which works regardless of
// content.
func jqField(col string) (string, error) {
	if jqIdentifier.MatchString(col) {
		return "." + col, nil
	}
	lit, err := jqLiteral(col)
	if err != nil {
		return "", err
	}
	return ".[" + lit + "]", nil
}

func jqLiteral(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("emit: jq literal: %w", err)
	}
	return string(b), nil
}

func jqOperator(op plan.Operator) (string, error) {
	switch op {
	case plan.OpEq:
		return "==", nil
	case plan.OpNe:
		return "!=", nil
	case plan.OpLt:
		return "<", nil
	case plan.OpLe:
		return "<=", nil
	case plan.OpGt:
		return ">", nil
	case plan.OpGe:
		return ">=", nil
	default:
		return "", fmt.Errorf("emit: unknown operator %v", op)
	}
}

// EmitJQRun emits a single jq program for a contiguous run beginning at
// Parse(json) and continuing through ColFilter/Select nodes, stopping
// before GroupBy/Agg/Sort (spec §4.4.3). Output is compact (-c), one
// record per line.
func EmitJQRun(jqPath string, run []plan.Node) (Fragment, error) {
	if len(run) == 0 {
		return Fragment{}, fmt.Errorf("emit: empty jq run")
	}
	if _, ok := run[0].(*plan.Parse); !ok {
		return Fragment{}, fmt.Errorf("emit: jq run must start with Parse(json)")
	}

	var stages []string
	var columns []string
	for _, n := range run[1:] {
		switch v := n.(type) {
		case *plan.ColFilter:
			field, err := jqField(v.Column)
			if err != nil {
				return Fragment{}, err
			}
			opStr, err := jqOperator(v.Op)
			if err != nil {
				return Fragment{}, err
			}
			valLit, err := jqLiteral(v.Value)
			if err != nil {
				return Fragment{}, err
			}
			stages = append(stages, fmt.Sprintf("select(%s %s %s)", field, opStr, valLit))
		case *plan.Select:
			columns = v.Columns
			stages = append(stages, jqObjectConstructor(v.Columns))
		default:
			return Fragment{}, fmt.Errorf("emit: node kind %v not valid in a jq run", n.Kind())
		}
	}

	program := strings.Join(stages, " | ")
	if program == "" {
		program = "."
	}

	cmd := fmt.Sprintf("%s -c %s", jqPath, ShellQuote(program))

	// Still one json object per line even after a Select projection;
	// Columns is recorded for an EmitJQToTSV conversion downstream.
	return Fragment{
		Command:      cmd,
		InputFormat:  NDJSON,
		OutputFormat: NDJSON,
		Columns:      columns,
		TakesFileArg: true,
	}, nil
}

// jqObjectConstructor renders a Select projection as a jq object
// constructor, preferring the `{col1, col2}` shorthand when every column
// name is a safe bare identifier (matching the documented example
// output verbatim) and falling back to explicit `key: .["key"]` pairs
// otherwise, so a column name containing quoting-sensitive characters
// still produces a valid, safe program.
func jqObjectConstructor(columns []string) string {
	allSafe := true
	for _, c := range columns {
		if !jqIdentifier.MatchString(c) {
			allSafe = false
			break
		}
	}
	if allSafe {
		return "{" + strings.Join(columns, ", ") + "}"
	}

	pairs := make([]string, len(columns))
	for i, c := range columns {
		lit, _ := jqLiteral(c)
		field, _ := jqField(c)
		pairs[i] = fmt.Sprintf("%s: %s", lit, field)
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

// EmitJQToTSV emits the conversion fragment that turns an ndjson stream
// into tab-separated values for the AWK emitter to consume, per spec
// §4.4.3: `jq -r '[.col1,.col2,…] | @tsv'`.
func EmitJQToTSV(jqPath string, columns []string) (Fragment, error) {
	fields := make([]string, len(columns))
	for i, c := range columns {
		f, err := jqField(c)
		if err != nil {
			return Fragment{}, err
		}
		fields[i] = f
	}
	program := fmt.Sprintf("[%s] | @tsv", strings.Join(fields, ","))
	cmd := fmt.Sprintf("%s -r %s", jqPath, ShellQuote(program))
	return Fragment{
		Command:      cmd,
		InputFormat:  NDJSON,
		OutputFormat: Delimited,
		Columns:      columns,
		Delim:        '\t',
	}, nil
}
