package emit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shellspark/shellspark/plan"
	"github.com/shellspark/shellspark/registry"
)

// AWKOptions carries everything EmitAWK needs about the stream arriving
// into this run that the node chain itself does not encode: whether a
// runtime header map must be built (a genuine csv Parse with a header
// row) or the column order is already known statically (the run was fed
// by a jq @tsv conversion), and the input/output delimiters.
type AWKOptions struct {
	// HeaderBased is true when run[0] is a *plan.Parse(csv, HasHeader)
	// and the program must read NR==1 into a name->index table before
	// processing subsequent records.
	HeaderBased bool
	// Columns is the static column order when !HeaderBased.
	Columns     []string
	InputDelim  byte
	OutputDelim byte
}

// EmitAWK emits a single AWK program for a contiguous run of
// Parse(csv)/ColFilter/Select/GroupBy+Agg nodes (spec §4.4.1). Chained
// ColFilters fuse into one conjunctive predicate; at most one of
// Select or GroupBy+Agg appears in a run, since GroupBy immediately
// requires Agg and nothing else follows an Agg within the same AWK run.
func EmitAWK(tool registry.AWKInfo, run []plan.Node, opts AWKOptions) (Fragment, error) {
	start := 0
	if opts.HeaderBased {
		if len(run) == 0 {
			return Fragment{}, fmt.Errorf("emit: empty awk run")
		}
		if _, ok := run[0].(*plan.Parse); !ok {
			return Fragment{}, fmt.Errorf("emit: header-based awk run must start with Parse")
		}
		start = 1
	}

	fieldRef := func(col string) (string, error) {
		if opts.HeaderBased {
			lit, err := awkStringLiteral(col)
			if err != nil {
				return "", err
			}
			return "$h[" + lit + "]", nil
		}
		pos := indexOf(opts.Columns, col)
		if pos < 0 {
			return "", plan.Errorf(plan.KindColFilter, fmt.Sprintf("unknown column %q", col))
		}
		return fmt.Sprintf("$%d", pos+1), nil
	}

	var predicates []string
	var selectNode *plan.Select
	var groupNode *plan.GroupBy
	var aggNode *plan.Agg

	for _, n := range run[start:] {
		switch v := n.(type) {
		case *plan.ColFilter:
			pred, err := colFilterPredicate(v, fieldRef)
			if err != nil {
				return Fragment{}, err
			}
			predicates = append(predicates, pred)
		case *plan.Select:
			selectNode = v
		case *plan.GroupBy:
			groupNode = v
		case *plan.Agg:
			aggNode = v
		default:
			return Fragment{}, fmt.Errorf("emit: node kind %v not valid in an awk run", n.Kind())
		}
	}

	predicate := strings.Join(predicates, " && ")

	var program strings.Builder
	inputDelim := opts.InputDelim
	if inputDelim == 0 {
		inputDelim = ','
	}
	outputDelim := opts.OutputDelim
	if outputDelim == 0 {
		outputDelim = ','
	}

	inFS, err := awkStringLiteral(string(inputDelim))
	if err != nil {
		return Fragment{}, err
	}
	outFS, err := awkStringLiteral(string(outputDelim))
	if err != nil {
		return Fragment{}, err
	}
	fmt.Fprintf(&program, "BEGIN{FS=%s;OFS=%s}", inFS, outFS)

	if opts.HeaderBased {
		program.WriteString("NR==1{for(i=1;i<=NF;i++)h[$i]=i;next}")
	}

	var columns []string
	var cmdErr error

	switch {
	case groupNode != nil && aggNode != nil:
		columns = append(append([]string(nil), groupNode.Keys...), aggAliases(aggNode.Items)...)
		cmdErr = writeGroupByAgg(&program, groupNode, aggNode, predicate, fieldRef)
	case selectNode != nil:
		columns = selectNode.Columns
		cmdErr = writeSelect(&program, selectNode, predicate, fieldRef)
	default:
		writePassthrough(&program, predicate)
	}
	if cmdErr != nil {
		return Fragment{}, cmdErr
	}

	cmd := fmt.Sprintf("%s %s", tool.Path, ShellQuote(program.String()))

	in := Delimited
	if opts.HeaderBased {
		// headered csv still arrives as raw bytes to awk, but
		// downstream of this fragment the stream is Delimited.
		in = Raw
	}

	return Fragment{
		Command:      cmd,
		InputFormat:  in,
		OutputFormat: Delimited,
		Columns:      columns,
		Delim:        outputDelim,
		TakesFileArg: true,
	}, nil
}

func indexOf(cols []string, col string) int {
	for i, c := range cols {
		if c == col {
			return i
		}
	}
	return -1
}

func colFilterPredicate(c *plan.ColFilter, fieldRef func(string) (string, error)) (string, error) {
	field, err := fieldRef(c.Column)
	if err != nil {
		return "", err
	}
	op, err := awkOperator(c.Op)
	if err != nil {
		return "", err
	}
	val, err := awkValueLiteral(c.Value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s%s%s)", field, op, val), nil
}

func awkOperator(op plan.Operator) (string, error) {
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

func awkValueLiteral(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return awkStringLiteral(t)
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("emit: unsupported ColFilter value type %T", v)
	}
}

// awkStringLiteral renders s as an AWK double-quoted string literal,
// escaping backslash, double-quote, and newline so that any byte
// sequence — including the shell/regex metacharacters the quoting-safety
// property exercises — survives as data rather than breaking out of the
// string.
func awkStringLiteral(s string) (string, error) {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String(), nil
}

// aggExprToAWK resolves an Agg item's Column into an AWK expression: a
// plain column reference, or the tiny `col OP col` / `col OP const`
// arithmetic sub-language resolved per SPEC_FULL §3.1.
func aggExprToAWK(expr string, fieldRef func(string) (string, error)) (string, error) {
	tokens := strings.Fields(expr)
	switch len(tokens) {
	case 1:
		return fieldRef(tokens[0])
	case 3:
		left, err := fieldRef(tokens[0])
		if err != nil {
			return "", err
		}
		op := tokens[1]
		if !strings.Contains("+-*/", op) || len(op) != 1 {
			return "", fmt.Errorf("emit: unsupported aggregation operator %q", op)
		}
		var right string
		if _, ferr := strconv.ParseFloat(tokens[2], 64); ferr == nil {
			right = tokens[2]
		} else {
			right, err = fieldRef(tokens[2])
			if err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("(%s%s%s)", left, op, right), nil
	default:
		return "", fmt.Errorf("emit: aggregation column expression %q is not of the form `col`, `col OP col`, or `col OP const`", expr)
	}
}

func aggAliases(items []plan.AggItem) []string {
	aliases := make([]string, len(items))
	for i, it := range items {
		aliases[i] = it.Alias
	}
	return aliases
}

// groupKeyArrayIndex renders the composite array subscript for the
// current record's group: AWK's built-in SUBSEP joins multiple
// subscript expressions, so `arr[a,b]` is already the multi-key form;
// splitting the stored key string on SUBSEP in the END block recovers
// the individual key values (see writeGroupByAgg).
func groupKeyArrayIndex(keys []string, fieldRef func(string) (string, error)) (string, error) {
	refs := make([]string, len(keys))
	for i, k := range keys {
		r, err := fieldRef(k)
		if err != nil {
			return "", err
		}
		refs[i] = r
	}
	return strings.Join(refs, ","), nil
}

func writeGroupByAgg(w *strings.Builder, g *plan.GroupBy, a *plan.Agg, predicate string, fieldRef func(string) (string, error)) error {
	keyIdx, err := groupKeyArrayIndex(g.Keys, fieldRef)
	if err != nil {
		return err
	}

	var body strings.Builder
	fmt.Fprintf(&body, "_seen[%s]=1;", keyIdx)

	for i, item := range a.Items {
		acc := fmt.Sprintf("_agg%d", i)
		if item.Fn == plan.AggCount && item.Column == "*" {
			fmt.Fprintf(&body, "%s[%s]++;", acc, keyIdx)
			continue
		}

		expr, err := aggExprToAWK(item.Column, fieldRef)
		if err != nil {
			return err
		}

		switch item.Fn {
		case plan.AggCount:
			fmt.Fprintf(&body, "%s[%s]++;", acc, keyIdx)
		case plan.AggSum:
			fmt.Fprintf(&body, "%s[%s]+=(%s)+0;", acc, keyIdx, expr)
		case plan.AggAvg:
			sumArr := acc + "_sum"
			cntArr := acc + "_cnt"
			fmt.Fprintf(&body, "%s[%s]+=(%s)+0;%s[%s]++;", sumArr, keyIdx, expr, cntArr, keyIdx)
		case plan.AggMin:
			fmt.Fprintf(&body, "if(!((%s) in %s)||(%s)<%s[%s])%s[%s]=(%s);", keyIdx, acc, expr, acc, keyIdx, acc, keyIdx, expr)
		case plan.AggMax:
			fmt.Fprintf(&body, "if(!((%s) in %s)||(%s)>%s[%s])%s[%s]=(%s);", keyIdx, acc, expr, acc, keyIdx, acc, keyIdx, expr)
		case plan.AggFirst:
			fmt.Fprintf(&body, "if(!((%s) in %s))%s[%s]=(%s);", keyIdx, acc, acc, keyIdx, expr)
		case plan.AggLast:
			fmt.Fprintf(&body, "%s[%s]=(%s);", acc, keyIdx, expr)
		case plan.AggCountDistinct:
			seen := acc + "_seenval"
			fmt.Fprintf(&body, "if(!(((%s) SUBSEP (%s)) in %s)){%s[(%s) SUBSEP (%s)]=1;%s[%s]++};", keyIdx, expr, seen, seen, keyIdx, expr, acc, keyIdx)
		default:
			return fmt.Errorf("emit: unknown aggregation function %v", item.Fn)
		}
	}

	if predicate != "" {
		fmt.Fprintf(w, "%s{%s}", predicate, body.String())
	} else {
		fmt.Fprintf(w, "{%s}", body.String())
	}

	fmt.Fprintf(w, "END{for(_k in _seen){_n=split(_k,_kp,SUBSEP);_line=_kp[1];")
	for i := 1; i < len(g.Keys); i++ {
		fmt.Fprintf(w, "_line=_line OFS _kp[%d];", i+1)
	}
	for i, item := range a.Items {
		acc := fmt.Sprintf("_agg%d", i)
		switch item.Fn {
		case plan.AggAvg:
			sumArr := acc + "_sum"
			cntArr := acc + "_cnt"
			fmt.Fprintf(w, "_v=(%s[_k]/%s[_k]);_line=_line OFS _v;", sumArr, cntArr)
		case plan.AggMin, plan.AggMax, plan.AggFirst, plan.AggLast:
			// these hold the column value verbatim, not a running numeric
			// total, and that value may be a string (name, timestamp,
			// path); coercing it with +0 would zero it out.
			fmt.Fprintf(w, "_line=_line OFS %s[_k];", acc)
		default:
			fmt.Fprintf(w, "_line=_line OFS (%s[_k]+0);", acc)
		}
	}
	w.WriteString("print _line}}")
	return nil
}

func writeSelect(w *strings.Builder, s *plan.Select, predicate string, fieldRef func(string) (string, error)) error {
	refs := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		r, err := fieldRef(c)
		if err != nil {
			return err
		}
		refs[i] = r
	}
	if predicate != "" {
		fmt.Fprintf(w, "%s{print %s}", predicate, strings.Join(refs, ","))
	} else {
		fmt.Fprintf(w, "{print %s}", strings.Join(refs, ","))
	}
	return nil
}

func writePassthrough(w *strings.Builder, predicate string) {
	if predicate != "" {
		fmt.Fprintf(w, "%s{print}", predicate)
	} else {
		w.WriteString("{print}")
	}
}
