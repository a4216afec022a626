package plan

// ValidateShape checks the structural invariants that can be decided
// from the node chain alone, independent of the tool registry: exactly
// one Source at the leaf, Agg iff immediately preceded by GroupBy,
// ColFilter/Select/GroupBy/Agg require a preceding Parse (csv requires
// HasHeader), and Parallel appears at most once.
//
// The "Parallel excludes global-state operators" rule is checked
// separately by ValidateParallel, since later builder calls may still
// add a global-state node above an already-placed Parallel (spec §4.2).
func ValidateShape(root Node) error {
	chain := Chain(root)
	if len(chain) == 0 {
		return Errorf(KindSource, "plan must have a Source")
	}
	if chain[0].Kind() != KindSource {
		return Errorf(chain[0].Kind(), "plan must begin with a Source")
	}

	sawParse := false
	parallelCount := 0
	for i, n := range chain {
		switch v := n.(type) {
		case *Source:
			if i != 0 {
				return Errorf(KindSource, "Source must be the sole leaf")
			}
		case *Parse:
			// csv without a header has no column names to bind; not an
			// error here, but field-aware nodes downstream fail the
			// "requires Parse with header" check below.
			sawParse = true
		case *LineFilter:
			// no field awareness required; always legal after Source
			// or Parse.
		case *ColFilter:
			if !sawParse {
				return Errorf(KindColFilter, "requires a preceding Parse")
			}
			if err := requireHeaderedParse(chain, i); err != nil {
				return err
			}
		case *Select:
			if !sawParse {
				return Errorf(KindSelect, "requires a preceding Parse")
			}
			if err := requireHeaderedParse(chain, i); err != nil {
				return err
			}
		case *GroupBy:
			if !sawParse {
				return Errorf(KindGroupBy, "requires a preceding Parse")
			}
			if err := requireHeaderedParse(chain, i); err != nil {
				return err
			}
			if i+1 >= len(chain) || chain[i+1].Kind() != KindAgg {
				return Errorf(KindGroupBy, "must be immediately followed by Agg")
			}
		case *Agg:
			if i == 0 || chain[i-1].Kind() != KindGroupBy {
				return Errorf(KindAgg, "must immediately follow GroupBy")
			}
			for _, item := range v.Items {
				if item.Column == "*" && item.Fn != AggCount {
					return Errorf(KindAgg, `column "*" is only valid with fn=count`)
				}
			}
		case *Parallel:
			parallelCount++
			if parallelCount > 1 {
				return Errorf(KindParallel, "appears at most once")
			}
		}
	}
	return nil
}

// requireHeaderedParse walks back from index i to the nearest Parse and
// requires it to be csv-with-header, or json (json records are
// field-oriented by construction, so HasHeader does not apply to them).
func requireHeaderedParse(chain []Node, i int) error {
	for j := i - 1; j >= 0; j-- {
		if p, ok := chain[j].(*Parse); ok {
			if p.Format == FormatCSV && !p.HasHeader {
				return Errorf(chain[i].Kind(), "csv Parse must have has_header=true for field-aware operations")
			}
			if p.Format == FormatText {
				return Errorf(chain[i].Kind(), "text Parse has no fields for field-aware operations")
			}
			return nil
		}
	}
	return Errorf(chain[i].Kind(), "requires a preceding Parse")
}

// isGlobalState reports whether k is an operator that cannot be
// distributed across parallel workers without a final reduction step.
func isGlobalState(k Kind) bool {
	switch k {
	case KindSort, KindDistinct, KindGroupBy, KindAgg, KindLimit:
		return true
	default:
		return false
	}
}

// ValidateParallel enforces that a plan containing Parallel has no
// global-state operator anywhere in the chain. Run at compile time, not
// build time, per spec §4.2.
func ValidateParallel(root Node) error {
	chain := Chain(root)
	hasParallel := false
	for _, n := range chain {
		if n.Kind() == KindParallel {
			hasParallel = true
			break
		}
	}
	if !hasParallel {
		return nil
	}
	for _, n := range chain {
		if isGlobalState(n.Kind()) {
			return Errorf(n.Kind(), "Parallel is incompatible with Sort/Distinct/GroupBy/Agg/Limit")
		}
	}
	return nil
}

// ResolveColumns walks the chain up to (but not including) index i and
// returns the column names in scope there: header (the csv header names,
// supplied by the caller) unless a Select before i replaced them, in
// which case the columns of the last such Select. json Parse has no
// static header, so field-aware validation against json sources is left
// to the jq emitter at emission time (spec §7: "reference to an unknown
// column... detected when column->index emission is requested").
func ResolveColumns(chain []Node, i int, header []string) []string {
	cols := append([]string(nil), header...)
	for j := 0; j < i; j++ {
		if sel, ok := chain[j].(*Select); ok {
			cols = sel.Columns
		}
	}
	return cols
}
