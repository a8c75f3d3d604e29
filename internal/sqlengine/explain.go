package sqlengine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/catalog"
)

// ExplainLine is one (action, detail) pair of an EXPLAIN PRIVACY report.
type ExplainLine struct {
	Action string
	Detail string
}

// Explain reports how a table's rows are physically partitioned and which
// indices back that partitioning, followed by the privacy warnings
// explain.cc's (commented-out but spec-carried) ClassifyAndWarnAboutSharding
// and WarningsFromSchema compute — one table if stmt.TableName is set,
// every table otherwise. Mirrors ExplainContext::Explain(const
// sqlast::Insert&)'s owner/index walk; the recursive dependent walk
// (RecurseInsert/RecurseDelete) is flattened here since Go has no
// equivalent dataflow-view layer to distinguish from a plain table scan.
func (e *Engine) Explain(stmt *ast.ExplainStmt) ([]ExplainLine, error) {
	refs := e.referencedIndexNames()
	if stmt.TableName != "" {
		tbl, err := e.Catalog.GetTable(stmt.TableName)
		if err != nil {
			return nil, err
		}
		out := e.explainTable(tbl)
		out = append(out, e.explainWarnings(tbl, refs)...)
		return out, nil
	}
	var out []ExplainLine
	for _, tbl := range e.Catalog.Tables() {
		out = append(out, e.explainTable(tbl)...)
		out = append(out, e.explainWarnings(tbl, refs)...)
	}
	return out, nil
}

func (e *Engine) explainTable(tbl *catalog.Table) []ExplainLine {
	var out []ExplainLine
	for _, desc := range tbl.Owners {
		out = append(out, explainDescriptor(tbl.Name, desc)...)
	}
	for _, desc := range tbl.Accessors {
		out = append(out, explainDescriptor(tbl.Name, desc)...)
	}
	if len(tbl.Owners) == 0 && len(tbl.Accessors) == 0 && !tbl.IsDataSubject {
		out = append(out, ExplainLine{Action: "INSERT [default]", Detail: tbl.Name})
	}
	for _, idx := range e.Catalog.PhysicalIndicesOn(tbl.Name) {
		out = append(out, ExplainLine{
			Action: "INDEX UPDATE",
			Detail: fmt.Sprintf("%s ON %s(%s)", idx.Name, tbl.Name, idx.Column),
		})
	}
	if e.canFastReplace(tbl) {
		out = append(out, ExplainLine{Action: "FAST REPLACE", Detail: tbl.Name})
	} else {
		out = append(out, ExplainLine{Action: "SLOW REPLACE", Detail: tbl.Name + " (delete then insert)"})
	}
	return out
}

func explainDescriptor(table string, desc *catalog.ShardDescriptor) []ExplainLine {
	switch desc.Type {
	case catalog.Direct:
		return []ExplainLine{{
			Action: fmt.Sprintf("INSERT [%s#%s]", desc.ShardKind, desc.Direct.Column),
			Detail: table,
		}}
	case catalog.Transitive:
		idxName := "pk lookup"
		if desc.Transitive.Index != nil {
			idxName = desc.Transitive.Index.Name
		}
		return []ExplainLine{{
			Action: fmt.Sprintf("INSERT [%s#%s]", desc.ShardKind, desc.Transitive.Column),
			Detail: fmt.Sprintf("%s USING %s", table, idxName),
		}}
	case catalog.Variable:
		return []ExplainLine{{
			Action: fmt.Sprintf("INSERT [%s#%s]", desc.ShardKind, desc.Variable.OriginColumn),
			Detail: fmt.Sprintf("%s USING %s (falls back to default shard until resolved)", table, desc.Variable.Index.Name),
		}}
	default:
		return nil
	}
}

// suspiciousColumnPattern flags column names that look like they identify a
// data subject even though the table carries no sharding annotation.
// Mirrors explain.cc's SUSPICIOUS_COLUMN_NAME_INDICATORS regex, extended
// with the ssn/phone/address terms SPEC_FULL's warning catalogue adds.
var suspiciousColumnPattern = regexp.MustCompile(`(?i)email|password|ssn|phone|address|(first|last|middle|user)[-_]?name|gender`)

// descriptorChain walks a Variable descriptor's backing index through its
// Next links, collecting the table name each hop resolves through — the
// Go-shaped analogue of explain.cc's PrintTransitivityChain varown_chain
// accumulator, since this model resolves a chained Variable ownership via
// composed JOINED indices rather than a recursive ShardingInformation walk.
func descriptorChain(idx *catalog.IndexDescriptor) []string {
	var chain []string
	for idx != nil {
		chain = append(chain, idx.Table)
		if idx.Kind != catalog.JoinedIndex {
			break
		}
		idx = idx.Next
	}
	return chain
}

// descriptorNullable reports whether desc's resolving column can hold NULL,
// meaning a row down that path can silently fall back to an unsharded
// table. Mirrors explain.cc's IsNullableSharding, which reads the
// nullability of whichever table/column backs the resolution — the origin
// table for a varowned descriptor, the table being explained otherwise.
func (e *Engine) descriptorNullable(tbl *catalog.Table, desc *catalog.ShardDescriptor) bool {
	switch desc.Type {
	case catalog.Direct:
		return tbl.Columns[desc.Direct.ColumnIndex].Nullable
	case catalog.Transitive:
		return tbl.Columns[desc.Transitive.ColumnIndex].Nullable
	case catalog.Variable:
		origin, err := e.Catalog.GetTable(desc.Variable.OriginTable)
		if err != nil {
			return false
		}
		return origin.Columns[desc.Variable.OriginIdx].Nullable
	default:
		return false
	}
}

// referencedIndexNames collects the name of every IndexDescriptor any
// table's Owners/Accessors currently resolve through (following JOINED
// Next chains), so explainWarnings can flag a physically materialized
// index nothing resolves through anymore — WarnOrphanIndex.
func (e *Engine) referencedIndexNames() map[string]bool {
	refs := make(map[string]bool)
	mark := func(idx *catalog.IndexDescriptor) {
		for idx != nil {
			refs[idx.Name] = true
			if idx.Kind != catalog.JoinedIndex {
				break
			}
			idx = idx.Next
		}
	}
	for _, t := range e.Catalog.Tables() {
		for _, descs := range [][]*catalog.ShardDescriptor{t.Owners, t.Accessors} {
			for _, d := range descs {
				switch d.Type {
				case catalog.Transitive:
					if d.Transitive.Index != nil {
						mark(d.Transitive.Index)
					}
				case catalog.Variable:
					if d.Variable.Index != nil {
						mark(d.Variable.Index)
					}
				}
			}
		}
	}
	return refs
}

// explainWarnings implements §4.4's EXPLAIN PRIVACY warning catalogue:
// chained variable ownership, multiple variable ownerships, all-nullable
// ownership, unsharded PII-shaped columns, and orphaned indices. Mirrors
// explain.cc's ClassifyAndWarnAboutSharding/WarningsFromSchema, restored
// from the original despite being commented out of the teacher's own
// rendition — SPEC_FULL §9 carries all five forward as mandatory.
func (e *Engine) explainWarnings(tbl *catalog.Table, refs map[string]bool) []ExplainLine {
	var out []ExplainLine

	var varownChains [][]string
	allNullable := len(tbl.Owners) > 0
	for _, desc := range tbl.Owners {
		if !e.descriptorNullable(tbl, desc) {
			allNullable = false
		}
		if desc.Type == catalog.Variable && desc.Variable.Index != nil {
			varownChains = append(varownChains, descriptorChain(desc.Variable.Index))
		}
	}

	longest := 0
	var longestChain []string
	for _, chain := range varownChains {
		if len(chain) > longest {
			longest = len(chain)
			longestChain = chain
		}
	}
	if longest > 1 {
		out = append(out, ExplainLine{
			Action: "[SEVERE]",
			Detail: fmt.Sprintf("%s is variably sharded %d times in sequence via %s; this is likely unintended, check your OWNS annotations",
				tbl.Name, longest, strings.Join(longestChain, "*")),
		})
	}
	if len(varownChains) > 1 {
		heads := make([]string, len(varownChains))
		for i, c := range varownChains {
			heads[i] = c[0]
		}
		out = append(out, ExplainLine{
			Action: "[WARNING]",
			Detail: fmt.Sprintf("%s is variably owned in multiple ways (via %s); this may not be desired", tbl.Name, strings.Join(heads, " and ")),
		})
	} else if len(varownChains) == 1 {
		out = append(out, ExplainLine{
			Action: "[INFO]",
			Detail: fmt.Sprintf("%s is variably owned (via %s)", tbl.Name, varownChains[0][0]),
		})
	}
	if allNullable {
		out = append(out, ExplainLine{
			Action: "[WARNING]",
			Detail: fmt.Sprintf("%s is sharded, but every sharding path is nullable; NULL rows fall into the default table and could be a source of non-compliance", tbl.Name),
		})
	}
	if len(tbl.Owners) == 0 && len(tbl.Accessors) == 0 && !tbl.IsDataSubject {
		if names := suspiciousColumns(tbl); len(names) > 0 {
			plural := "s"
			if len(names) == 1 {
				plural = ""
			}
			out = append(out, ExplainLine{
				Action: "[WARNING]",
				Detail: fmt.Sprintf("column%s %s on unsharded table %s look%s like a data subject identifier; review your annotations",
					plural, strings.Join(names, ", "), tbl.Name, pluralVerb(len(names))),
			})
		}
	}
	for _, idx := range e.Catalog.PhysicalIndicesOn(tbl.Name) {
		if idx.Explicit || refs[idx.Name] {
			continue
		}
		out = append(out, ExplainLine{
			Action: "[WARNING]",
			Detail: fmt.Sprintf("index %s on %s(%s) has no current owner; it may be left over from a dropped sharding path", idx.Name, tbl.Name, idx.Column),
		})
	}
	return out
}

func suspiciousColumns(tbl *catalog.Table) []string {
	var out []string
	for _, c := range tbl.Columns {
		if suspiciousColumnPattern.MatchString(c.Name) {
			out = append(out, c.Name)
		}
	}
	return out
}

func pluralVerb(n int) string {
	if n == 1 {
		return "s"
	}
	return ""
}
