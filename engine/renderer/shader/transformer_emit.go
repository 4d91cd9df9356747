package shader

import (
	"fmt"
	"sort"
	"strings"
)

// edit replaces the source range [start, end) with text. Insertions have start == end.
type edit struct {
	start, end int
	text       string
}

// applyEdits applies non-overlapping edits back to front so earlier offsets stay valid, then
// appends tail.
func applyEdits(source string, edits []edit, tail string) string {
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	out := source
	for _, e := range edits {
		out = out[:e.start] + e.text + out[e.end:]
	}
	if tail == "" {
		return out
	}
	return strings.TrimRight(out, "\n") + "\n\n" + tail
}

// privateDecls turns every table uniform declaration of the stage into a module-scope private
// variable of the same name and type.
func privateDecls(ps *parsedStage) []edit {
	edits := make([]edit, 0, len(ps.table))
	for _, td := range ps.table {
		edits = append(edits, edit{
			start: td.decl.start,
			end:   td.decl.end,
			text:  fmt.Sprintf("var<private> %s: %s;", td.decl.name, td.decl.typeName),
		})
	}
	return edits
}

// appendParam inserts a parameter at the end of the entry function's parameter list.
func appendParam(ps *parsedStage, param string) edit {
	inner := strings.TrimSpace(ps.masked[ps.entry.paramsOpen+1 : ps.entry.paramsClose])
	switch {
	case inner == "":
	case strings.HasSuffix(inner, ","):
		param = " " + param
	default:
		param = ", " + param
	}
	pos := ps.entry.paramsOpen + 1 + len(strings.TrimRight(ps.masked[ps.entry.paramsOpen+1:ps.entry.paramsClose], " \t\r\n"))
	return edit{start: pos, end: pos, text: param}
}

// bodyPrologue inserts a statement as the first line of the entry function body.
func bodyPrologue(ps *parsedStage, stmt string) edit {
	pos := ps.entry.bodyOpen + 1
	return edit{start: pos, end: pos, text: "\n    " + stmt}
}

// structField inserts a field as the first member of a struct.
func structField(st parsedStruct, field string) edit {
	return edit{start: st.bodyStart, end: st.bodyStart, text: "\n    " + field + ","}
}

// idVarying is the declaration of the flat instance id passed from vertex to fragment.
func (t *transformer) idVarying(location int) string {
	return fmt.Sprintf("@location(%d) @interpolate(flat) %s: u32", location, t.name("instance_id"))
}

// tableBinding is the declaration of the instance table texture.
func (t *transformer) tableBinding(group int) string {
	return fmt.Sprintf("@group(%d) @binding(0) var %s: texture_2d<f32>;\n", group, t.name("instance_table"))
}

// fetchFunction generates the function that loads a stage's table uniforms from row `row` of the
// instance table into their private variables.
func (t *transformer) fetchFunction(ps *parsedStage, layout UniformLayout) string {
	table := t.name("instance_table")
	rowVar := t.name("row")
	load := func(col int) string {
		return fmt.Sprintf("textureLoad(%s, vec2i(%d, %s), 0)", table, col, rowVar)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "fn %s(row: u32) {\n", t.name("fetch_instance"))
	fmt.Fprintf(&sb, "    let %s = i32(row);\n", rowVar)
	for _, td := range ps.table {
		d, _ := layout.Lookup(td.decl.name)
		col, comp := d.Texel(), d.Component()
		var expr string
		switch d.Kind {
		case UniformKindMat4:
			expr = fmt.Sprintf("%s(%s, %s, %s, %s)", td.decl.typeName, load(col), load(col+1), load(col+2), load(col+3))
		case UniformKindVec4:
			expr = load(col)
		case UniformKindVec3, UniformKindVec2, UniformKindFloat:
			expr = load(col) + "." + "xyzw"[comp:comp+d.Kind.Floats()]
		case UniformKindInt:
			expr = fmt.Sprintf("bitcast<i32>(%s.%c)", load(col), "xyzw"[comp])
		case UniformKindFlag:
			expr = fmt.Sprintf("%s.%c != 0.0", load(col), "xyzw"[comp])
		}
		fmt.Fprintf(&sb, "    %s = %s;\n", td.decl.name, expr)
	}
	sb.WriteString("}\n")
	return sb.String()
}

// tagFunction generates the helper that stamps the instance id onto a vertex output value.
func (t *transformer) tagFunction(outputType string) string {
	id := t.name("instance_id")
	return fmt.Sprintf("fn %s(out: %s, id: u32) -> %s {\n    var tagged = out;\n    tagged.%s = id;\n    return tagged;\n}\n",
		t.name("tag_instance"), outputType, outputType, id)
}

// emitVertex rewrites the vertex stage: table uniforms become private, the instance id is read
// from its own vertex buffer, the table row is fetched on entry and, when the fragment stage
// needs it, the id is forwarded through the output struct.
func (t *transformer) emitVertex(ps *parsedStage, layout UniformLayout, tableGroup int, forward *parsedStruct, varyingLoc int) string {
	id := t.name("instance_id")
	edits := privateDecls(ps)
	edits = append(edits, appendParam(ps, fmt.Sprintf("@location(%d) %s: u32", t.instanceIDLocation, id)))

	var tail strings.Builder
	if len(ps.table) > 0 {
		edits = append(edits, bodyPrologue(ps, fmt.Sprintf("%s(%s);", t.name("fetch_instance"), id)))
		tail.WriteString(t.tableBinding(tableGroup))
		tail.WriteString("\n")
		tail.WriteString(t.fetchFunction(ps, layout))
	}
	if forward != nil {
		edits = append(edits, structField(*forward, t.idVarying(varyingLoc)))
		for _, r := range parseReturns(ps.masked, ps.entry) {
			edits = append(edits,
				edit{start: r.start, end: r.start, text: t.name("tag_instance") + "("},
				edit{start: r.end, end: r.end, text: ", " + id + ")"},
			)
		}
		if tail.Len() > 0 {
			tail.WriteString("\n")
		}
		tail.WriteString(t.tagFunction(forward.name))
	}
	return applyEdits(ps.source, edits, tail.String())
}

// emitFragment rewrites the fragment stage: table uniforms become private and, when there are
// any, the flat instance id input selects the table row fetched on entry.
func (t *transformer) emitFragment(ps *parsedStage, layout UniformLayout, tableGroup, varyingLoc int) string {
	edits := privateDecls(ps)
	if len(ps.table) == 0 {
		return applyEdits(ps.source, edits, "")
	}

	id := t.name("instance_id")
	idExpr := id
	inserted := false
	for _, p := range ps.entry.params {
		if p.isBuiltin || p.location >= 0 {
			continue
		}
		if st, ok := findStruct(ps.structs, p.typeName); ok {
			edits = append(edits, structField(st, t.idVarying(varyingLoc)))
			idExpr = p.name + "." + id
			inserted = true
			break
		}
	}
	if !inserted {
		edits = append(edits, appendParam(ps, t.idVarying(varyingLoc)))
	}
	edits = append(edits, bodyPrologue(ps, fmt.Sprintf("%s(%s);", t.name("fetch_instance"), idExpr)))

	tail := t.tableBinding(tableGroup) + "\n" + t.fetchFunction(ps, layout)
	return applyEdits(ps.source, edits, tail)
}
