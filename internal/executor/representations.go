package executor

import (
	"encoding/json"
	"slices"

	merger "github.com/hanpama/fedgraph/internal/merger"
	planner "github.com/hanpama/fedgraph/internal/planner"
	result "github.com/hanpama/fedgraph/internal/result"
	subgraph "github.com/hanpama/fedgraph/internal/subgraph"
)

const typenameField = "__typename"

type location struct {
	path   result.Path
	object map[string]any
}

// locations expands the step's path template against merged data. Lists
// are flattened; null and missing parents are skipped.
func locations(step *planner.Step, arena *merger.Arena) []location {
	var out []location
	walk(arena.Data(), step.Path, result.Path{}, &out)
	return out
}

func walk(v any, tmpl []string, at result.Path, out *[]location) {
	switch t := v.(type) {
	case []any:
		if len(tmpl) > 0 && tmpl[0] == planner.ListMarker {
			tmpl = tmpl[1:]
		}
		for i, item := range t {
			walk(item, tmpl, at.Append(i), out)
		}
	case map[string]any:
		if len(tmpl) == 0 {
			*out = append(*out, location{path: at, object: t})
			return
		}
		if tmpl[0] == planner.ListMarker {
			return
		}
		walk(t[tmpl[0]], tmpl[1:], at.Append(tmpl[0]), out)
	}
}

// representations builds one representation per distinct entity. Entities
// that appear at several locations share a representation. A location is
// skipped when a key field is null or missing, or a required field is
// missing because the entity providing it was not found; the fields the
// step would add there stay null. Skipped locations are returned.
func representations(step *planner.Step, arena *merger.Arena) ([]subgraph.Representation, []result.Path) {
	var reps []subgraph.Representation
	var skipped []result.Path
	index := map[string]int{}
	for _, loc := range locations(step, arena) {
		value, ok := representation(step, loc.object)
		if !ok {
			skipped = append(skipped, loc.path)
			continue
		}
		// encoding/json sorts map keys, which makes the encoding canonical.
		raw, err := json.Marshal(value)
		if err != nil {
			reps = append(reps, subgraph.Representation{Value: value, Paths: []result.Path{loc.path}})
			continue
		}
		if i, ok := index[string(raw)]; ok {
			reps[i].Paths = append(reps[i].Paths, loc.path)
			continue
		}
		index[string(raw)] = len(reps)
		reps = append(reps, subgraph.Representation{Value: value, Paths: []result.Path{loc.path}})
	}
	return reps, skipped
}

func representation(step *planner.Step, object map[string]any) (map[string]any, bool) {
	value := map[string]any{typenameField: step.TypeName}
	for _, f := range step.RepresentationFields() {
		v, ok := object[step.InputKey(f)]
		if !ok || (v == nil && slices.Contains(step.KeyFields, f)) {
			return nil, false
		}
		value[f] = v
	}
	return value, true
}
