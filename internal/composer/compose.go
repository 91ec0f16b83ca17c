package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	registry "github.com/hanpama/fedgraph/internal/registry"
	schema "github.com/hanpama/fedgraph/internal/schema"
)

type declaration struct {
	service string
	def     *registry.TypeDefinition
}

type composer struct {
	decls      map[string][]declaration
	types      map[string]*Type
	ownership  map[Coordinate]string
	violations []*Violation
}

// Compose merges subgraphs into a Supergraph. It is a pure function of its
// input: the same schemas always yield the same graph and Hash. Every
// violation found is reported in a single *CompositionError.
func Compose(subgraphs []*registry.SubgraphSchema) (*Supergraph, error) {
	sorted := append([]*registry.SubgraphSchema(nil), subgraphs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	c := &composer{
		decls:     make(map[string][]declaration),
		types:     make(map[string]*Type),
		ownership: make(map[Coordinate]string),
	}
	services := make([]*Service, 0, len(sorted))
	for i, sg := range sorted {
		if i > 0 && sorted[i-1].Name == sg.Name {
			c.violations = append(c.violations, violationDuplicateSubgraph(sg.Name))
			continue
		}
		services = append(services, &Service{Name: sg.Name, URL: sg.URL})
		for _, def := range sg.Types {
			c.decls[def.Name] = append(c.decls[def.Name], declaration{service: sg.Name, def: def})
		}
	}

	for _, name := range sortedKeys(c.decls) {
		c.composeType(name, c.decls[name])
	}
	c.checkCycles()

	if len(c.violations) > 0 {
		return nil, &CompositionError{Violations: c.violations}
	}

	g := &Supergraph{
		Types:     c.types,
		Services:  services,
		Ownership: c.ownership,
	}
	if _, ok := c.types["Query"]; ok {
		g.QueryType = "Query"
	}
	if _, ok := c.types["Mutation"]; ok {
		g.MutationType = "Mutation"
	}
	g.Schema = c.buildSchema(g)
	g.Hash = fingerprint(g)
	return g, nil
}

func (c *composer) composeType(name string, decls []declaration) {
	kinds := map[schema.TypeKind]bool{}
	for _, d := range decls {
		kinds[d.def.Kind] = true
	}
	if len(kinds) > 1 {
		var services, described []string
		for _, d := range decls {
			services = append(services, d.service)
			described = append(described, fmt.Sprintf("%s in %q", d.def.Kind, d.service))
		}
		c.violations = append(c.violations, violationTypeKind(name, services, described))
		return
	}

	t := &Type{Name: name, Kind: decls[0].def.Kind}
	c.checkFieldTypes(name, decls)
	switch {
	case registry.IsRootType(name):
		c.composeRoot(t, decls)
	case hasKeys(decls):
		c.composeEntity(t, decls)
	default:
		c.composeValue(t, decls)
	}

	sort.SliceStable(t.Fields, func(i, j int) bool {
		if t.Fields[i].Service != t.Fields[j].Service {
			return t.Fields[i].Service < t.Fields[j].Service
		}
		return t.Fields[i].Name < t.Fields[j].Name
	})
	for _, f := range t.Fields {
		sort.Strings(f.Resolvers)
		c.ownership[Coordinate{Type: name, Field: f.Name}] = f.Service
	}
	c.types[name] = t
}

// composeRoot gives each root field to the single service declaring it.
func (c *composer) composeRoot(t *Type, decls []declaration) {
	for _, d := range decls {
		for _, fd := range d.def.Fields {
			if fd.External {
				continue
			}
			if existing := t.Field(fd.Name); existing != nil {
				c.violations = append(c.violations, violationFieldCollision(t.Name, fd.Name, existing.Service, d.service))
				continue
			}
			t.Fields = append(t.Fields, newField(fd, d.service, false))
		}
	}
}

func (c *composer) composeEntity(t *Type, decls []declaration) {
	var owner *declaration
	var extenders []string
	for i := range decls {
		if !decls[i].def.Extension && owner == nil {
			owner = &decls[i]
			continue
		}
		extenders = append(extenders, decls[i].service)
	}
	if owner == nil {
		c.violations = append(c.violations, violationMissingOwner(t.Name, extenders))
		return
	}
	t.Owner = owner.service
	t.Keys = owner.def.Keys
	t.Extenders = extenders

	keyFields := map[string]bool{}
	for _, key := range t.Keys {
		for _, k := range key {
			keyFields[k] = true
		}
	}

	for _, d := range decls {
		if d.service == owner.service {
			continue
		}
		if len(d.def.Keys) == 0 && d.def.Extension {
			c.violations = append(c.violations, violationKeyMismatch(t.Name, d.service, nil, owner.service, t.Keys))
		}
		for _, key := range d.def.Keys {
			if !containsKey(t.Keys, key) {
				c.violations = append(c.violations, violationKeyMismatch(t.Name, d.service, key, owner.service, t.Keys))
			}
		}
	}

	for _, fd := range owner.def.Fields {
		if !fd.External {
			t.Fields = append(t.Fields, newField(fd, owner.service, false))
		}
	}
	for _, d := range decls {
		if d.service == owner.service {
			continue
		}
		for _, fd := range d.def.Fields {
			if fd.External {
				continue
			}
			existing := t.Field(fd.Name)
			switch {
			case existing == nil:
				t.Fields = append(t.Fields, newField(fd, d.service, true))
			case keyFields[fd.Name]:
				existing.Resolvers = appendUnique(existing.Resolvers, d.service)
			default:
				c.violations = append(c.violations, violationFieldCollision(t.Name, fd.Name, existing.Service, d.service))
			}
		}
	}

	// Services holding a reference can always return its key fields.
	for _, d := range decls {
		for _, fd := range d.def.Fields {
			if !fd.External {
				continue
			}
			existing := t.Field(fd.Name)
			if existing == nil {
				c.violations = append(c.violations, violationUnresolvedExternal(t.Name, fd.Name, d.service))
				continue
			}
			if keyFields[fd.Name] {
				existing.Resolvers = appendUnique(existing.Resolvers, d.service)
			}
		}
	}
}

// composeValue merges types without keys. Any declaring service resolves
// their fields locally.
func (c *composer) composeValue(t *Type, decls []declaration) {
	base := false
	var extenders []string
	for _, d := range decls {
		if d.def.Extension {
			extenders = append(extenders, d.service)
		} else {
			base = true
		}
	}
	if !base {
		c.violations = append(c.violations, violationMissingOwner(t.Name, extenders))
		return
	}
	for _, d := range decls {
		for _, fd := range d.def.Fields {
			if fd.External {
				continue
			}
			if existing := t.Field(fd.Name); existing != nil {
				existing.Resolvers = appendUnique(existing.Resolvers, d.service)
				continue
			}
			t.Fields = append(t.Fields, newField(fd, d.service, false))
		}
	}
}

func (c *composer) checkFieldTypes(typeName string, decls []declaration) {
	type seen struct {
		service string
		typ     string
	}
	first := map[string]seen{}
	for _, d := range decls {
		for _, fd := range d.def.Fields {
			typ := fd.Type.String()
			prev, ok := first[fd.Name]
			if !ok {
				first[fd.Name] = seen{service: d.service, typ: typ}
				continue
			}
			if prev.typ != typ {
				c.violations = append(c.violations, violationFieldType(typeName, fd.Name, prev.service, prev.typ, d.service, typ))
			}
		}
	}
}

func newField(fd *registry.FieldDefinition, service string, extension bool) *Field {
	f := &Field{
		Name:      fd.Name,
		Type:      fd.Type,
		Service:   service,
		Resolvers: []string{service},
		Requires:  fd.Requires,
		Extension: extension,
	}
	for _, a := range fd.Arguments {
		f.Arguments = append(f.Arguments, schema.NewInputValue(a.Name, a.Description, a.Type).SetDefault(a.DefaultValue))
	}
	return f
}

func (c *composer) buildSchema(g *Supergraph) *schema.Schema {
	s := schema.NewSchema("")
	s.SetQueryType(g.QueryType).SetMutationType(g.MutationType)

	for _, name := range sortedKeys(c.types) {
		t := c.types[name]
		if schema.IsBuiltinScalar(name) {
			continue
		}
		decls := c.decls[name]
		st := schema.NewType(name, t.Kind, firstDescription(decls)).SetOwner(t.Owner)
		for _, d := range decls {
			for _, iface := range d.def.Interfaces {
				if !containsString(st.Interfaces, iface) {
					st.AddInterface(iface)
				}
			}
			for _, member := range d.def.PossibleTypes {
				if !containsString(st.PossibleTypes, member) {
					st.AddPossibleType(member)
				}
			}
		}
		switch t.Kind {
		case schema.TypeKindEnum:
			var values []string
			for _, d := range decls {
				values = appendUnique(values, d.def.EnumValues...)
			}
			for _, v := range values {
				st.AddEnumValue(schema.NewEnumValue(v, ""))
			}
		case schema.TypeKindInputObject:
			for _, f := range t.Fields {
				fd := findFieldDefinition(decls, f.Name)
				st.AddInputField(schema.NewInputValue(f.Name, fd.Description, f.Type).SetDefault(fd.DefaultValue))
			}
		case schema.TypeKindObject, schema.TypeKindInterface:
			for _, f := range t.Fields {
				fd := findFieldDefinition(decls, f.Name)
				sf := schema.NewField(f.Name, fd.Description, f.Type)
				if t.Owner != "" || name == g.QueryType || name == g.MutationType {
					sf.SetSource(f.Service)
				} else {
					sf.SetSource(strings.Join(f.Resolvers, ", "))
				}
				sf.Arguments = f.Arguments
				st.AddField(sf)
			}
		}
		s.AddType(st)
	}
	return s
}

// fingerprint hashes everything planning depends on.
func fingerprint(g *Supergraph) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(schema.Render(g.Schema))
	for _, name := range sortedKeys(g.Types) {
		t := g.Types[name]
		for _, key := range t.Keys {
			_, _ = fmt.Fprintf(h, "key %s: %s\n", name, strings.Join(key, " "))
		}
		for _, f := range t.Fields {
			if len(f.Requires) > 0 {
				_, _ = fmt.Fprintf(h, "requires %s.%s: %s\n", name, f.Name, strings.Join(f.Requires, " "))
			}
			_, _ = fmt.Fprintf(h, "resolvers %s.%s: %s\n", name, f.Name, strings.Join(f.Resolvers, " "))
		}
	}
	return h.Sum64()
}

func hasKeys(decls []declaration) bool {
	for _, d := range decls {
		if len(d.def.Keys) > 0 {
			return true
		}
	}
	return false
}

func containsKey(keys [][]string, key []string) bool {
	for _, k := range keys {
		if sameFieldSet(k, key) {
			return true
		}
	}
	return false
}

func sameFieldSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}

func findFieldDefinition(decls []declaration, name string) *registry.FieldDefinition {
	for _, d := range decls {
		if fd := d.def.Field(name); fd != nil && !fd.External {
			return fd
		}
	}
	return &registry.FieldDefinition{Name: name}
}

func firstDescription(decls []declaration) string {
	for _, d := range decls {
		if d.def.Description != "" {
			return d.def.Description
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		if !containsString(list, v) {
			list = append(list, v)
		}
	}
	return list
}

// checkCycles walks @requires edges between fields. A field can only be
// planned once the fields it requires are resolved, so any cycle makes the
// graph unplannable.
func (c *composer) checkCycles() {
	const (
		unvisited = iota
		active
		done
	)
	state := map[Coordinate]int{}
	reported := map[string]bool{}
	var stack []Coordinate

	var visit func(node Coordinate)
	visit = func(node Coordinate) {
		state[node] = active
		stack = append(stack, node)
		for _, next := range c.requiredBy(node) {
			switch state[next] {
			case active:
				c.reportCycle(stack, next, reported)
			case unvisited:
				visit(next)
			}
		}
		stack = stack[:len(stack)-1]
		state[node] = done
	}

	for _, name := range sortedKeys(c.types) {
		for _, f := range c.types[name].Fields {
			node := Coordinate{Type: name, Field: f.Name}
			if len(f.Requires) > 0 && state[node] == unvisited {
				visit(node)
			}
		}
	}
}

func (c *composer) requiredBy(node Coordinate) []Coordinate {
	t := c.types[node.Type]
	f := t.Field(node.Field)
	if f == nil {
		return nil
	}
	out := make([]Coordinate, 0, len(f.Requires))
	for _, r := range f.Requires {
		if t.Field(r) != nil {
			out = append(out, Coordinate{Type: node.Type, Field: r})
		}
	}
	return out
}

func (c *composer) reportCycle(stack []Coordinate, closing Coordinate, reported map[string]bool) {
	start := 0
	for i, n := range stack {
		if n == closing {
			start = i
			break
		}
	}
	cycle := append([]Coordinate(nil), stack[start:]...)

	// Rotate so the same cycle found from another entry point is keyed
	// identically.
	lowest := 0
	for i := range cycle {
		if cycle[i].String() < cycle[lowest].String() {
			lowest = i
		}
	}
	cycle = append(cycle[lowest:], cycle[:lowest]...)
	parts := make([]string, len(cycle))
	for i, n := range cycle {
		parts[i] = n.String()
	}
	key := strings.Join(parts, ",")
	if reported[key] {
		return
	}
	reported[key] = true

	cycle = append(cycle, cycle[0])
	services := make([]string, len(cycle))
	for i, n := range cycle {
		services[i] = c.ownership[n]
	}
	c.violations = append(c.violations, violationCycle(cycle, services))
}
