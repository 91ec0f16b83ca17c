package planner

import (
	"fmt"
	"sort"
	"strings"

	composer "github.com/hanpama/fedgraph/internal/composer"
	query "github.com/hanpama/fedgraph/internal/query"
	schema "github.com/hanpama/fedgraph/internal/schema"
)

const typenameField = "__typename"

type planner struct {
	g        *composer.Supergraph
	steps    []*Step // indexed by id
	entities map[string]*Step
}

// Plan builds the execution plan for root against g. The result depends
// only on its inputs: planning the same selection against the same
// supergraph always yields an identical plan.
func Plan(root *query.Node, g *composer.Supergraph) (*ExecutionPlan, error) {
	op := root.Name
	if op == "" {
		op = query.OperationQuery
	}
	rootType := g.RootType(op)
	if rootType == nil || (op != query.OperationQuery && op != query.OperationMutation) {
		return nil, errUnsupportedOperation(op)
	}

	p := &planner{g: g, entities: make(map[string]*Step)}
	shape, err := p.shape(rootType, root.Children)
	if err != nil {
		return nil, err
	}

	if op == query.OperationMutation {
		err = p.planMutation(rootType, root.Children)
	} else {
		err = p.planQuery(rootType, root.Children)
	}
	if err != nil {
		return nil, err
	}
	if err := p.assignWaves(); err != nil {
		return nil, err
	}

	plan := &ExecutionPlan{Operation: op, Shape: shape}
	plan.Steps = append(plan.Steps, p.steps...)
	sort.SliceStable(plan.Steps, func(i, j int) bool {
		if plan.Steps[i].Wave != plan.Steps[j].Wave {
			return plan.Steps[i].Wave < plan.Steps[j].Wave
		}
		return plan.Steps[i].ID < plan.Steps[j].ID
	})
	for _, s := range plan.Steps {
		for len(plan.Waves) <= s.Wave {
			plan.Waves = append(plan.Waves, nil)
		}
		plan.Waves[s.Wave] = append(plan.Waves[s.Wave], s.ID)
	}
	return plan, nil
}

// shape validates the selection against the supergraph and annotates it
// with composed types.
func (p *planner) shape(t *composer.Type, nodes []*query.Node) ([]*ShapeField, error) {
	out := make([]*ShapeField, 0, len(nodes))
	for _, n := range nodes {
		if n.Name == typenameField {
			if len(n.Children) > 0 {
				return nil, errLeafSelection(t.Name, n.Name, "String!")
			}
			out = append(out, &ShapeField{
				ResponseKey: n.ResponseKey(),
				Name:        n.Name,
				Type:        schema.NonNullType(schema.NamedType("String")),
				Typename:    t.Name,
			})
			continue
		}
		f := t.Field(n.Name)
		if f == nil {
			return nil, errUnknownField(t.Name, n.Name)
		}
		if err := checkArguments(t, f, n); err != nil {
			return nil, err
		}

		sf := &ShapeField{ResponseKey: n.ResponseKey(), Name: n.Name, Type: f.Type}
		child := p.g.Types[f.Type.GetNamedType()]
		switch {
		case child != nil && child.IsComposite():
			if len(n.Children) == 0 {
				return nil, errSelectionRequired(t.Name, f.Name, f.Type.String())
			}
			children, err := p.shape(child, n.Children)
			if err != nil {
				return nil, err
			}
			sf.Children = children
		case len(n.Children) > 0:
			return nil, errLeafSelection(t.Name, f.Name, f.Type.String())
		}
		out = append(out, sf)
	}
	return out, nil
}

func checkArguments(t *composer.Type, f *composer.Field, n *query.Node) error {
	for _, name := range n.ArgumentNames() {
		if argument(f, name) == nil {
			return errUnknownArgument(t.Name, f.Name, name)
		}
	}
	for _, a := range f.Arguments {
		if _, ok := n.Arguments[a.Name]; !ok && a.Type.IsNonNull() && a.DefaultValue == nil {
			return errMissingArgument(t.Name, f.Name, a.Name, a.Type.String())
		}
	}
	return nil
}

// planQuery groups root fields by owning service, one step per service.
func (p *planner) planQuery(rootType *composer.Type, nodes []*query.Node) error {
	groups := map[string][]*query.Node{}
	var services []string
	for _, n := range nodes {
		if n.Name == typenameField {
			continue
		}
		svc := rootType.Field(n.Name).Service
		if _, ok := groups[svc]; !ok {
			services = append(services, svc)
		}
		groups[svc] = append(groups[svc], n)
	}
	sort.Strings(services)

	steps := make([]*Step, len(services))
	for i, svc := range services {
		steps[i] = p.newStep(KindRoot, svc, rootType.Name, nil)
	}
	for i, svc := range services {
		if err := p.planFields(steps[i], rootType, groups[svc], nil, &steps[i].Selection); err != nil {
			return err
		}
	}
	return nil
}

// planMutation keeps mutation fields in request order. Consecutive fields
// of one service share a step and each step runs after the previous one.
func (p *planner) planMutation(rootType *composer.Type, nodes []*query.Node) error {
	var prev *Step
	for _, n := range nodes {
		if n.Name == typenameField {
			continue
		}
		svc := rootType.Field(n.Name).Service
		step := prev
		if step == nil || step.Service != svc {
			step = p.newStep(KindRoot, svc, rootType.Name, nil)
			if prev != nil {
				step.DependsOn = append(step.DependsOn, prev.ID)
			}
			prev = step
		}
		if err := p.planFields(step, rootType, []*query.Node{n}, nil, &step.Selection); err != nil {
			return err
		}
	}
	return nil
}

// planFields adds nodes selected on t at path to sel, which belongs to
// step. Fields step cannot resolve move into entity steps.
func (p *planner) planFields(step *Step, t *composer.Type, nodes []*query.Node, path []string, sel *[]*Field) error {
	taken := takenKeys(nodes)
	for _, n := range nodes {
		if n.Name == typenameField {
			*sel = append(*sel, &Field{Name: n.Name, Alias: n.Alias})
			continue
		}
		f := t.Field(n.Name)
		target, targetSel := step, sel
		if !f.ResolvableBy(step.Service) {
			es, err := p.dispatch(step, t, f, path, sel, taken, nil)
			if err != nil {
				return err
			}
			target, targetSel = es, &es.Selection
		}

		field := &Field{Name: f.Name, Alias: n.Alias, Arguments: arguments(f, n)}
		if len(n.Children) == 0 && len(field.Arguments) == 0 && hasLeaf(*targetSel, field) {
			continue
		}
		if len(n.Children) > 0 {
			child := p.g.Types[f.Type.GetNamedType()]
			childPath := appendPath(path, n.ResponseKey(), f.Type)
			if err := p.planFields(target, child, n.Children, childPath, &field.Selection); err != nil {
				return err
			}
		}
		*targetSel = append(*targetSel, field)
	}
	return nil
}

// dispatch returns the entity step fetching f for the objects at path,
// creating it when needed. Key fields are added to sel so the parent step
// returns everything the representations need; taken holds the client's
// response keys at this level. A step that depends on avoid is never
// reused.
func (p *planner) dispatch(parent *Step, t *composer.Type, f *composer.Field, path []string, sel *[]*Field, taken map[string]bool, avoid *Step) (*Step, error) {
	if !t.IsEntity() {
		return nil, errUnresolvable(t.Name, f.Name, f.Service, parent.Service)
	}
	key := sharedKey(t, parent.Service, f.Service)
	if key == nil {
		return nil, errNoSharedKey(t.Name, f.Name, parent.Service, f.Service)
	}
	es := p.entityStep(parent, t, path, f.Service, key, avoid)
	for _, k := range key {
		var rk string
		*sel, rk = ensureField(*sel, k, taken)
		es.setInput(k, rk)
	}
	for _, r := range f.Requires {
		if err := p.require(parent, t, path, sel, taken, es, r); err != nil {
			return nil, err
		}
	}
	return es, nil
}

// require makes field r of the objects at path available in target's
// representations.
func (p *planner) require(parent *Step, t *composer.Type, path []string, sel *[]*Field, taken map[string]bool, target *Step, r string) error {
	rf := t.Field(r)
	if rf.ResolvableBy(target.Service) {
		return nil
	}
	target.RequiredFields = appendUnique(target.RequiredFields, r)
	var rk string
	if rf.ResolvableBy(parent.Service) {
		*sel, rk = ensureField(*sel, r, taken)
		target.setInput(r, rk)
		return nil
	}
	provider, err := p.dispatch(parent, t, rf, path, sel, taken, target)
	if err != nil {
		return err
	}
	provider.Selection, rk = ensureField(provider.Selection, r, taken)
	target.setInput(r, rk)
	target.DependsOn = appendUniqueInt(target.DependsOn, provider.ID)
	return nil
}

func (p *planner) entityStep(parent *Step, t *composer.Type, path []string, service string, key []string, avoid *Step) *Step {
	for variant := 0; ; variant++ {
		id := fmt.Sprintf("%d|%s|%s|%d", parent.ID, strings.Join(path, "."), service, variant)
		if es, ok := p.entities[id]; ok {
			if p.dependsOn(es, avoidID(avoid)) {
				continue
			}
			return es
		}
		es := p.newStep(KindEntity, service, t.Name, path)
		es.KeyFields = key
		es.DependsOn = []int{parent.ID}
		p.entities[id] = es
		return es
	}
}

// dependsOn reports whether s transitively depends on the step with id.
func (p *planner) dependsOn(s *Step, id int) bool {
	if id < 0 {
		return false
	}
	if s.ID == id {
		return true
	}
	for _, d := range s.DependsOn {
		if p.dependsOn(p.steps[d], id) {
			return true
		}
	}
	return false
}

func avoidID(s *Step) int {
	if s == nil {
		return -1
	}
	return s.ID
}

func (p *planner) newStep(kind StepKind, service, typeName string, path []string) *Step {
	s := &Step{
		ID:       len(p.steps),
		Service:  service,
		Kind:     kind,
		TypeName: typeName,
		Path:     append([]string(nil), path...),
	}
	p.steps = append(p.steps, s)
	return s
}

// assignWaves places every step one wave after its latest predecessor.
func (p *planner) assignWaves() error {
	const (
		active = 1
		done   = 2
	)
	state := make([]int, len(p.steps))
	var stack []int

	var visit func(s *Step) error
	visit = func(s *Step) error {
		switch state[s.ID] {
		case done:
			return nil
		case active:
			return errCyclic(append(stack, s.ID))
		}
		state[s.ID] = active
		stack = append(stack, s.ID)
		sort.Ints(s.DependsOn)
		wave := 0
		for _, d := range s.DependsOn {
			pred := p.steps[d]
			if err := visit(pred); err != nil {
				return err
			}
			if pred.Wave+1 > wave {
				wave = pred.Wave + 1
			}
		}
		s.Wave = wave
		stack = stack[:len(stack)-1]
		state[s.ID] = done
		return nil
	}
	for _, s := range p.steps {
		if err := visit(s); err != nil {
			return err
		}
	}
	return nil
}

// sharedKey picks the first key of t whose fields both services resolve.
func sharedKey(t *composer.Type, from, to string) []string {
	for _, key := range t.Keys {
		ok := true
		for _, k := range key {
			kf := t.Field(k)
			if kf == nil || !kf.ResolvableBy(from) || !kf.ResolvableBy(to) {
				ok = false
				break
			}
		}
		if ok {
			return key
		}
	}
	return nil
}

func arguments(f *composer.Field, n *query.Node) []*Argument {
	if len(n.Arguments) == 0 {
		return nil
	}
	out := make([]*Argument, 0, len(n.Arguments))
	for _, name := range n.ArgumentNames() {
		out = append(out, &Argument{Name: name, Value: n.Arguments[name], Type: argument(f, name).Type})
	}
	return out
}

func argument(f *composer.Field, name string) *schema.InputValue {
	for _, a := range f.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// appendPath extends path with key and one ListMarker per list level of typ.
func appendPath(path []string, key string, typ *schema.TypeRef) []string {
	out := append(append([]string(nil), path...), key)
	for t := typ; t != nil; t = t.OfType {
		if t.Kind == schema.TypeRefKindList {
			out = append(out, ListMarker)
		}
	}
	return out
}

// InputPrefix aliases key and required fields the planner injects when
// the client already uses the field's name as a response key for
// something else.
const InputPrefix = "__key_"

// takenKeys returns the response keys of nodes that are not a plain
// selection of the field with the same name.
func takenKeys(nodes []*query.Node) map[string]bool {
	taken := map[string]bool{}
	for _, n := range nodes {
		if (n.Alias != "" && n.Alias != n.Name) || len(n.Arguments) > 0 || len(n.Children) > 0 {
			taken[n.ResponseKey()] = true
		}
	}
	return taken
}

// ensureField makes sel select the plain field name and returns the
// response key it is fetched under.
func ensureField(sel []*Field, name string, taken map[string]bool) ([]*Field, string) {
	rk := name
	if taken[name] {
		rk = InputPrefix + name
	}
	for _, f := range sel {
		if f.ResponseKey() == rk && f.Name == name && len(f.Arguments) == 0 && len(f.Selection) == 0 {
			return sel, rk
		}
	}
	field := &Field{Name: name}
	if rk != name {
		field.Alias = rk
	}
	return append(sel, field), rk
}

func hasLeaf(sel []*Field, field *Field) bool {
	for _, f := range sel {
		if f.ResponseKey() == field.ResponseKey() && f.Name == field.Name && len(f.Arguments) == 0 && len(f.Selection) == 0 {
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	if contains(list, s) {
		return list
	}
	return append(list, s)
}

func appendUniqueInt(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
