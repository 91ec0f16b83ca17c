// Package planner turns a client selection into an ExecutionPlan: the set
// of subgraph calls needed to answer it and the order they must run in.
package planner

import (
	schema "github.com/hanpama/fedgraph/internal/schema"
)

type StepKind string

const (
	KindRoot   StepKind = "root"
	KindEntity StepKind = "entity"
)

// ListMarker in a step path stands for every element of a list.
const ListMarker = "@"

type ExecutionPlan struct {
	Operation string `json:"operation"`
	// Steps are ordered by wave, then id.
	Steps []*Step       `json:"steps"`
	Waves [][]int       `json:"waves"`
	Shape []*ShapeField `json:"-"`
}

// Step returns the step with the given id or nil.
func (p *ExecutionPlan) Step(id int) *Step {
	for _, s := range p.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Dependents returns the steps listing id as a predecessor.
func (p *ExecutionPlan) Dependents(id int) []*Step {
	var out []*Step
	for _, s := range p.Steps {
		for _, d := range s.DependsOn {
			if d == id {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Step is one call to one subgraph.
type Step struct {
	ID      int      `json:"id"`
	Service string   `json:"service"`
	Kind    StepKind `json:"kind"`
	// TypeName is the entity type fetched, or the root type for root steps.
	TypeName string `json:"typeName"`
	// Path locates the entities this step resolves, by response key.
	// ListMarker elements fan out over list values. Empty for root steps.
	Path           []string `json:"path,omitempty"`
	Selection      []*Field `json:"selection"`
	DependsOn      []int    `json:"dependsOn,omitempty"`
	Wave           int      `json:"wave"`
	KeyFields      []string `json:"keyFields,omitempty"`
	RequiredFields []string `json:"requiredFields,omitempty"`
	// Inputs maps key and required fields to the response key they are
	// fetched under in the parent data, when it differs from the name.
	Inputs map[string]string `json:"inputs,omitempty"`
}

// InputKey is the response key holding field in the objects this step
// builds representations from.
func (s *Step) InputKey(field string) string {
	if rk, ok := s.Inputs[field]; ok {
		return rk
	}
	return field
}

func (s *Step) setInput(field, responseKey string) {
	if field == responseKey {
		return
	}
	if s.Inputs == nil {
		s.Inputs = map[string]string{}
	}
	s.Inputs[field] = responseKey
}

// RepresentationFields are the fields every representation sent to an
// entity step must carry, besides __typename.
func (s *Step) RepresentationFields() []string {
	out := append([]string(nil), s.KeyFields...)
	for _, r := range s.RequiredFields {
		if !contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

// Field is a selection as sent to a subgraph.
type Field struct {
	Name      string      `json:"name"`
	Alias     string      `json:"alias,omitempty"`
	Arguments []*Argument `json:"arguments,omitempty"`
	Selection []*Field    `json:"selection,omitempty"`
}

func (f *Field) ResponseKey() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

type Argument struct {
	Name  string          `json:"name"`
	Value any             `json:"value"`
	Type  *schema.TypeRef `json:"-"`
}

// ShapeField is a node of the client's selection annotated with its
// composed type. The merger projects and null-checks results against it.
type ShapeField struct {
	ResponseKey string
	Name        string
	Type        *schema.TypeRef
	// Typename is the parent type name for __typename selections.
	Typename string
	Children []*ShapeField
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
