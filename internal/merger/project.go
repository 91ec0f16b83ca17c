package merger

import (
	"fmt"

	planner "github.com/hanpama/fedgraph/internal/planner"
	result "github.com/hanpama/fedgraph/internal/result"
	schema "github.com/hanpama/fedgraph/internal/schema"
)

// Resolve projects the arena onto the client's selection. Fields the
// gateway injected are dropped, __typename is filled in, and nulls in
// non-null positions bubble to the nearest nullable ancestor.
func (a *Arena) Resolve(shape []*planner.ShapeField) *result.MergedResponse {
	data, ok := a.projectObject(a.data, shape, result.Path{})
	resp := &result.MergedResponse{Errors: a.errors}
	if ok {
		resp.Data = data
	}
	return resp
}

// projectObject returns false when a non-null field of src resolved to
// null, in which case the object itself becomes null.
func (a *Arena) projectObject(src map[string]any, fields []*planner.ShapeField, path result.Path) (map[string]any, bool) {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.Typename != "" {
			out[f.ResponseKey] = f.Typename
			continue
		}
		v, ok := a.complete(src[f.ResponseKey], f.Type, f.Children, path.Append(f.ResponseKey))
		if !ok {
			return nil, false
		}
		out[f.ResponseKey] = v
	}
	return out, true
}

// complete returns false when a null must propagate to the parent.
func (a *Arena) complete(v any, typ *schema.TypeRef, children []*planner.ShapeField, path result.Path) (any, bool) {
	if typ.IsNonNull() {
		out, ok := a.completeNullable(v, typ.OfType, children, path)
		if !ok {
			return nil, false
		}
		if out == nil {
			a.nullViolation(path)
			return nil, false
		}
		return out, true
	}
	out, ok := a.completeNullable(v, typ, children, path)
	if !ok {
		return nil, true
	}
	return out, true
}

// completeNullable returns false when a non-null descendant was null. The
// violation has already been reported.
func (a *Arena) completeNullable(v any, typ *schema.TypeRef, children []*planner.ShapeField, path result.Path) (any, bool) {
	if v == nil {
		return nil, true
	}
	if typ.Kind == schema.TypeRefKindList {
		list, isList := v.([]any)
		if !isList {
			a.malformed(path, "", fmt.Sprintf("expected a list at %s", path))
			return nil, true
		}
		out := make([]any, len(list))
		for i, item := range list {
			iv, ok := a.complete(item, typ.OfType, children, path.Append(i))
			if !ok {
				return nil, false
			}
			out[i] = iv
		}
		return out, true
	}
	if len(children) == 0 {
		return v, true
	}
	obj, isObj := v.(map[string]any)
	if !isObj {
		a.malformed(path, "", fmt.Sprintf("expected an object at %s", path))
		return nil, true
	}
	return a.projectObject(obj, children, path)
}

// nullViolation reports a null in a non-null position unless an earlier
// error already accounts for that location.
func (a *Arena) nullViolation(path result.Path) {
	for _, c := range a.covered {
		if path.HasPrefix(c) {
			return
		}
	}
	a.errors = append(a.errors, result.Error{
		Message: fmt.Sprintf("cannot return null for non-nullable field %s", path),
		Path:    path,
		Kind:    result.KindNullViolation,
	})
	a.covered = append(a.covered, path)
}
