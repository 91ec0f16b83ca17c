package registry

import (
	"fmt"

	language "github.com/hanpama/fedgraph/internal/language"
)

type Violation struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"positionStart,omitempty"`
	Column  int    `json:"positionEnd,omitempty"`
}

type ValidationError []*Violation

func (e ValidationError) Error() string {
	msg := "violations found:\n"
	for _, v := range e {
		line := "- " + v.Message
		if v.File != "" {
			line += fmt.Sprintf(" %s:%d:%d", v.File, v.Line, v.Column)
		}
		msg += line + "\n"
	}
	return msg
}

func violationWithPosition(message string, pos *language.Position) *Violation {
	v := &Violation{Message: message}
	if pos != nil {
		if pos.Src != nil {
			v.File = pos.Src.Name
		}
		v.Line = pos.Line
		v.Column = pos.Column
	}
	return v
}

func violationUnknownKeyField(typeName, field string, pos *language.Position) *Violation {
	return violationWithPosition(
		fmt.Sprintf("@key on %s references unknown field %q", typeName, field),
		pos,
	)
}

func violationInvalidFieldSet(directive, typeName string, err error, pos *language.Position) *Violation {
	return violationWithPosition(
		fmt.Sprintf("invalid @%s fields on %s: %v", directive, typeName, err),
		pos,
	)
}

func violationRequiresNotExternal(typeName, field, required string, pos *language.Position) *Violation {
	return violationWithPosition(
		fmt.Sprintf("field %s.%s requires %q which is not declared @external", typeName, field, required),
		pos,
	)
}

func violationDirectiveOutsideEntity(directive, typeName, field string, pos *language.Position) *Violation {
	return violationWithPosition(
		fmt.Sprintf("@%s on %s.%s is only allowed on entity types", directive, typeName, field),
		pos,
	)
}

func violationDuplicateField(typeName, field string, pos *language.Position) *Violation {
	return violationWithPosition(
		fmt.Sprintf("duplicate field %q found in type %q", field, typeName),
		pos,
	)
}
