package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Operation documents sent by clients.
type (
	QueryDocument       = ast.QueryDocument
	OperationList       = ast.OperationList
	OperationDefinition = ast.OperationDefinition
	VariableDefinition  = ast.VariableDefinition
	VariableDefinitions = ast.VariableDefinitionList
	SelectionSet        = ast.SelectionSet
	Field               = ast.Field
	InlineFragment      = ast.InlineFragment
	FragmentSpread      = ast.FragmentSpread
	Argument            = ast.Argument
	ArgumentList        = ast.ArgumentList
	Value               = ast.Value
)

// Subgraph schema documents.
type (
	SchemaDocument   = ast.SchemaDocument
	SchemaDefinition = ast.SchemaDefinition
	Definition       = ast.Definition
	FieldDefinition  = ast.FieldDefinition
	Directive        = ast.Directive
	DirectiveList    = ast.DirectiveList
	Type             = ast.Type
)

type (
	Position       = ast.Position
	Error          = gqlerror.Error
	Operation      = ast.Operation
	DefinitionKind = ast.DefinitionKind
	ValueKind      = ast.ValueKind
)

const (
	Query    Operation = ast.Query
	Mutation Operation = ast.Mutation
)

const (
	Object      DefinitionKind = ast.Object
	Interface   DefinitionKind = ast.Interface
	Union       DefinitionKind = ast.Union
	Enum        DefinitionKind = ast.Enum
	InputObject DefinitionKind = ast.InputObject
)

const (
	Variable     ValueKind = ast.Variable
	IntValue     ValueKind = ast.IntValue
	FloatValue   ValueKind = ast.FloatValue
	StringValue  ValueKind = ast.StringValue
	BlockValue   ValueKind = ast.BlockValue
	BooleanValue ValueKind = ast.BooleanValue
	EnumValue    ValueKind = ast.EnumValue
	ListValue    ValueKind = ast.ListValue
	ObjectValue  ValueKind = ast.ObjectValue
)
