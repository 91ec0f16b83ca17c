package language

import (
	"bytes"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// FormatQuery prints doc as GraphQL source.
func FormatQuery(doc *QueryDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithCompacted()).FormatQueryDocument(doc)
	return buf.String()
}

func NamedType(name string) *Type { return ast.NamedType(name, nil) }

func ListType(elem *Type) *Type { return ast.ListType(elem, nil) }

func NonNullNamedType(name string) *Type { return ast.NonNullNamedType(name, nil) }

func NonNullListType(elem *Type) *Type { return ast.NonNullListType(elem, nil) }
