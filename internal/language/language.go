package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

type QueryDocument = ast.QueryDocument

type Operation = ast.Operation

const (
	Query        Operation = ast.Query
	Mutation     Operation = ast.Mutation
	Subscription Operation = ast.Subscription
)

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Classify returns the type and effective name of the operation selected by
// operationName. When operationName is empty and the document holds a single
// operation, that operation is selected. Documents that fail to parse, or
// that do not contain the requested operation, classify as a query with the
// given name so the server can report the problem.
func Classify(source, operationName string) (Operation, string) {
	doc, err := ParseQuery(source)
	if err != nil {
		return Query, operationName
	}
	op := doc.Operations.ForName(operationName)
	if op == nil && operationName == "" && len(doc.Operations) == 1 {
		op = doc.Operations[0]
	}
	if op == nil {
		return Query, operationName
	}
	name := operationName
	if name == "" {
		name = op.Name
	}
	return op.Operation, name
}

// IsWrite reports whether op changes server state.
func IsWrite(op Operation) bool { return op == Mutation }
