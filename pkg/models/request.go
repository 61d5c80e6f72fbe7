package models

import (
	"sync"

	"github.com/google/uuid"
)

// RequestType is the operation a request performs against a resource.
type RequestType string

const (
	RequestTypeSelect RequestType = "select"
	RequestTypeInsert RequestType = "insert"
	RequestTypeUpdate RequestType = "update"
	RequestTypeDelete RequestType = "delete"
)

// IsWrite reports whether the request type mutates data.
func (t RequestType) IsWrite() bool {
	return t == RequestTypeInsert || t == RequestTypeUpdate || t == RequestTypeDelete
}

// Operator is the comparison applied when a parameter filters rows.
type Operator string

const (
	OperatorEquals         Operator = "="
	OperatorNotEquals      Operator = "!="
	OperatorLessThan       Operator = "<"
	OperatorLessOrEqual    Operator = "<="
	OperatorGreaterThan    Operator = ">"
	OperatorGreaterOrEqual Operator = ">="
	OperatorLike           Operator = "LIKE"
	OperatorIn             Operator = "IN"
)

// NameValuePair is a column label (or reserved name) with its value.
type NameValuePair struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	// Operator defaults to OperatorEquals when empty.
	Operator Operator `json:"operator,omitempty"`
}

// Op returns the effective operator.
func (p NameValuePair) Op() Operator {
	if p.Operator == "" {
		return OperatorEquals
	}
	return p.Operator
}

// SQLLogger records every statement executed on behalf of a request.
type SQLLogger interface {
	AddSQL(sql string)
}

// StatementLog is a SQLLogger that keeps statements in memory.
// Safe for concurrent use.
type StatementLog struct {
	mu         sync.Mutex
	statements []string
}

// AddSQL appends a statement.
func (l *StatementLog) AddSQL(sql string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statements = append(l.statements, sql)
}

// Statements returns a copy of the recorded statements in execution order.
func (l *StatementLog) Statements() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.statements))
	copy(out, l.statements)
	return out
}

type discardLog struct{}

func (discardLog) AddSQL(string) {}

// Request is a single operation against a named resource.
// The caller owns it for the duration of the operation.
type Request struct {
	ID           uuid.UUID
	Type         RequestType
	ResourceName string
	// ResourceIdentifiers are primary key values identifying the target rows.
	ResourceIdentifiers []NameValuePair
	Parameters          []NameValuePair
	// ChildrenParameters holds one parameter list per child row for explicit
	// hierarchical writes.
	ChildrenParameters [][]NameValuePair
	Log                SQLLogger
}

// NewRequest creates a request with a fresh ID and an in-memory statement log.
func NewRequest(requestType RequestType, resourceName string, resIDs, params []NameValuePair) *Request {
	return &Request{
		ID:                  uuid.New(),
		Type:                requestType,
		ResourceName:        resourceName,
		ResourceIdentifiers: resIDs,
		Parameters:          params,
		Log:                 &StatementLog{},
	}
}

// Logger returns the request's statement log, never nil.
func (r *Request) Logger() SQLLogger {
	if r.Log == nil {
		return discardLog{}
	}
	return r.Log
}

// ChildRequest derives the request used for a child-level write. It shares the
// ID, type, identifiers and log of r, and carries params as its parameters.
func (r *Request) ChildRequest(params []NameValuePair) *Request {
	return &Request{
		ID:                  r.ID,
		Type:                r.Type,
		ResourceName:        r.ResourceName,
		ResourceIdentifiers: r.ResourceIdentifiers,
		Parameters:          params,
		Log:                 r.Log,
	}
}
