package servicedef

import (
	"encoding/json"
	"fmt"
)

// Operation is one of the four CRUD verbs a service can handle.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationRead   Operation = "read"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// AllOperations lists the verbs in the order they are usually documented.
var AllOperations = []Operation{OperationCreate, OperationRead, OperationUpdate, OperationDelete}

// ParseOperation converts a verb name to an Operation.
func ParseOperation(s string) (Operation, error) {
	for _, op := range AllOperations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// HasBody is true for the verbs that carry a request body.
func (o Operation) HasBody() bool {
	return o == OperationCreate || o == OperationUpdate
}

func (o Operation) String() string {
	return string(o)
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	op, err := ParseOperation(s)
	if err != nil {
		return err
	}
	*o = op
	return nil
}
