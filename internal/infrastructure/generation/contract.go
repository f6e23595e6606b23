package generation

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var contractDocument []byte

var ErrContractViolation = errors.New("response violates generation contract")

// Contract validates payloads against the component schemas of the embedded
// OpenAPI document.
type Contract struct {
	doc *openapi3.T
}

var loadContract = sync.OnceValues(func() (*Contract, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(contractDocument)
	if err != nil {
		return nil, fmt.Errorf("load generation contract: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate generation contract: %w", err)
	}
	return &Contract{doc: doc}, nil
})

// LoadContract parses the embedded document once per process.
func LoadContract() (*Contract, error) {
	return loadContract()
}

// ContractDocument returns the raw embedded document.
func ContractDocument() []byte {
	return contractDocument
}

// Validate checks raw JSON against the named component schema.
func (c *Contract) Validate(schema string, raw []byte) error {
	if c == nil || c.doc == nil || c.doc.Components == nil {
		return nil
	}
	ref, ok := c.doc.Components.Schemas[schema]
	if !ok || ref == nil || ref.Value == nil {
		return fmt.Errorf("unknown contract schema %q", schema)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrContractViolation, schema, err)
	}
	if err := ref.Value.VisitJSON(value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrContractViolation, schema, err)
	}
	return nil
}
