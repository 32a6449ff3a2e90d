package query

import (
	"net/url"

	"github.com/bijux/atlas/pkg/model"
)

// Request bundles a validated, classified query ready to hand to the policy
// engine and then the serving core.
type Request struct {
	Op     Operation
	Params Params
	Class  Class
}

// Build parses raw, validates it, and classifies the result in one step.
// Validation errors are returned as-is (unclassified) so the caller can
// render them straight into an error envelope without ever reaching the
// policy engine.
func Build(dataset model.DatasetID, op Operation, raw url.Values) (Request, []FieldErr) {
	p, errs := Parse(dataset, raw)
	if len(errs) > 0 {
		return Request{}, errs
	}
	return Request{Op: op, Params: p, Class: Classify(p, op)}, nil
}
