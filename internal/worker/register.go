// Package worker registers the evaluation workflow and its stage activities
// with a Temporal worker.
package worker

import (
	"github.com/ahrav/go-simjudge/internal/workflow"
)

// Registrar is the registration half of a Temporal worker. Both
// sdkworker.Worker and the testsuite environments satisfy it.
type Registrar interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

// RegisterAll registers EvaluationWorkflow and every stage activity.
// It must be called once, before the worker starts.
func RegisterAll(r Registrar, acts *workflow.Activities) {
	r.RegisterWorkflow(workflow.EvaluationWorkflow)

	r.RegisterActivity(acts.LoadDataset)
	r.RegisterActivity(acts.ProcessTemplates)
	r.RegisterActivity(acts.ExecuteCases)
	r.RegisterActivity(acts.JudgeResults)
}
