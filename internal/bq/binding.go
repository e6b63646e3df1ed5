package bq

import "fmt"

// Binding is the fixed (project, dataset) pair this layer operates against.
// It is constructed once at process start and never mutated; every component
// that needs it receives it at construction time.
type Binding struct {
	ProjectID string
	DatasetID string
}

func (b Binding) Validate() error {
	if b.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if b.DatasetID == "" {
		return fmt.Errorf("dataset id is required")
	}
	return nil
}

// TableRef returns the backticked fully qualified reference for a table in
// the bound dataset, in the form `project.dataset.table`. Queries submitted
// by the external caller must already contain references in this form; this
// helper exists for the DML builders and for documentation surfaced to the
// caller.
func (b Binding) TableRef(table string) string {
	return fmt.Sprintf("`%s.%s.%s`", b.ProjectID, b.DatasetID, table)
}

func (b Binding) String() string {
	return b.ProjectID + "." + b.DatasetID
}
