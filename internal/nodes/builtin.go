package nodes

import "github.com/docuflow/docuflow/internal/docs"

// Deps carries the collaborators the built-in executors need.
type Deps struct {
	Issuer    Issuer
	Mailer    Mailer
	NotifyLog NotifyLog
	Directory docs.Directory
}

// RegisterBuiltins registers every built-in node executor in the registry.
func RegisterBuiltins(reg *Registry, deps Deps) error {
	all := make([]Executor, 0, 16)

	all = append(all, TriggerExecutors()...)

	condition, err := NewConditionExecutor()
	if err != nil {
		return err
	}
	all = append(all,
		condition,
		NewSetVariableExecutor(),
		NewExtractExecutor(),
		NewApprovalExecutor(deps.Issuer),
		NewWaitExecutor(),
		NewNotifyExecutor(deps.Mailer, deps.NotifyLog),
	)

	all = append(all, DocumentExecutors(deps.Directory)...)

	for _, e := range all {
		if err := reg.Register(e); err != nil {
			return err
		}
	}
	return nil
}
