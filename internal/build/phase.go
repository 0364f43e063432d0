package build

// Phase names a pipeline step in diagnostics.
type Phase string

const (
	PhaseEnvironment Phase = "environment"
	PhaseInstall     Phase = "install"
	PhaseBuild       Phase = "build"
	PhasePackage     Phase = "package"
	PhaseLinkage     Phase = "linkage"
	PhaseBridge      Phase = "bridge"
	PhaseCopy        Phase = "copy"
	PhaseFinish      Phase = "finish"
)

// PhaseError reports the step a run failed in.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return string(e.Phase) + ": " + e.Err.Error()
}

func (e *PhaseError) Unwrap() error { return e.Err }

func fail(phase Phase, err error) error {
	return &PhaseError{Phase: phase, Err: err}
}
