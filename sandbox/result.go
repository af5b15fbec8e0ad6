package sandbox

// OutcomeKind is the single classification attached to a finished request
type OutcomeKind string

// Outcome kinds
const (
	OutcomeSuccess             OutcomeKind = "Success"
	OutcomeCompileError        OutcomeKind = "CompileError"
	OutcomeCompileTimeout      OutcomeKind = "CompileTimeout"
	OutcomeTimeLimitExceeded   OutcomeKind = "TimeLimitExceeded"
	OutcomeMemoryLimitExceeded OutcomeKind = "MemoryLimitExceeded"
	OutcomeRuntimeError        OutcomeKind = "RuntimeError"
	OutcomeHostTimeout         OutcomeKind = "HostTimeout"
	OutcomeUnsupportedLanguage OutcomeKind = "UnsupportedLanguage"
	OutcomeSafetyRejected      OutcomeKind = "SafetyRejected"
	OutcomeInfrastructureError OutcomeKind = "InfrastructureError"
	OutcomeInvalidRequest      OutcomeKind = "InvalidRequest"
	OutcomeInternalError       OutcomeKind = "InternalError"
)

// ExecutionRequest represents one piece of code to compile and run
type ExecutionRequest struct {
	Language         string  `json:"language"`
	SourceCode       string  `json:"source_code"`
	Stdin            string  `json:"stdin"`
	TimeLimitSeconds float64 `json:"time_limit_seconds"`
	MemoryLimitMB    int     `json:"memory_limit_mb"`
}

// ExecutionResult represents the verdict of one request
type ExecutionResult struct {
	Outcome           OutcomeKind `json:"outcome"`
	Stdout            string      `json:"stdout"`
	Stderr            string      `json:"stderr"`
	CompileDiagnostic string      `json:"compile_diagnostic,omitempty"`
	ExitCode          *int        `json:"exit_code"`
	ElapsedSeconds    float64     `json:"elapsed_seconds"`
	PeakMemoryMB      float64     `json:"peak_memory_mb"`
	OutputTruncated   bool        `json:"output_truncated,omitempty"`
	ErrMessage        string      `json:"error,omitempty"`
	SessionID         string      `json:"session_id,omitempty"`
}

func failure(kind OutcomeKind, msg string) ExecutionResult {
	return ExecutionResult{Outcome: kind, ErrMessage: msg}
}

func intPtr(v int) *int {
	return &v
}
