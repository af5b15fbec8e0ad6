// Package sandbox runs untrusted source code in ephemeral, resource-bounded
// containers and classifies the outcome.
//
// An Executor takes one ExecutionRequest through a fixed pipeline: language
// lookup, limit validation, the safety gate, environment provisioning,
// session creation, artifact injection, an optional compile stage, the run
// stage and classification. The session container is always destroyed before
// Execute returns.
//
// Two Runtime implementations are provided. CLIRuntime drives the docker or
// podman binary; APIRuntime talks to the Docker Engine API and can report
// peak memory from container stats.
//
// Usage:
//
//	executor, err := sandbox.NewFromConfig(logger, cfg, recorder)
//	result := executor.Execute(ctx, sandbox.ExecutionRequest{
//	    Language:         "python",
//	    SourceCode:       "print(input())",
//	    Stdin:            "World",
//	    TimeLimitSeconds: 2,
//	    MemoryLimitMB:    128,
//	})
package sandbox
