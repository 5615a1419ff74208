package pipelinecore

import "context"

// ProcessorContext carries the per-job resources a Processor needs:
// the cancellation signal, the job id, the job's filesystem sandbox,
// and a progress reporter; it carries no logger. It is the
// generalisation of the
// teacher pipeline's per-execution State plus its cancellation token.
type ProcessorContext struct {
	context.Context

	JobID   string
	Sandbox Sandbox
	Report  ProgressReporter
}

// Sandbox is the narrow view of the per-job WorkDirs a Processor is
// allowed to touch; see internal/sandbox for the concrete
// implementation and its path-traversal protections.
type Sandbox interface {
	Root() string
	Subpath(name string) (string, error)
}

// ProgressReporter lets a Processor surface incremental progress; the
// job lifecycle layer is the one that persists it (throttled) to the
// durable Job record.
type ProgressReporter interface {
	ReportProgress(step string, percentage int, message string)
	ReportItemProgress(step string, completed, total int)
}

// ProcessorResult is what a Processor's Execute returns.
type ProcessorResult struct {
	Success bool
	// Data is shallow-merged onto the executor's running PipelineData.
	// MetadataTouched must be true whenever Data.Metadata should
	// replace the running metadata (the processor is responsible for
	// the union, never the executor).
	Data            PipelineData
	MetadataTouched bool
	Error           string
	// Skip terminates the entire stack early at this step with
	// success. A no-op continuation must return Success:true with a
	// zero Data value instead.
	Skip bool
}

// ProcessorIO declares a Processor's capability contract: it must not
// read a DataPath it did not Require, and must set every DataPath it
// Produces.
type ProcessorIO struct {
	Requires []DataPath
	Produces []DataPath
}

// Processor is an identified unit of work with a declared IO contract
// and an Execute operation. Realised as an interface — no inheritance
// hierarchy, composition only (spec §9 design note).
type Processor interface {
	ID() string
	DisplayName() string
	StatusKey() string
	IO() ProcessorIO
	Execute(ctx *ProcessorContext, data PipelineData, options map[string]any) (ProcessorResult, error)
}

// Registry is the process-wide, read-mostly lookup from processor id
// to Processor. Registration happens once at startup; ClearCache
// exists for tests (spec §9: "forbid registration after the first job
// has started, except via a dedicated admin path").
type Registry struct {
	byID map[string]Processor
}

// NewRegistry returns an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Processor)}
}

// Register adds p to the registry. Identifiers are globally unique;
// registering a duplicate id panics, since this only ever happens at
// startup wiring time, never from request-handling code.
func (r *Registry) Register(p Processor) {
	if _, exists := r.byID[p.ID()]; exists {
		panic("pipelinecore: duplicate processor id " + p.ID())
	}
	r.byID[p.ID()] = p
}

// Get resolves a processor by id.
func (r *Registry) Get(id string) (Processor, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// ClearCache empties the registry; for tests only.
func (r *Registry) ClearCache() {
	r.byID = make(map[string]Processor)
}

// Swappable reports whether two processors have identical declared
// Requires/Produces sets, the contract the stack validator's swap
// check enforces.
func Swappable(a, b Processor) bool {
	return sameSet(a.IO().Requires, b.IO().Requires) && sameSet(a.IO().Produces, b.IO().Produces)
}

func sameSet(a, b []DataPath) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[DataPath]int, len(a))
	for _, p := range a {
		set[p]++
	}
	for _, p := range b {
		set[p]--
	}
	for _, n := range set {
		if n != 0 {
			return false
		}
	}
	return true
}
