package executor

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

type noopReporter struct{}

func (noopReporter) ReportProgress(string, int, string)       {}
func (noopReporter) ReportItemProgress(string, int, int) {}

type fakeSandbox struct{}

func (fakeSandbox) Root() string                        { return "/tmp/job" }
func (fakeSandbox) Subpath(name string) (string, error) { return "/tmp/job/" + name, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fnProcessor struct {
	id  string
	io  pipelinecore.ProcessorIO
	fn  func(pipelinecore.PipelineData, map[string]any) (pipelinecore.ProcessorResult, error)
}

func (f fnProcessor) ID() string                  { return f.id }
func (f fnProcessor) DisplayName() string         { return f.id }
func (f fnProcessor) StatusKey() string           { return f.id }
func (f fnProcessor) IO() pipelinecore.ProcessorIO { return f.io }
func (f fnProcessor) Execute(_ *pipelinecore.ProcessorContext, data pipelinecore.PipelineData, opts map[string]any) (pipelinecore.ProcessorResult, error) {
	return f.fn(data, opts)
}

func newProcCtx() *pipelinecore.ProcessorContext {
	return &pipelinecore.ProcessorContext{Context: context.Background(), JobID: "job1", Sandbox: fakeSandbox{}, Report: noopReporter{}}
}

func TestExecute_EmptyStackReturnsDataUnchanged(t *testing.T) {
	reg := pipelinecore.NewRegistry()
	ex := New(reg, testLogger())

	data := pipelinecore.PipelineData{Text: "hello"}
	res := ex.Execute(context.Background(), "job1", nil, data, newProcCtx(), false, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, "hello", res.Data.Text)
}

func TestExecute_SequentialMergeAndSkip(t *testing.T) {
	reg := pipelinecore.NewRegistry()
	reg.Register(fnProcessor{
		id: "download",
		io: pipelinecore.ProcessorIO{Produces: []pipelinecore.DataPath{pipelinecore.PathVideo}},
		fn: func(data pipelinecore.PipelineData, _ map[string]any) (pipelinecore.ProcessorResult, error) {
			return pipelinecore.ProcessorResult{Success: true, Data: pipelinecore.PipelineData{Video: &pipelinecore.VideoRef{Path: "/tmp/v.mp4"}}}, nil
		},
	})
	reg.Register(fnProcessor{
		id: "complete-job",
		io: pipelinecore.ProcessorIO{Requires: []pipelinecore.DataPath{pipelinecore.PathVideo}},
		fn: func(data pipelinecore.PipelineData, _ map[string]any) (pipelinecore.ProcessorResult, error) {
			return pipelinecore.ProcessorResult{Success: true, Skip: true}, nil
		},
	})
	reg.Register(fnProcessor{
		id: "never-runs",
		fn: func(data pipelinecore.PipelineData, _ map[string]any) (pipelinecore.ProcessorResult, error) {
			t.Fatal("must not execute after skip")
			return pipelinecore.ProcessorResult{}, nil
		},
	})

	steps := []pipelinecore.StackStep{{Processor: "download"}, {Processor: "complete-job"}, {Processor: "never-runs"}}
	ex := New(reg, testLogger())
	res := ex.Execute(context.Background(), "job1", steps, pipelinecore.PipelineData{}, newProcCtx(), true, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, "/tmp/v.mp4", res.Data.Video.Path)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, StepShortCircuitTerminal, res.Steps[1].State)
}

func TestExecute_ProcessorFailureAbortsStack(t *testing.T) {
	reg := pipelinecore.NewRegistry()
	reg.Register(fnProcessor{
		id: "download",
		fn: func(pipelinecore.PipelineData, map[string]any) (pipelinecore.ProcessorResult, error) {
			return pipelinecore.ProcessorResult{Success: false, Error: "network unreachable"}, nil
		},
	})

	steps := []pipelinecore.StackStep{{Processor: "download"}}
	ex := New(reg, testLogger())
	res := ex.Execute(context.Background(), "job1", steps, pipelinecore.PipelineData{}, newProcCtx(), false, nil)

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "network unreachable")
	assert.Equal(t, StateTerminal, ex.State())
}

func TestExecute_StrictIOValidationAbortsOnMissingPath(t *testing.T) {
	reg := pipelinecore.NewRegistry()
	reg.Register(fnProcessor{
		id: "gemini-classify",
		io: pipelinecore.ProcessorIO{Requires: []pipelinecore.DataPath{pipelinecore.PathImages}},
		fn: func(pipelinecore.PipelineData, map[string]any) (pipelinecore.ProcessorResult, error) {
			t.Fatal("must not execute when strict validation aborts")
			return pipelinecore.ProcessorResult{}, nil
		},
	})

	steps := []pipelinecore.StackStep{{Processor: "gemini-classify"}}
	ex := New(reg, testLogger())
	res := ex.Execute(context.Background(), "job1", steps, pipelinecore.PipelineData{}, newProcCtx(), true, nil)

	require.Error(t, res.Err)
}
