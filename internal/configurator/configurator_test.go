package configurator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

func TestApply_NoopConfigReturnsSameSteps(t *testing.T) {
	steps := []pipelinecore.StackStep{{Processor: "download"}, {Processor: "extract-frames"}}
	out := Apply(steps, pipelinecore.StackConfig{}, nil)
	assert.Equal(t, steps, out)
}

func TestApply_SwapReplacesProcessorID(t *testing.T) {
	steps := []pipelinecore.StackStep{{Processor: "claid-bg"}}
	out := Apply(steps, pipelinecore.StackConfig{ProcessorSwaps: map[string]string{"claid-bg": "remove-bg"}}, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "remove-bg", out[0].Processor)
}

func TestApply_InsertionAfterTarget(t *testing.T) {
	steps := []pipelinecore.StackStep{{Processor: "download"}, {Processor: "extract-frames"}}
	out := Apply(steps, pipelinecore.StackConfig{
		InsertProcessors: []pipelinecore.InsertSpec{{After: "download", Processor: "probe-video"}},
	}, nil)

	require.Len(t, out, 3)
	assert.Equal(t, "download", out[0].Processor)
	assert.Equal(t, "probe-video", out[1].Processor)
	assert.Equal(t, "extract-frames", out[2].Processor)
}

func TestApply_InsertionAfterMissingTargetIsWarningNotError(t *testing.T) {
	steps := []pipelinecore.StackStep{{Processor: "download"}}
	out := Apply(steps, pipelinecore.StackConfig{
		InsertProcessors: []pipelinecore.InsertSpec{{After: "nonexistent", Processor: "probe-video"}},
	}, nil)

	assert.Len(t, out, 1)
}

func TestApply_OptionOverlayMergesOntoExisting(t *testing.T) {
	steps := []pipelinecore.StackStep{{Processor: "extract-frames", Options: map[string]any{"fps": 5}}}
	out := Apply(steps, pipelinecore.StackConfig{
		ProcessorOptions: map[string]map[string]any{"extract-frames": {"maxFrames": 200}},
	}, nil)

	require.Len(t, out, 1)
	assert.Equal(t, 5, out[0].Options["fps"])
	assert.Equal(t, 200, out[0].Options["maxFrames"])
}

func TestApply_FixedOrderSwapThenInsertThenOverlay(t *testing.T) {
	steps := []pipelinecore.StackStep{{Processor: "claid-bg"}}
	out := Apply(steps, pipelinecore.StackConfig{
		ProcessorSwaps:   map[string]string{"claid-bg": "remove-bg"},
		InsertProcessors: []pipelinecore.InsertSpec{{After: "remove-bg", Processor: "center-product"}},
		ProcessorOptions: map[string]map[string]any{"center-product": {"padding": 10}},
	}, nil)

	require.Len(t, out, 2)
	assert.Equal(t, "remove-bg", out[0].Processor)
	assert.Equal(t, "center-product", out[1].Processor)
	assert.Equal(t, 10, out[1].Options["padding"])
}
