package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

type stubProcessor struct {
	id       string
	requires []pipelinecore.DataPath
	produces []pipelinecore.DataPath
}

func (s stubProcessor) ID() string                    { return s.id }
func (s stubProcessor) DisplayName() string           { return s.id }
func (s stubProcessor) StatusKey() string              { return s.id }
func (s stubProcessor) IO() pipelinecore.ProcessorIO   { return pipelinecore.ProcessorIO{Requires: s.requires, Produces: s.produces} }
func (s stubProcessor) Execute(*pipelinecore.ProcessorContext, pipelinecore.PipelineData, map[string]any) (pipelinecore.ProcessorResult, error) {
	return pipelinecore.ProcessorResult{Success: true}, nil
}

func registryWith(procs ...stubProcessor) *pipelinecore.Registry {
	reg := pipelinecore.NewRegistry()
	for _, p := range procs {
		reg.Register(p)
	}
	return reg
}

func TestValidate_EmptyStackIsTriviallyValid(t *testing.T) {
	reg := registryWith()
	res := Validate(nil, reg, nil)
	assert.True(t, res.Valid)
	assert.Empty(t, res.AvailableOutputs)
}

func TestValidate_SuccessfulChain(t *testing.T) {
	reg := registryWith(
		stubProcessor{id: "download", produces: []pipelinecore.DataPath{pipelinecore.PathVideo}},
		stubProcessor{id: "extract-frames", requires: []pipelinecore.DataPath{pipelinecore.PathVideo}, produces: []pipelinecore.DataPath{pipelinecore.PathFrames, pipelinecore.PathImages}},
		stubProcessor{id: "score-frames", requires: []pipelinecore.DataPath{pipelinecore.PathFrames}, produces: []pipelinecore.DataPath{pipelinecore.PathFramesScores}},
	)
	steps := []pipelinecore.StackStep{{Processor: "download"}, {Processor: "extract-frames"}, {Processor: "score-frames"}}

	res := Validate(steps, reg, nil)
	require.True(t, res.Valid)
	assert.Contains(t, res.AvailableOutputs, pipelinecore.PathFramesScores)
}

func TestValidate_MissingRequirement(t *testing.T) {
	reg := registryWith(
		stubProcessor{id: "download", produces: []pipelinecore.DataPath{pipelinecore.PathVideo}},
		stubProcessor{id: "gemini-classify", requires: []pipelinecore.DataPath{pipelinecore.PathImages}, produces: []pipelinecore.DataPath{pipelinecore.PathFramesClassifications}},
	)
	steps := []pipelinecore.StackStep{{Processor: "download"}, {Processor: "gemini-classify"}}

	res := Validate(steps, reg, nil)
	require.False(t, res.Valid)
	require.NotNil(t, res.Violation)
	assert.Equal(t, 1, res.Violation.StepIndex)
	assert.Equal(t, pipelinecore.PathImages, res.Violation.MissingPath)
}

func TestValidate_InitialPathsAllowSkippingDownload(t *testing.T) {
	reg := registryWith(
		stubProcessor{id: "extract-frames", requires: []pipelinecore.DataPath{pipelinecore.PathVideo}, produces: []pipelinecore.DataPath{pipelinecore.PathFrames}},
	)
	steps := []pipelinecore.StackStep{{Processor: "extract-frames"}}

	res := Validate(steps, reg, []pipelinecore.DataPath{pipelinecore.PathVideo})
	assert.True(t, res.Valid)
}

func TestValidateSwaps_RejectsMismatchedIO(t *testing.T) {
	reg := registryWith(
		stubProcessor{id: "center-product", requires: []pipelinecore.DataPath{pipelinecore.PathImages}, produces: []pipelinecore.DataPath{pipelinecore.PathImages}},
		stubProcessor{id: "gemini-classify", requires: []pipelinecore.DataPath{pipelinecore.PathImages}, produces: []pipelinecore.DataPath{pipelinecore.PathText}},
	)

	err := ValidateSwaps(map[string]string{"center-product": "gemini-classify"}, reg)
	assert.Error(t, err)
}

func TestValidateSwaps_AllowsIdenticalIO(t *testing.T) {
	reg := registryWith(
		stubProcessor{id: "claid-bg", requires: []pipelinecore.DataPath{pipelinecore.PathImages}, produces: []pipelinecore.DataPath{pipelinecore.PathImages}},
		stubProcessor{id: "remove-bg", requires: []pipelinecore.DataPath{pipelinecore.PathImages}, produces: []pipelinecore.DataPath{pipelinecore.PathImages}},
	)

	err := ValidateSwaps(map[string]string{"claid-bg": "remove-bg"}, reg)
	assert.NoError(t, err)
}
