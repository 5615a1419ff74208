// Package processors implements the reference processor suite named in
// spec §1 as "concrete provider implementations are out of scope, but
// processor wiring (IO declaration, provider-registry lookup,
// internal/parallel fan-out) is reference material". Each processor
// satisfies pipelinecore.Processor and follows the worked template in
// internal/pipeline/stages/filtering/stage.go: a struct holding its
// dependencies, a constructor, and an Execute method that reports start/
// end progress through ctx.Report and returns a ProcessorResult rather
// than mutating shared state directly.
package processors

import (
	"fmt"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

// optString reads a string option, returning def if absent or of the
// wrong type.
func optString(options map[string]any, key, def string) string {
	if v, ok := options[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// optInt reads an integer option (accepting the float64 JSON decodes
// to), returning def if absent or of the wrong type.
func optInt(options map[string]any, key string, def int) int {
	if v, ok := options[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

// optBool reads a boolean option, returning def if absent or of the
// wrong type.
func optBool(options map[string]any, key string, def bool) bool {
	if v, ok := options[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// report is a nil-safe wrapper around ProcessorContext.Report, since
// tests frequently construct a ProcessorContext with no reporter.
func report(ctx *pipelinecore.ProcessorContext, step string, pct int, msg string) {
	if ctx != nil && ctx.Report != nil {
		ctx.Report.ReportProgress(step, pct, msg)
	}
}

func reportItems(ctx *pipelinecore.ProcessorContext, step string, completed, total int) {
	if ctx != nil && ctx.Report != nil {
		ctx.Report.ReportItemProgress(step, completed, total)
	}
}

// fail builds a failed ProcessorResult from an error, classified per
// spec §7's error taxonomy.
func fail(kind pipelinecore.ErrorKind, err error) (pipelinecore.ProcessorResult, error) {
	return pipelinecore.ProcessorResult{}, pipelinecore.Classify(kind, err)
}

// wrapf is a small convenience matching the teacher's fmt.Errorf call
// sites, kept here so every processor file reads the same way.
func wrapf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
