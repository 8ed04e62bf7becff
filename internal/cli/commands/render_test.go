package commands

import (
	"encoding/json"
	"testing"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli/testutil"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/generator"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *generator.Report {
	return &generator.Report{
		Step:    pipeline.ApplyLookups,
		Script:  "scripts/s03_apply_lookups.sh",
		Tables:  []string{"patient", "clinical"},
		Skipped: []generator.Skipped{{Table: "referral", Reason: "no lookup columns"}},
		Changed: true,
	}
}

func TestRenderReport_Text(t *testing.T) {
	tr := testutil.NewTestRendererText()
	require.NoError(t, renderReport(tr.Renderer, sampleReport()))

	out := testutil.StripANSI(tr.Output())
	assert.Contains(t, out, "✓ Generated scripts/s03_apply_lookups.sh")
	assert.Contains(t, out, "patient, clinical")
	assert.Contains(t, testutil.StripANSI(tr.ErrorOutput()), "skipped referral: no lookup columns")
}

func TestRenderReport_Markdown(t *testing.T) {
	tr := testutil.NewTestRendererMarkdown()
	require.NoError(t, renderReport(tr.Renderer, sampleReport()))

	out := tr.Output()
	testutil.AssertNoANSI(t, out)
	testutil.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "**Generated scripts/s03_apply_lookups.sh**")
	assert.Contains(t, out, "- **Changed:**")
	assert.Contains(t, tr.ErrorOutput(), "Warning: skipped referral")
}

func TestRenderReport_JSON(t *testing.T) {
	tr := testutil.NewTestRendererJSON()
	require.NoError(t, renderReport(tr.Renderer, sampleReport()))

	var got GenerateOutput
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &got))
	assert.Equal(t, "apply_lookups", got.Step)
	assert.Equal(t, 3, got.Number)
	assert.True(t, got.Changed)
	require.Len(t, got.Skipped, 1)
	assert.Equal(t, "referral", got.Skipped[0].Table)
}

func TestRenderSteps_Text(t *testing.T) {
	tr := testutil.NewTestRendererText()
	require.NoError(t, renderSteps(tr.Renderer))

	out := testutil.StripANSI(tr.Output())
	assert.Contains(t, out, "Pipeline Steps")
	assert.Contains(t, out, "┌")
	assert.Contains(t, out, "Annotate Tables")
	assert.Contains(t, out, "s06_create_database.sh")
}
