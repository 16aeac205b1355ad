package services

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resolvedelta/models"
)

func TestPlanMarkdown(t *testing.T) {
	w := NewReportWriter()

	plan := models.ReconciliationPlan{
		BatchID: "20250817-120000-ab12",
		CreateInClickUp: []models.Story{
			{Title: "Export payroll report", Points: 2, BusinessValue: models.BusinessValueImportant, Status: "captured"},
		},
		UpdateClickUp: []models.StoryUpdate{
			{Title: "Team Roster View", Changes: []models.FieldChange{
				{Field: "points", Before: 0, After: 5, Source: models.SourceSideClickUp},
				{Field: "status", Before: "captured", After: "in review", Source: models.SourceSideClickUp, Directive: models.ActionUseClickUp},
			}},
		},
		TagOrphans: []models.OrphanTarget{{TaskID: "t1", Title: "Legacy import task"}},
		Ambiguities: []models.Ambiguity{
			{Reason: "Multiple similar candidates found", Stories: []string{"A", "B"}},
		},
		Counts: models.PlanCounts{Create: 1, Update: 1, TagOrphans: 1, Ambiguous: 1},
	}

	md := w.PlanMarkdown(plan)

	assert.Contains(t, md, "# Reconciliation Plan")
	assert.Contains(t, md, "**Batch ID:** 20250817-120000-ab12")
	assert.Contains(t, md, "## Create in ClickUp (1)")
	assert.Contains(t, md, "### Export payroll report")
	assert.Contains(t, md, "## Update ClickUp (1)")
	assert.Contains(t, md, "- Directive: USE_CLICKUP")
	assert.Contains(t, md, "## Tag Orphans (1)")
	assert.Contains(t, md, "- Legacy import task")
	assert.Contains(t, md, "## Ambiguities (1)")
	assert.Contains(t, md, "A, B")
}

func TestPlanMarkdownDryRunLabel(t *testing.T) {
	w := NewReportWriter()
	md := w.PlanMarkdown(models.ReconciliationPlan{})
	assert.Contains(t, md, "**Batch ID:** DRY-RUN")
}

func TestRevertMarkdown(t *testing.T) {
	w := NewReportWriter()

	result := models.RevertResult{
		BatchID:  "20250817-120000-ab12",
		Reverted: 1,
		Skipped:  1,
		Errors:   []models.RevertError{{TaskID: "t9", Error: "boom"}},
	}
	dispositions := []EntryDisposition{
		{Entry: models.LedgerEntry{TaskID: "t1", TitleBefore: "A", Operation: models.OpUpdate}, Disposition: DispositionReverted},
		{Entry: models.LedgerEntry{TaskID: "t2", TitleBefore: "B", Operation: models.OpTagOrphan}, Disposition: DispositionSkipped, Detail: "remote modified"},
	}

	md := w.RevertMarkdown(result, dispositions)

	assert.Contains(t, md, "# Revert Report - Batch 20250817-120000-ab12")
	assert.Contains(t, md, "- **Reverted:** 1")
	assert.Contains(t, md, "- **Task t9:** boom")
	assert.Contains(t, md, "- **Disposition:** skipped")
	assert.Contains(t, md, "- **Detail:** remote modified")
}

func TestWritePlanOutputs(t *testing.T) {
	w := NewReportWriter()

	plan := models.ReconciliationPlan{
		Counts: models.PlanCounts{Create: 1},
		CreateInClickUp: []models.Story{
			{Title: "Export payroll report", UserStory: "payroll"},
		},
	}

	planPath, reportPath, err := w.WritePlanOutputs(t.TempDir(), plan)
	require.NoError(t, err)

	data, err := os.ReadFile(planPath)
	require.NoError(t, err)
	var decoded models.ReconciliationPlan
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 1, decoded.Counts.Create)

	report, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(report), "# Reconciliation Plan")
}
