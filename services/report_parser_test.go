package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resolvedelta/config"
	"resolvedelta/models"
)

const sampleReport = `# Simple Parity Report

Generated by the parity checker.

## Missing in ClickUp

- **Export payroll report**
- **ENHANCEMENT: Admin View of Employee Profiles**

## Orphans in ClickUp

- **Legacy import task**

## Field Differences

### Employee Equipment Assignment

🔵 **status** - Status differs between systems
  - JSON: "in progress"
  - ClickUp: "in review"
  **Recommendation:** USE CLICKUP

📝 **userStory** - Description differs
  - JSON: "short text"
  - ClickUp: "a much longer description of the story"
  **Recommendation:** REVIEW

### Team Roster View

⚠️ **points** - Points differ
  - JSON: 0
  - ClickUp: 3
  **Recommendation:** USE_JSON
`

func TestParseSections(t *testing.T) {
	p := NewReportParser(config.DefaultPolicy())

	report := p.Parse(sampleReport)

	assert.Equal(t, []string{
		"Export payroll report",
		"ENHANCEMENT: Admin View of Employee Profiles",
	}, report.MissingInClickUp)
	assert.Equal(t, []string{"Legacy import task"}, report.OrphansInClickUp)
	require.Len(t, report.FieldDirectives, 3)
}

func TestParseFieldDirectives(t *testing.T) {
	p := NewReportParser(config.DefaultPolicy())

	report := p.Parse(sampleReport)
	require.Len(t, report.FieldDirectives, 3)

	status := report.FieldDirectives[0]
	assert.Equal(t, "Employee Equipment Assignment", status.StoryTitle)
	assert.Equal(t, "status", status.Field)
	assert.Equal(t, models.ActionUseClickUp, status.Action)
	assert.Equal(t, "in progress", status.JSONValue) // 引用符は取り除かれる
	assert.Equal(t, "in review", status.ClickUpValue)

	userStory := report.FieldDirectives[1]
	assert.Equal(t, "Employee Equipment Assignment", userStory.StoryTitle)
	assert.Equal(t, "userStory", userStory.Field)
	assert.Equal(t, models.ActionReview, userStory.Action)

	points := report.FieldDirectives[2]
	assert.Equal(t, "Team Roster View", points.StoryTitle)
	assert.Equal(t, "points", points.Field)
	assert.Equal(t, models.ActionUseJSON, points.Action)
	assert.Equal(t, "0", points.JSONValue)
	assert.Equal(t, "3", points.ClickUpValue)
}

func TestParseRecommendationBeyondLookahead(t *testing.T) {
	p := NewReportParser(config.DefaultPolicy())

	// 推奨行が先読み上限より先にあるとREVIEWのまま残る
	content := strings.Join([]string{
		"## Field Differences",
		"### Some Story",
		"🔵 **status** - Status differs",
		"", "", "", "", "", "", "", "", "", "",
		"**Recommendation:** USE CLICKUP",
	}, "\n")

	report := p.Parse(content)
	require.Len(t, report.FieldDirectives, 1)
	assert.Equal(t, models.ActionReview, report.FieldDirectives[0].Action)
}

func TestParseStopsAtNextFieldLine(t *testing.T) {
	p := NewReportParser(config.DefaultPolicy())

	// 先読みは次のフィールド行で打ち切られ、後続の推奨は前のフィールドに効かない
	content := strings.Join([]string{
		"## Field Differences",
		"### Some Story",
		"🔵 **status** - Status differs",
		"📝 **userStory** - Description differs",
		"**Recommendation:** USE CLICKUP",
	}, "\n")

	report := p.Parse(content)
	require.Len(t, report.FieldDirectives, 2)
	assert.Equal(t, models.ActionReview, report.FieldDirectives[0].Action)
	assert.Equal(t, models.ActionUseClickUp, report.FieldDirectives[1].Action)
}

func TestParseUnknownRecommendationDefaultsToReview(t *testing.T) {
	p := NewReportParser(config.DefaultPolicy())

	content := strings.Join([]string{
		"## Field Differences",
		"### Some Story",
		"🔵 **status** - Status differs",
		"**Recommendation:** DO SOMETHING ELSE",
	}, "\n")

	report := p.Parse(content)
	require.Len(t, report.FieldDirectives, 1)
	assert.Equal(t, models.ActionReview, report.FieldDirectives[0].Action)
}

func TestParseIgnoresContentOutsideSections(t *testing.T) {
	p := NewReportParser(config.DefaultPolicy())

	content := strings.Join([]string{
		"# Report",
		"- **Not a missing story**",
		"🔵 **status** - outside any section",
	}, "\n")

	report := p.Parse(content)
	assert.Empty(t, report.MissingInClickUp)
	assert.Empty(t, report.OrphansInClickUp)
	assert.Empty(t, report.FieldDirectives)
}

func TestParseFile(t *testing.T) {
	p := NewReportParser(config.DefaultPolicy())

	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, os.WriteFile(path, []byte(sampleReport), 0o644))

	report, err := p.ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, report.FieldDirectives, 3)

	_, err = p.ParseFile(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}

func TestFindDirective(t *testing.T) {
	directives := []models.Directive{
		{StoryTitle: "A", Field: "status", Action: models.ActionUseJSON},
		{StoryTitle: "A", Field: "points", Action: models.ActionUseClickUp},
	}

	d, ok := FindDirective(directives, "A", "points")
	require.True(t, ok)
	assert.Equal(t, models.ActionUseClickUp, d.Action)

	_, ok = FindDirective(directives, "B", "status")
	assert.False(t, ok)
}
