package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resolvedelta/models"
)

// ReportWriter は計画とrevert結果のレポートを生成します
type ReportWriter struct{}

// NewReportWriter は新しいReportWriterを作成します
func NewReportWriter() *ReportWriter {
	return &ReportWriter{}
}

// PlanMarkdown は照合計画のmarkdownレポートを生成します
func (w *ReportWriter) PlanMarkdown(plan models.ReconciliationPlan) string {
	var b strings.Builder

	batchID := plan.BatchID
	if batchID == "" {
		batchID = "DRY-RUN"
	}

	fmt.Fprintf(&b, "# Reconciliation Plan\n\n")
	fmt.Fprintf(&b, "**Generated:** %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "**Batch ID:** %s\n\n", batchID)

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "- **Create in ClickUp:** %d\n", plan.Counts.Create)
	fmt.Fprintf(&b, "- **Update ClickUp:** %d\n", plan.Counts.Update)
	fmt.Fprintf(&b, "- **Update JSON:** %d\n", len(plan.UpdateJSON))
	fmt.Fprintf(&b, "- **Tag Orphans:** %d\n", plan.Counts.TagOrphans)
	fmt.Fprintf(&b, "- **Ambiguities:** %d\n\n", plan.Counts.Ambiguous)

	if len(plan.CreateInClickUp) > 0 {
		fmt.Fprintf(&b, "## Create in ClickUp (%d)\n\n", len(plan.CreateInClickUp))
		for _, story := range plan.CreateInClickUp {
			fmt.Fprintf(&b, "### %s\n", story.Title)
			fmt.Fprintf(&b, "- **Points:** %d\n", story.Points)
			fmt.Fprintf(&b, "- **Business Value:** %s\n", story.BusinessValue)
			fmt.Fprintf(&b, "- **Status:** %s\n\n", story.Status)
		}
	}

	if len(plan.UpdateClickUp) > 0 {
		fmt.Fprintf(&b, "## Update ClickUp (%d)\n\n", len(plan.UpdateClickUp))
		for _, update := range plan.UpdateClickUp {
			fmt.Fprintf(&b, "### %s\n\n", update.Title)
			for _, change := range update.Changes {
				fmt.Fprintf(&b, "**%s**\n", change.Field)
				fmt.Fprintf(&b, "  - Before: %s\n", jsonValue(change.Before))
				fmt.Fprintf(&b, "  - After: %s\n", jsonValue(change.After))
				fmt.Fprintf(&b, "  - Source: %s\n", change.Source)
				if change.Directive != "" {
					fmt.Fprintf(&b, "  - Directive: %s\n", change.Directive)
				}
				fmt.Fprintf(&b, "\n")
			}
		}
	}

	if len(plan.TagOrphans) > 0 {
		fmt.Fprintf(&b, "## Tag Orphans (%d)\n\n", len(plan.TagOrphans))
		fmt.Fprintf(&b, "These tasks will be prefixed with \"(ORPHAN) \":\n\n")
		for _, orphan := range plan.TagOrphans {
			fmt.Fprintf(&b, "- %s\n", orphan.Title)
		}
		fmt.Fprintf(&b, "\n")
	}

	if len(plan.Ambiguities) > 0 {
		fmt.Fprintf(&b, "## Ambiguities (%d)\n\n", len(plan.Ambiguities))
		fmt.Fprintf(&b, "**Manual review required:**\n\n")
		for _, amb := range plan.Ambiguities {
			fmt.Fprintf(&b, "- %s\n", amb.Reason)
			fmt.Fprintf(&b, "  - Stories: %s\n\n", strings.Join(amb.Stories, ", "))
		}
	}

	return b.String()
}

// RevertMarkdown はrevert結果のmarkdownレポートを生成します。
// エントリごとの処理結果（reverted/skipped/error）を明示します
func (w *ReportWriter) RevertMarkdown(result models.RevertResult, dispositions []EntryDisposition) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Revert Report - Batch %s\n\n", result.BatchID)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", time.Now().Format(time.RFC3339))

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "- **Reverted:** %d\n", result.Reverted)
	fmt.Fprintf(&b, "- **Skipped:** %d\n", result.Skipped)
	fmt.Fprintf(&b, "- **Errors:** %d\n\n", len(result.Errors))

	if len(result.Errors) > 0 {
		fmt.Fprintf(&b, "## Errors\n\n")
		for _, e := range result.Errors {
			fmt.Fprintf(&b, "- **Task %s:** %s\n", e.TaskID, e.Error)
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, "## Entries\n\n")
	for _, d := range dispositions {
		fmt.Fprintf(&b, "### %s\n", d.Entry.TitleBefore)
		fmt.Fprintf(&b, "- **Operation:** %s\n", d.Entry.Operation)
		fmt.Fprintf(&b, "- **Task ID:** %s\n", d.Entry.TaskID)
		fmt.Fprintf(&b, "- **External ID:** %s\n", d.Entry.ExternalID)
		fmt.Fprintf(&b, "- **Disposition:** %s\n", d.Disposition)
		if d.Detail != "" {
			fmt.Fprintf(&b, "- **Detail:** %s\n", d.Detail)
		}
		fmt.Fprintf(&b, "\n")
	}

	return b.String()
}

// WritePlanOutputs は計画のJSONとmarkdownレポートを出力ディレクトリへ書き出します
func (w *ReportWriter) WritePlanOutputs(outDir string, plan models.ReconciliationPlan) (planPath, reportPath string, err error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", "", fmt.Errorf("出力ディレクトリ作成エラー: %w", err)
	}

	planPath = filepath.Join(outDir, "resolve-delta-plan.json")
	reportPath = filepath.Join(outDir, "resolve-delta-report.md")

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("計画のエンコードエラー: %w", err)
	}
	if err := os.WriteFile(planPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("計画ファイル書き込みエラー: %w", err)
	}

	if err := os.WriteFile(reportPath, []byte(w.PlanMarkdown(plan)), 0o644); err != nil {
		return "", "", fmt.Errorf("レポート書き込みエラー: %w", err)
	}

	return planPath, reportPath, nil
}

// jsonValue は値をJSON表現の文字列にします
func jsonValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
