package services

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"resolvedelta/config"
	"resolvedelta/models"
)

// ReportParser はパリティレポートから機械可読な指示を抽出します。
// 行指向・セクションスコープの純粋なテキスト変換であり、ストーリー実データとの
// 突き合わせは行いません。想定書式に合わない内容は黙ってスキップされます
// （レポートは信頼できる上流ツールの出力であるため）
type ReportParser struct {
	policy config.Policy
}

// NewReportParser は新しいReportParserを作成します
func NewReportParser(policy config.Policy) *ReportParser {
	return &ReportParser{policy: policy}
}

var (
	bulletTitleRe = regexp.MustCompile(`^-\s+\*\*(.+?)\*\*`)
	fieldLineRe   = regexp.MustCompile(`^(?:🔵|📝|⚠️)\s+\*\*(.+?)\*\*\s+-\s+(.+)`)
)

// ParseFile はレポートファイルを読み込んで解析します
func (p *ReportParser) ParseFile(path string) (models.ParsedReport, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return models.ParsedReport{}, fmt.Errorf("レポート読み込みエラー: %w", err)
	}
	return p.Parse(string(content)), nil
}

// Parse はレポート本文を解析して3セクションの内容を返します
func (p *ReportParser) Parse(content string) models.ParsedReport {
	lines := strings.Split(content, "\n")

	report := models.ParsedReport{}

	const (
		sectionNone = iota
		sectionMissing
		sectionOrphans
		sectionDifferences
	)

	section := sectionNone
	currentStoryTitle := ""

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		// セクション見出しの検出
		switch {
		case strings.HasPrefix(line, "## Missing in ClickUp"):
			section = sectionMissing
			continue
		case strings.HasPrefix(line, "## Orphans in ClickUp"):
			section = sectionOrphans
			continue
		case strings.HasPrefix(line, "## Field Differences"):
			section = sectionDifferences
			continue
		}

		switch section {
		case sectionMissing:
			// 例: - **ENHANCEMENT: Admin View of Employee Profiles**
			if m := bulletTitleRe.FindStringSubmatch(line); m != nil {
				report.MissingInClickUp = append(report.MissingInClickUp, m[1])
			}

		case sectionOrphans:
			if m := bulletTitleRe.FindStringSubmatch(line); m != nil {
				report.OrphansInClickUp = append(report.OrphansInClickUp, m[1])
			}

		case sectionDifferences:
			// ストーリー見出し: ### Employee Equipment Assignment
			if strings.HasPrefix(line, "###") {
				currentStoryTitle = strings.TrimSpace(strings.TrimPrefix(line, "###"))
				continue
			}

			if currentStoryTitle == "" {
				continue
			}

			// フィールド行: 🔵 **description** - Description differs...
			m := fieldLineRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}

			directive := models.Directive{
				StoryTitle: currentStoryTitle,
				Field:      m[1],
				Action:     models.ActionReview,
			}

			// 先読み上限内で推奨行と両側の値を探す。
			// 別のフィールド行や見出しに当たったら打ち切る
			limit := i + p.policy.ReportLookahead
			if limit > len(lines) {
				limit = len(lines)
			}
			for j := i + 1; j < limit; j++ {
				next := strings.TrimSpace(lines[j])

				if strings.HasPrefix(next, "- JSON:") {
					directive.JSONValue = unquoteValue(strings.TrimSpace(strings.TrimPrefix(next, "- JSON:")))
				}
				if strings.HasPrefix(next, "- ClickUp:") {
					directive.ClickUpValue = unquoteValue(strings.TrimSpace(strings.TrimPrefix(next, "- ClickUp:")))
				}

				if strings.Contains(next, "**Recommendation:**") {
					directive.Action = parseAction(next)
					break
				}

				if strings.HasPrefix(next, "###") || fieldLineRe.MatchString(next) {
					break
				}
			}

			report.FieldDirectives = append(report.FieldDirectives, directive)
		}
	}

	return report
}

// parseAction は推奨トークンを大文字小文字を無視して指示へ対応付けます。
// 認識できないトークンはREVIEW扱いとします
func parseAction(line string) models.DirectiveAction {
	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, "USE JSON") || strings.Contains(upper, "USE_JSON"):
		return models.ActionUseJSON
	case strings.Contains(upper, "USE CLICKUP") || strings.Contains(upper, "USE_CLICKUP"):
		return models.ActionUseClickUp
	case strings.Contains(upper, "REVIEW"):
		return models.ActionReview
	default:
		return models.ActionReview
	}
}

// unquoteValue は両端の二重引用符を取り除きます
func unquoteValue(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

// FindDirective は(ストーリータイトル, フィールド)で指示を検索します
func FindDirective(directives []models.Directive, storyTitle, field string) (*models.Directive, bool) {
	for i := range directives {
		if directives[i].StoryTitle == storyTitle && directives[i].Field == field {
			return &directives[i], true
		}
	}
	return nil, false
}
