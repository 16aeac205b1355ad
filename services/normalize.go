package services

import (
	"sort"
	"strings"

	"resolvedelta/models"
)

// NormalizeText は前後の空白を除去し、連続する空白を1つに畳みます
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ComparisonForm は比較用の正規化形（正規化＋小文字化）を返します
func ComparisonForm(text string) string {
	return strings.ToLower(NormalizeText(text))
}

// NormalizeStatus はステータスを正準セットへ解決します。
// 戻り値の第2値は完全一致で解決できたかどうかです。
// どちらの方向でも部分一致しない場合は入力をそのまま返します
// （呼び出し側は未解決ステータスを不正として扱う必要があります）
func NormalizeStatus(status string) (string, bool) {
	normalized := ComparisonForm(status)

	// まず完全一致を試す
	for _, s := range models.StatusSet {
		if s == normalized {
			return s, true
		}
	}

	// 双方向の部分一致を試す
	for _, s := range models.StatusSet {
		if strings.Contains(normalized, s) || strings.Contains(s, normalized) {
			return s, false
		}
	}

	// 解決できない場合は元の値を通す
	return status, false
}

// IsValidStatus はステータスが正準セットに含まれるかを返します
func IsValidStatus(status string) bool {
	for _, s := range models.StatusSet {
		if s == status {
			return true
		}
	}
	return false
}

// NormalizeBusinessValue はキーワード分類でビジネス価値を正準値へ解決します。
// 戻り値の第2値はキーワードで判定できたかどうかで、falseの場合は
// 既定値のImportantへフォールバックしています
func NormalizeBusinessValue(value string) (models.BusinessValue, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))

	switch {
	case strings.Contains(normalized, "critical") || strings.Contains(normalized, "high"):
		return models.BusinessValueCritical, true
	case strings.Contains(normalized, "important") || strings.Contains(normalized, "medium"):
		return models.BusinessValueImportant, true
	case strings.Contains(normalized, "nice") || strings.Contains(normalized, "low"):
		return models.BusinessValueNiceToHave, true
	}

	// 判定できない場合はImportantを既定値とする
	return models.BusinessValueImportant, false
}

// NormalizeTags はタグを正規化します（trim・空要素除去・小文字化・重複排除・ソート）
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(tags))

	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		result = append(result, t)
	}

	sort.Strings(result)
	return result
}

// NormalizeAcceptanceCriteria は受け入れ条件を正規化します
// （trim・空要素除去・重複排除・アルファベット順ソート）
func NormalizeAcceptanceCriteria(criteria []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(criteria))

	for _, c := range criteria {
		normalized := NormalizeText(c)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		result = append(result, normalized)
	}

	sort.Strings(result)
	return result
}

// NormalizeStory はストーリー全体を正規化した新しい値を返します
func NormalizeStory(story models.Story) models.Story {
	normalized := story
	normalized.Title = NormalizeText(story.Title)
	normalized.UserStory = NormalizeText(story.UserStory)
	if story.Category != "" {
		normalized.Category = NormalizeText(story.Category)
	}
	normalized.Status, _ = NormalizeStatus(story.Status)
	normalized.AcceptanceCriteria = NormalizeAcceptanceCriteria(story.AcceptanceCriteria)
	normalized.Tags = NormalizeTags(story.Tags)
	return normalized
}

// AreEqual は正規化後の比較形で2つの文字列を比較します
func AreEqual(a, b string) bool {
	return ComparisonForm(a) == ComparisonForm(b)
}

// AreStringSlicesEqual は順序を無視して2つの文字列スライスを比較します
func AreStringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	sortedA := append([]string(nil), a...)
	sortedB := append([]string(nil), b...)
	sort.Strings(sortedA)
	sort.Strings(sortedB)

	for i := range sortedA {
		if !AreEqual(sortedA[i], sortedB[i]) {
			return false
		}
	}
	return true
}
