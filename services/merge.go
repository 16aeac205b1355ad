package services

import (
	"fmt"
	"strings"
	"time"

	"resolvedelta/config"
	"resolvedelta/models"
)

// MergeEngine は対応付け済みのストーリーペアを1つのレコードへ統合します。
// 各フィールドは指示優先・方針フォールバックの順で解決されます
type MergeEngine struct {
	policy config.Policy
}

// NewMergeEngine は新しいMergeEngineを作成します
func NewMergeEngine(policy config.Policy) *MergeEngine {
	return &MergeEngine{policy: policy}
}

// Merge は両側が揃ったマッチをマージし、マージ結果と変更一覧を返します。
// 変更はJSON側の値から変わったフィールドについてのみ記録されます
func (e *MergeEngine) Merge(match models.StoryMatch, directives []models.Directive) (models.Story, []models.FieldChange, error) {
	if match.JSONStory == nil || match.ClickUpStory == nil {
		return models.Story{}, nil, fmt.Errorf("マージできません: マッチに片側のストーリーがありません")
	}

	jsonStory := *match.JSONStory
	clickupStory := *match.ClickUpStory

	merged := jsonStory
	changes := make([]models.FieldChange, 0)

	// タイトル（既定はJSON優先）
	if change := e.mergeStringField("title", jsonStory.Title, clickupStory.Title, jsonStory.Title, directives, false); change != nil {
		merged.Title = change.After.(string)
		changes = append(changes, *change)
	}

	// ユーザーストーリー（既定は長い方を優先）
	if change := e.mergeStringField("userStory", jsonStory.UserStory, clickupStory.UserStory, jsonStory.Title, directives, true); change != nil {
		merged.UserStory = change.After.(string)
		changes = append(changes, *change)
	}

	// ポイント（特別則: JSONが0でClickUpが正ならClickUpを採用）
	if change := e.mergePoints(jsonStory, clickupStory, directives); change != nil {
		merged.Points = change.After.(int)
		changes = append(changes, *change)
	}

	// ビジネス価値（既定はJSON優先）
	if change := e.mergeStringField("businessValue", string(jsonStory.BusinessValue), string(clickupStory.BusinessValue), jsonStory.Title, directives, false); change != nil {
		merged.BusinessValue = models.BusinessValue(change.After.(string))
		changes = append(changes, *change)
	}

	// ステータス（既定はJSON優先）
	if change := e.mergeStringField("status", jsonStory.Status, clickupStory.Status, jsonStory.Title, directives, false); change != nil {
		merged.Status = change.After.(string)
		changes = append(changes, *change)
	}

	// 受け入れ条件（指示がなければ大きい集合を優先）
	if change := e.mergeAcceptanceCriteria(jsonStory, clickupStory, directives); change != nil {
		merged.AcceptanceCriteria = change.After.([]string)
		changes = append(changes, *change)
	}

	// タグ（常に両側の正規化済み和集合。指示の対象外）
	if change := e.mergeTags(jsonStory, clickupStory); change != nil {
		merged.Tags = change.After.([]string)
		changes = append(changes, *change)
	}

	// カテゴリ。ここで効果を持つ指示はUSE_CLICKUPのみで、
	// USE_JSONとREVIEWは意図的に無効のまま維持している
	if jsonStory.Category != clickupStory.Category {
		if directive, ok := FindDirective(directives, jsonStory.Title, "category"); ok {
			if directive.Action == models.ActionUseClickUp && clickupStory.Category != "" {
				merged.Category = clickupStory.Category
				changes = append(changes, models.FieldChange{
					Field:     "category",
					Before:    jsonStory.Category,
					After:     clickupStory.Category,
					Source:    models.SourceSideClickUp,
					Directive: directive.Action,
				})
			}
		}
	}

	merged.Meta = &models.StoryMeta{
		Source:    models.SourceMerged,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	return merged, changes, nil
}

// mergeStringField は文字列フィールドを指示または既定方針で解決します。
// preferLongerは指示がない場合の既定を「長い方優先」にします。
// REVIEW指示はフィールドの既定に関わらず長い方優先のヒューリスティックを使います
func (e *MergeEngine) mergeStringField(field, jsonValue, clickupValue, storyTitle string, directives []models.Directive, preferLonger bool) *models.FieldChange {
	if AreEqual(jsonValue, clickupValue) {
		return nil
	}

	directive, hasDirective := FindDirective(directives, storyTitle, field)

	finalValue := jsonValue
	source := models.SourceSideJSON
	var action models.DirectiveAction

	switch {
	case hasDirective && directive.Action == models.ActionUseClickUp:
		finalValue = clickupValue
		source = models.SourceSideClickUp
		action = directive.Action
	case hasDirective && directive.Action == models.ActionUseJSON:
		finalValue = jsonValue
		action = directive.Action
	case (hasDirective && directive.Action == models.ActionReview) || (!hasDirective && preferLonger):
		// 長い方のテキストを採用（同長はJSON側を維持）
		if len(strings.TrimSpace(clickupValue)) > len(strings.TrimSpace(jsonValue)) {
			finalValue = clickupValue
			source = models.SourceReviewLonger
		}
		if hasDirective {
			action = directive.Action
		}
	}

	if finalValue == jsonValue {
		return nil
	}

	return &models.FieldChange{
		Field:     field,
		Before:    jsonValue,
		After:     finalValue,
		Source:    source,
		Directive: action,
	}
}

// mergePoints はポイントの特別則を適用します
func (e *MergeEngine) mergePoints(jsonStory, clickupStory models.Story, directives []models.Directive) *models.FieldChange {
	jsonPoints := jsonStory.Points
	clickupPoints := clickupStory.Points

	if jsonPoints == clickupPoints {
		return nil
	}

	directive, hasDirective := FindDirective(directives, jsonStory.Title, "points")

	finalPoints := jsonPoints
	source := models.SourceSideJSON
	var action models.DirectiveAction

	switch {
	case hasDirective && directive.Action == models.ActionUseClickUp:
		finalPoints = clickupPoints
		source = models.SourceSideClickUp
		action = directive.Action
	case hasDirective && directive.Action == models.ActionUseJSON:
		finalPoints = jsonPoints
		action = directive.Action
	case jsonPoints == 0 && clickupPoints > 0:
		// JSON側が未見積もりならClickUp側の値を採用する
		finalPoints = clickupPoints
		source = models.SourceSideClickUp
		if hasDirective {
			action = directive.Action
		}
	}

	if finalPoints == jsonPoints {
		return nil
	}

	return &models.FieldChange{
		Field:     "points",
		Before:    jsonPoints,
		After:     finalPoints,
		Source:    source,
		Directive: action,
	}
}

// mergeAcceptanceCriteria は受け入れ条件を解決します。
// 指示で片側を強制できるほか、REVIEW指示または指示なしで差分がある場合は
// 大きい方の集合を採用します（同数はJSON側を維持）
func (e *MergeEngine) mergeAcceptanceCriteria(jsonStory, clickupStory models.Story, directives []models.Directive) *models.FieldChange {
	jsonCriteria := jsonStory.AcceptanceCriteria
	clickupCriteria := clickupStory.AcceptanceCriteria

	if AreStringSlicesEqual(jsonCriteria, clickupCriteria) {
		return nil
	}

	directive, hasDirective := FindDirective(directives, jsonStory.Title, "acceptance_criteria")

	finalCriteria := jsonCriteria
	source := models.SourceSideJSON
	var action models.DirectiveAction

	switch {
	case hasDirective && directive.Action == models.ActionUseClickUp:
		finalCriteria = clickupCriteria
		source = models.SourceSideClickUp
		action = directive.Action
	case hasDirective && directive.Action == models.ActionUseJSON:
		finalCriteria = jsonCriteria
		action = directive.Action
	default:
		// REVIEWまたは指示なし: 大きい方の集合を採用
		if len(clickupCriteria) > len(jsonCriteria) {
			finalCriteria = clickupCriteria
			source = models.SourceReviewLonger
		}
		if hasDirective {
			action = directive.Action
		}
	}

	if AreStringSlicesEqual(finalCriteria, jsonCriteria) {
		return nil
	}

	return &models.FieldChange{
		Field:     "acceptanceCriteria",
		Before:    jsonCriteria,
		After:     finalCriteria,
		Source:    source,
		Directive: action,
	}
}

// mergeTags は両側のタグの正規化済み和集合を作ります。
// どちらかのタグを落とすことは望ましくないため、指示では制御できません
func (e *MergeEngine) mergeTags(jsonStory, clickupStory models.Story) *models.FieldChange {
	union := append(append([]string(nil), jsonStory.Tags...), clickupStory.Tags...)
	finalTags := NormalizeTags(union)

	if AreStringSlicesEqual(finalTags, jsonStory.Tags) {
		return nil
	}

	return &models.FieldChange{
		Field:  "tags",
		Before: jsonStory.Tags,
		After:  finalTags,
		Source: models.SourceReviewLonger, // 和集合
	}
}
