package services

import (
	"sort"
	"strings"
	"time"

	"resolvedelta/config"
	"resolvedelta/models"
	"resolvedelta/utils"
)

// Planner はマッチ結果・マージ結果・レポート指示から照合計画を組み立てます
type Planner struct {
	policy  config.Policy
	matcher *Matcher
	merger  *MergeEngine
}

// NewPlanner は新しいPlannerを作成します
func NewPlanner(policy config.Policy, matcher *Matcher, merger *MergeEngine) *Planner {
	return &Planner{
		policy:  policy,
		matcher: matcher,
		merger:  merger,
	}
}

// Build はStoryMatch一覧とレポート解析結果から照合計画を構築します。
// 計画は構築後に変更されません（BatchIDのみapply直前に採番されます）
func (p *Planner) Build(matches []models.StoryMatch, report models.ParsedReport) models.ReconciliationPlan {
	plan := models.ReconciliationPlan{
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		CreateInClickUp: []models.Story{},
		UpdateClickUp:   []models.StoryUpdate{},
		UpdateJSON:      []models.Story{},
		TagOrphans:      []models.OrphanTarget{},
		Ambiguities:     []models.Ambiguity{},
	}

	// マージでJSON側を置き換えるための入力位置→マージ結果の索引。
	// タイトルは重複しうるため位置で引く
	mergedByIndex := make(map[int]models.Story)

	for _, match := range matches {
		// 曖昧マッチは人手確認へ回し、自動の作成・更新からは除外する
		if match.Ambiguous {
			stories := []string{}
			if match.JSONStory != nil {
				stories = append(stories, match.JSONStory.Title)
			}
			if match.ClickUpStory != nil {
				stories = append(stories, match.ClickUpStory.Title)
			}
			plan.Ambiguities = append(plan.Ambiguities, models.Ambiguity{
				Reason:  "Multiple similar candidates found",
				Stories: stories,
			})
			continue
		}

		switch {
		case match.MatchType == models.MatchUnmatched && match.JSONStory != nil && match.ClickUpStory == nil:
			// レポートのmissingリストに挙がっているものだけを作成対象にする
			// （上流が意図的に除外したアイテムを勝手に作らないための照合）
			if p.listedByTitle(report.MissingInClickUp, *match.JSONStory) {
				plan.CreateInClickUp = append(plan.CreateInClickUp, *match.JSONStory)
			}

		case match.MatchType == models.MatchUnmatched && match.ClickUpStory != nil && match.JSONStory == nil:
			// orphansリストに挙がっていて、まだタグ付けされていないものだけ対象
			if p.listedByTitle(report.OrphansInClickUp, *match.ClickUpStory) &&
				!strings.HasPrefix(match.ClickUpStory.Title, p.policy.OrphanPrefix) {
				taskID := match.ClickUpStory.TaskID
				if taskID == "" {
					taskID = match.ClickUpStory.ExternalID
				}
				plan.TagOrphans = append(plan.TagOrphans, models.OrphanTarget{
					TaskID: taskID,
					Title:  match.ClickUpStory.Title,
				})
			}

		case match.JSONStory != nil && match.ClickUpStory != nil:
			merged, changes, err := p.merger.Merge(match, report.FieldDirectives)
			if err != nil {
				utils.LogWarn("マージをスキップします '%s': %v", match.JSONStory.Title, err)
				continue
			}

			if len(changes) == 0 {
				continue
			}

			externalID := match.ClickUpStory.ExternalID
			if externalID == "" {
				externalID = match.ClickUpStory.Title
			}

			plan.UpdateClickUp = append(plan.UpdateClickUp, models.StoryUpdate{
				ExternalID:    externalID,
				Title:         match.ClickUpStory.Title,
				ClickUpTaskID: match.ClickUpStory.TaskID,
				Changes:       changes,
			})
			mergedByIndex[match.JSONIndex] = merged
		}
	}

	// ローカル全ストーリーを入力順のまま保持し、マージされたものだけ置き換える
	type localEntry struct {
		index int
		story models.Story
	}
	locals := make([]localEntry, 0, len(matches))
	for _, match := range matches {
		if match.JSONStory == nil {
			continue
		}
		story := *match.JSONStory
		if merged, ok := mergedByIndex[match.JSONIndex]; ok {
			story = merged
		}
		locals = append(locals, localEntry{index: match.JSONIndex, story: story})
	}
	sort.Slice(locals, func(i, j int) bool { return locals[i].index < locals[j].index })
	for _, entry := range locals {
		plan.UpdateJSON = append(plan.UpdateJSON, entry.story)
	}

	plan.Counts = models.PlanCounts{
		Create:     len(plan.CreateInClickUp),
		Update:     len(plan.UpdateClickUp),
		TagOrphans: len(plan.TagOrphans),
		Ambiguous:  len(plan.Ambiguities),
	}

	return plan
}

// listedByTitle はリスト中のいずれかのタイトルがストーリーに
// ファジー一致するかを返します
func (p *Planner) listedByTitle(titles []string, story models.Story) bool {
	candidates := []models.Story{story}
	for _, title := range titles {
		if p.matcher.FindByTitle(title, candidates, p.policy.TitleThreshold) != nil {
			return true
		}
	}
	return false
}
