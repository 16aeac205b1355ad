package services

import (
	"strings"

	"resolvedelta/config"
	"resolvedelta/models"
)

// Matcher はJSON側とClickUp側のストーリーを対応付けます
type Matcher struct {
	policy config.Policy
}

// NewMatcher は新しいMatcherを作成します
func NewMatcher(policy config.Policy) *Matcher {
	return &Matcher{policy: policy}
}

// Similarity は2つの文字列の類似度を0〜1で返します。
// 正規化後に3文字以上の単語へ分割し、小さい方の単語集合のうち
// 相手側の単語と部分一致（どちらの方向でも）する数を、大きい方の
// 集合サイズで割った値を類似度とします
func (m *Matcher) Similarity(a, b string) float64 {
	normA := ComparisonForm(a)
	normB := ComparisonForm(b)

	if normA == normB {
		return 1.0
	}

	wordsA := longWords(normA)
	wordsB := longWords(normB)

	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	smaller, larger := wordsA, wordsB
	if len(wordsB) < len(wordsA) {
		smaller, larger = wordsB, wordsA
	}

	matches := 0
	for _, w := range smaller {
		for _, o := range larger {
			if strings.Contains(o, w) || strings.Contains(w, o) {
				matches++
				break
			}
		}
	}

	return float64(matches) / float64(len(larger))
}

// longWords は3文字以上の単語だけを抽出します
func longWords(s string) []string {
	fields := strings.Fields(s)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			words = append(words, f)
		}
	}
	return words
}

// Match はすべてのストーリーをちょうど1回ずつStoryMatchへ振り分けます。
// パス1: 外部IDの完全一致。パス2: 残りをタイトル／ユーザーストーリーの
// ファジー類似度で対応付け（タイトル類似度が閾値未満の候補は対象外）。
// スコアが同点の場合は先に現れた候補を採用するため、入力順が同じなら
// 結果は決定的です
func (m *Matcher) Match(jsonStories, clickupStories []models.Story) []models.StoryMatch {
	matches := make([]models.StoryMatch, 0, len(jsonStories)+len(clickupStories))

	jsonUsed := make([]bool, len(jsonStories))
	clickupUsed := make([]bool, len(clickupStories))

	// パス1: 外部IDの完全一致
	for i := range jsonStories {
		if jsonStories[i].ExternalID == "" {
			continue
		}
		for j := range clickupStories {
			if clickupUsed[j] {
				continue
			}
			if clickupStories[j].ExternalID == jsonStories[i].ExternalID {
				matches = append(matches, models.StoryMatch{
					JSONStory:    &jsonStories[i],
					ClickUpStory: &clickupStories[j],
					JSONIndex:    i,
					MatchType:    models.MatchExactID,
					Similarity:   1.0,
				})
				jsonUsed[i] = true
				clickupUsed[j] = true
				break
			}
		}
	}

	// パス2: 残りのファジーマッチ
	for i := range jsonStories {
		if jsonUsed[i] {
			continue
		}

		bestIdx := -1
		bestScore := 0.0
		bestType := models.MatchFuzzyTitle
		candidateScores := make(map[int]float64)

		for j := range clickupStories {
			if clickupUsed[j] {
				continue
			}

			titleScore := m.Similarity(jsonStories[i].Title, clickupStories[j].Title)
			storyScore := m.Similarity(jsonStories[i].UserStory, clickupStories[j].UserStory)
			combined := titleScore*m.policy.TitleWeight + storyScore*m.policy.UserStoryWeight

			// タイトル類似度が閾値に届かない候補は採用しない
			if titleScore < m.policy.TitleThreshold {
				continue
			}

			candidateScores[j] = combined

			if combined > bestScore {
				bestScore = combined
				bestIdx = j
				if titleScore > storyScore {
					bestType = models.MatchFuzzyTitle
				} else {
					bestType = models.MatchFuzzyStory
				}
			}
		}

		if bestIdx < 0 {
			continue
		}

		// 勝者と近いスコアの候補が他にあれば曖昧マッチとする
		ambiguous := false
		for j, score := range candidateScores {
			if j == bestIdx {
				continue
			}
			if bestScore-score < m.policy.AmbiguityWindow && score-bestScore < m.policy.AmbiguityWindow {
				ambiguous = true
				break
			}
		}

		matches = append(matches, models.StoryMatch{
			JSONStory:    &jsonStories[i],
			ClickUpStory: &clickupStories[bestIdx],
			JSONIndex:    i,
			MatchType:    bestType,
			Similarity:   bestScore,
			Ambiguous:    ambiguous,
		})
		jsonUsed[i] = true
		clickupUsed[bestIdx] = true
	}

	// 未対応のJSONストーリー
	for i := range jsonStories {
		if !jsonUsed[i] {
			matches = append(matches, models.StoryMatch{
				JSONStory: &jsonStories[i],
				JSONIndex: i,
				MatchType: models.MatchUnmatched,
			})
		}
	}

	// 未対応のClickUpストーリー（オーファン候補）
	for j := range clickupStories {
		if !clickupUsed[j] {
			matches = append(matches, models.StoryMatch{
				ClickUpStory: &clickupStories[j],
				JSONIndex:    -1,
				MatchType:    models.MatchUnmatched,
			})
		}
	}

	return matches
}

// FindByTitle はタイトルのファジー一致でストーリーを探します。
// 閾値以上で最高スコアのものを返し、見つからなければnilを返します
func (m *Matcher) FindByTitle(title string, stories []models.Story, threshold float64) *models.Story {
	var best *models.Story
	bestScore := 0.0

	for i := range stories {
		score := m.Similarity(title, stories[i].Title)
		if score >= threshold && score > bestScore {
			bestScore = score
			best = &stories[i]
		}
	}

	return best
}
