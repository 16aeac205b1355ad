package services

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"resolvedelta/models"
	"resolvedelta/utils"
)

// storySchemaJSON はローカルストーリーレコードのスキーマです。
// スキーマ違反のレコードは警告してスキップされます（実行は継続）
const storySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["title", "userStory"],
  "properties": {
    "id": { "type": "string" },
    "title": { "type": "string", "minLength": 1 },
    "userStory": { "type": "string", "minLength": 1 },
    "category": { "type": "string" },
    "points": { "type": "integer", "minimum": 0 },
    "businessValue": { "enum": ["Critical", "Important", "Nice to Have"] },
    "status": { "type": "string" },
    "acceptanceCriteria": { "type": "array", "items": { "type": "string" } },
    "tags": { "type": "array", "items": { "type": "string" } }
  }
}`

// StoryValidator はストーリーレコードをJSONスキーマで検証します
type StoryValidator struct {
	schema *jsonschema.Schema
}

// NewStoryValidator は新しいStoryValidatorを作成します
func NewStoryValidator() (*StoryValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(storySchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("スキーマ解析エラー: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("story.schema.json", doc); err != nil {
		return nil, fmt.Errorf("スキーマ登録エラー: %w", err)
	}

	schema, err := compiler.Compile("story.schema.json")
	if err != nil {
		return nil, fmt.Errorf("スキーマコンパイルエラー: %w", err)
	}

	return &StoryValidator{schema: schema}, nil
}

// Validate は1レコードをスキーマ検証します
func (v *StoryValidator) Validate(record any) error {
	return v.schema.Validate(record)
}

// StoryFile はローカルストーリーファイルの内容とコンテナ形状を保持します。
// 入力が {stories: [...]} のラップ形式なら、stories以外のキーを
// そのまま保持し、出力時も同じ形状を復元します
type StoryFile struct {
	Wrapped bool
	Extra   map[string]json.RawMessage // ラップ形式のstories以外のキー
	Stories []models.Story
}

// LoadStoryFile はローカルストーリーファイルを読み込み、各レコードを
// 検証・正規化します。不正なレコードは警告してスキップし、件数を返します
func LoadStoryFile(path string, validator *StoryValidator) (*StoryFile, int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("ストーリーファイル読み込みエラー: %w", err)
	}

	file := &StoryFile{}

	var rawRecords []json.RawMessage

	trimmed := strings.TrimSpace(string(content))
	if strings.HasPrefix(trimmed, "{") {
		// ラップ形式: {stories: [...], modelVersion, lastUpdated, ...}
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(content, &wrapper); err != nil {
			return nil, 0, fmt.Errorf("ストーリーファイル解析エラー: %w", err)
		}

		storiesRaw, ok := wrapper["stories"]
		if !ok {
			return nil, 0, fmt.Errorf("ストーリーファイルに stories キーがありません")
		}
		if err := json.Unmarshal(storiesRaw, &rawRecords); err != nil {
			return nil, 0, fmt.Errorf("stories 配列の解析エラー: %w", err)
		}

		file.Wrapped = true
		file.Extra = make(map[string]json.RawMessage)
		for key, value := range wrapper {
			if key != "stories" {
				file.Extra[key] = value
			}
		}
	} else {
		// 配列形式
		if err := json.Unmarshal(content, &rawRecords); err != nil {
			return nil, 0, fmt.Errorf("ストーリーファイル解析エラー: %w", err)
		}
	}

	skipped := 0
	for i, raw := range rawRecords {
		// スキーマ検証にはUnmarshalJSONでデコードした値を使う
		value, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
		if err != nil {
			utils.LogWarn("レコード %d の解析に失敗したためスキップします: %v", i+1, err)
			skipped++
			continue
		}

		if err := validator.Validate(value); err != nil {
			utils.LogWarn("レコード %d がスキーマ検証に失敗したためスキップします: %v", i+1, err)
			skipped++
			continue
		}

		var story models.Story
		if err := json.Unmarshal(raw, &story); err != nil {
			utils.LogWarn("レコード %d の変換に失敗したためスキップします: %v", i+1, err)
			skipped++
			continue
		}

		normalized := NormalizeStory(story)
		updatedAt := time.Now().UTC().Format(time.RFC3339)
		if story.Meta != nil && story.Meta.UpdatedAt != "" {
			updatedAt = story.Meta.UpdatedAt
		}
		normalized.Meta = &models.StoryMeta{
			Source:    models.SourceJSON,
			UpdatedAt: updatedAt,
		}

		file.Stories = append(file.Stories, normalized)
	}

	return file, skipped, nil
}

// ReplaceStories はストーリー一式を差し替えます（コンテナ形状は維持）
func (f *StoryFile) ReplaceStories(stories []models.Story) {
	f.Stories = stories
}

// Save は元のコンテナ形状を保ったままファイルへ書き戻します
func (f *StoryFile) Save(path string) error {
	var data []byte
	var err error

	if f.Wrapped {
		wrapper := make(map[string]any, len(f.Extra)+1)
		for key, value := range f.Extra {
			wrapper[key] = value
		}
		wrapper["stories"] = f.Stories
		data, err = json.MarshalIndent(wrapper, "", "  ")
	} else {
		data, err = json.MarshalIndent(f.Stories, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("ストーリーのエンコードエラー: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("ストーリーファイル書き込みエラー: %w", err)
	}

	return nil
}
