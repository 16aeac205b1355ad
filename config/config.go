package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// ClickUp API設定
	ClickUpURL      string
	ClickUpAPIToken string
	ClickUpListID   string

	// カスタムフィールド名の手がかり（部分一致で探索する）
	ExternalIDFieldHint    string
	BusinessValueFieldHint string

	// ファイルパス
	StoriesJSON string
	ReportPath  string
	BackupDir   string
	OutDir      string
}

// Policy は照合・マージの方針をまとめた不変の設定値です。
// 実行ごとにCLIフラグで上書きした値を各エンジンのコンストラクタへ渡します
type Policy struct {
	TitleThreshold     float64 // タイトル類似度の下限
	UserStoryThreshold float64 // ユーザーストーリー類似度の下限
	AmbiguityWindow    float64 // 曖昧判定のスコア差
	TitleWeight        float64
	UserStoryWeight    float64
	OrphanPrefix       string
	ReportLookahead    int // 推奨行を探す先読み行数の上限
}

// DefaultPolicy は既定の方針を返します
func DefaultPolicy() Policy {
	return Policy{
		TitleThreshold:     0.60,
		UserStoryThreshold: 0.60,
		AmbiguityWindow:    0.10,
		TitleWeight:        0.6,
		UserStoryWeight:    0.4,
		OrphanPrefix:       "(ORPHAN) ",
		ReportLookahead:    10,
	}
}

// LoadConfig は環境変数から設定を読み込みます
func LoadConfig() (*Config, error) {
	// .envファイルを読み込む
	_ = godotenv.Load()

	config := &Config{
		ClickUpURL:             strings.TrimRight(getEnvWithDefault("CLICKUP_URL", "https://api.clickup.com/api/v2"), "/"),
		ClickUpAPIToken:        os.Getenv("CLICKUP_API_TOKEN"),
		ClickUpListID:          os.Getenv("CLICKUP_LIST_ID"),
		ExternalIDFieldHint:    getEnvWithDefault("CLICKUP_EXTERNAL_ID_FIELD", "external id"),
		BusinessValueFieldHint: getEnvWithDefault("CLICKUP_BUSINESS_VALUE_FIELD", "business value"),
		StoriesJSON:            getEnvWithDefault("STORIES_JSON", "stories.json"),
		ReportPath:             getEnvWithDefault("PARITY_REPORT", "simple-parity-report.md"),
		BackupDir:              getEnvWithDefault("BACKUP_DIR", "backups"),
		OutDir:                 getEnvWithDefault("OUT_DIR", "out"),
	}

	return config, nil
}

// Validate はリモート操作に必須の設定を検査します（欠落は致命的エラー）
func (c *Config) Validate() error {
	if c.ClickUpAPIToken == "" {
		return fmt.Errorf("CLICKUP_API_TOKEN が設定されていません")
	}
	if c.ClickUpListID == "" {
		return fmt.Errorf("CLICKUP_LIST_ID が設定されていません")
	}
	return nil
}

// デフォルト値付きで環境変数を取得
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// デフォルト値付きで環境変数を浮動小数点数として取得
func getEnvAsFloatWithDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// PolicyFromEnv は既定方針に環境変数の上書きを適用して返します
func PolicyFromEnv() Policy {
	p := DefaultPolicy()
	p.TitleThreshold = getEnvAsFloatWithDefault("TITLE_SIM_THRESHOLD", p.TitleThreshold)
	p.UserStoryThreshold = getEnvAsFloatWithDefault("USER_STORY_SIM_THRESHOLD", p.UserStoryThreshold)
	return p
}
