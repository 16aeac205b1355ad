package models

// BusinessValue はストーリーのビジネス価値（固定3値）を表します
type BusinessValue string

const (
	BusinessValueCritical   BusinessValue = "Critical"
	BusinessValueImportant  BusinessValue = "Important"
	BusinessValueNiceToHave BusinessValue = "Nice to Have"
)

// StatusSet は正規化先となる正準ステータスの固定セットです
var StatusSet = []string{
	"captured",
	"defined",
	"prioritized",
	"blocked",
	"in progress",
	"in review",
	"ready for deploy",
	"deployed",
	"closed",
	"complete",
}

// StorySource はストーリーレコードの出所を表します
type StorySource string

const (
	SourceJSON    StorySource = "json"
	SourceClickUp StorySource = "clickup"
	SourceMerged  StorySource = "merged"
)

// StoryMeta はストーリーの出所メタデータです
type StoryMeta struct {
	Source    StorySource `json:"source,omitempty"`
	UpdatedAt string      `json:"updatedAt,omitempty"`
}

// Story は両システムで管理される1つのワークアイテムを表します
type Story struct {
	ExternalID         string        `json:"id,omitempty"`     // システム横断の安定キー
	TaskID             string        `json:"taskId,omitempty"` // ClickUp側タスクID（リモート由来のみ）
	Title              string        `json:"title"`
	UserStory          string        `json:"userStory"`
	Category           string        `json:"category,omitempty"`
	Points             int           `json:"points"`
	BusinessValue      BusinessValue `json:"businessValue"`
	Status             string        `json:"status"`
	AcceptanceCriteria []string      `json:"acceptanceCriteria"`
	Tags               []string      `json:"tags,omitempty"`
	Meta               *StoryMeta    `json:"_meta,omitempty"`
}

// MatchType はストーリー対応付けの種別を表します
type MatchType string

const (
	MatchExactID    MatchType = "exact_id"
	MatchFuzzyTitle MatchType = "fuzzy_title"
	MatchFuzzyStory MatchType = "fuzzy_story"
	MatchUnmatched  MatchType = "unmatched"
)

// StoryMatch はJSON側とClickUp側のストーリーの対応付け結果です
type StoryMatch struct {
	JSONStory    *Story
	ClickUpStory *Story
	JSONIndex    int // ローカル入力での位置（ClickUp側のみのマッチは-1）
	MatchType    MatchType
	Similarity   float64
	Ambiguous    bool
}

// DirectiveAction はレポート指示の種別を表します
type DirectiveAction string

const (
	ActionUseJSON    DirectiveAction = "USE_JSON"
	ActionUseClickUp DirectiveAction = "USE_CLICKUP"
	ActionReview     DirectiveAction = "REVIEW"
)

// Directive はパリティレポートから抽出した1件のフィールド指示です
type Directive struct {
	StoryTitle   string          `json:"storyTitle"`
	Field        string          `json:"field"`
	Action       DirectiveAction `json:"action"`
	JSONValue    string          `json:"jsonValue,omitempty"`
	ClickUpValue string          `json:"clickupValue,omitempty"`
}

// ParsedReport はパリティレポートの解析結果です
type ParsedReport struct {
	MissingInClickUp []string    // ClickUpに存在しないタイトル（CREATE対象）
	OrphansInClickUp []string    // JSONに存在しないタイトル（ORPHAN対象）
	FieldDirectives  []Directive // ストーリー×フィールド単位の指示
}

// ChangeSource はフィールド解決の根拠を表します
type ChangeSource string

const (
	SourceSideJSON     ChangeSource = "json"
	SourceSideClickUp  ChangeSource = "clickup"
	SourceReviewLonger ChangeSource = "review_longer"
)

// FieldChange は1フィールドの変更内容です
type FieldChange struct {
	Field     string          `json:"field"`
	Before    any             `json:"before"`
	After     any             `json:"after"`
	Source    ChangeSource    `json:"source"`
	Directive DirectiveAction `json:"directive,omitempty"`
}

// StoryUpdate は1ストーリーに対する更新計画です
type StoryUpdate struct {
	ExternalID    string        `json:"externalId"`
	Title         string        `json:"title"`
	ClickUpTaskID string        `json:"clickupTaskId,omitempty"`
	Changes       []FieldChange `json:"changes"`
}

// OrphanTarget はオーファンタグ付与の対象です
type OrphanTarget struct {
	TaskID string `json:"taskId"`
	Title  string `json:"title"`
}

// Ambiguity は人手確認が必要な曖昧マッチです
type Ambiguity struct {
	Reason  string   `json:"reason"`
	Stories []string `json:"stories"`
}

// PlanCounts は計画のカテゴリ別件数です
type PlanCounts struct {
	Create     int `json:"create"`
	Update     int `json:"update"`
	TagOrphans int `json:"tagOrphans"`
	Ambiguous  int `json:"ambiguities"`
}

// ReconciliationPlan は1回の照合実行の完全な出力です
type ReconciliationPlan struct {
	BatchID         string         `json:"batchId,omitempty"` // apply時のみ採番される
	Timestamp       string         `json:"timestamp"`
	CreateInClickUp []Story        `json:"createInClickUp"`
	UpdateClickUp   []StoryUpdate  `json:"updateClickUp"`
	UpdateJSON      []Story        `json:"updateJSON"` // マージ済みのローカル全ストーリー
	TagOrphans      []OrphanTarget `json:"tagOrphans"`
	Ambiguities     []Ambiguity    `json:"ambiguities"`
	Counts          PlanCounts     `json:"counts"`
}

// LedgerOperation は台帳エントリの操作種別です
type LedgerOperation string

const (
	OpCreate    LedgerOperation = "create"
	OpUpdate    LedgerOperation = "update"
	OpTagOrphan LedgerOperation = "tag_orphan"
)

// LedgerField は台帳に記録する1フィールドの前後値です
type LedgerField struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// LedgerEntry はリモート側で実行した1操作の監査記録です。
// ClickUpDateUpdatedBefore は操作直前に観測したリモートの最終更新時刻で、
// revert時のコンフリクト検出に使われます
type LedgerEntry struct {
	TaskID                   string          `json:"taskId"`
	ExternalID               string          `json:"externalId"`
	Operation                LedgerOperation `json:"operation"`
	TitleBefore              string          `json:"titleBefore"`
	TitleAfter               string          `json:"titleAfter"`
	Fields                   []LedgerField   `json:"fields"`
	UpdatedAt                string          `json:"updatedAt"`
	ClickUpDateUpdatedBefore string          `json:"clickupDateUpdatedBefore,omitempty"`
}

// BatchBackupPaths はバッチごとのバックアップファイルの場所です
type BatchBackupPaths struct {
	ClickUpExport    string `json:"clickupExport"`
	ClickUpExportCSV string `json:"clickupExportCsv"`
	InputJSON        string `json:"inputJson"`
	Ledger           string `json:"ledger"`
}

// BatchAudit は1回のapplyバッチの監査メタデータです
type BatchAudit struct {
	BatchID       string           `json:"batchId"`
	Timestamp     string           `json:"timestamp"`
	InputJSONPath string           `json:"inputJsonPath"`
	ReportPath    string           `json:"reportPath"`
	BackupPaths   BatchBackupPaths `json:"backupPaths"`
}

// RevertError はrevert中に発生した1件のエラーです
type RevertError struct {
	TaskID string `json:"taskId"`
	Error  string `json:"error"`
}

// RevertResult はrevert実行の集計結果です
type RevertResult struct {
	BatchID  string        `json:"batchId"`
	Reverted int           `json:"reverted"`
	Skipped  int           `json:"skipped"`
	Errors   []RevertError `json:"errors"`
}

// RemoteTask はコンフリクト検査に使うリモートタスクの現在状態です
type RemoteTask struct {
	ID          string
	Name        string
	Status      string
	DateUpdated string // RFC3339形式（未取得時は空）
}
