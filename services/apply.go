package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"resolvedelta/config"
	"resolvedelta/models"
	"resolvedelta/utils"
)

// RemoteStore はリモートトラッカーへの操作を抽象化します。
// ApplyServiceとRevertServiceへ注入することで、テストでは
// ネットワークなしのフェイク実装に差し替えられます
type RemoteStore interface {
	// ListTasks はリスト内の全タスクをStoryとして取得します
	ListTasks(listID string) ([]models.Story, error)
	// GetTask はタスクの現在状態（最終更新時刻つき）を取得します
	GetTask(taskID string) (models.RemoteTask, error)
	// CreateTask はタスクを作成し、タスクIDとURLを返します
	CreateTask(listID string, story models.Story, batchID string) (taskID, url string, err error)
	// UpdateTask はフィールド変更を適用します
	UpdateTask(taskID string, changes []models.FieldChange, batchID string) error
	// AddComment はタスクへコメントを追加します
	AddComment(taskID, comment string) error
	// TagOrphan はタイトルへオーファン接頭辞を付与します
	TagOrphan(taskID, currentTitle, batchID string) error
	// RemoveOrphanTag はオーファン接頭辞を取り除きます
	RemoveOrphanTag(taskID, currentTitle, batchID string) error
}

// NewBatchID はバッチ識別子（日時＋ランダム接尾辞）を生成します
func NewBatchID() string {
	now := time.Now()
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return fmt.Sprintf("%s-%s-%s", now.Format("20060102"), now.Format("150405"), suffix)
}

// ChangeSummary は変更一覧からタスクコメント用のサマリを生成します
func ChangeSummary(changes []models.FieldChange, batchID string) string {
	lines := []string{fmt.Sprintf("Synced by reconciliation (batch %s)", batchID), ""}
	for _, change := range changes {
		lines = append(lines, fmt.Sprintf("- **%s**: %v -> %v", change.Field, change.Before, change.After))
	}
	return strings.Join(lines, "\n")
}

// ApplyService は照合計画をリモートへ適用し、台帳を記録します。
// 1ストーリーの失敗はログに残してバッチ全体は継続します
type ApplyService struct {
	config  *config.Config
	policy  config.Policy
	store   RemoteStore
	batches *BatchStore
}

// NewApplyService は新しいApplyServiceを作成します
func NewApplyService(cfg *config.Config, policy config.Policy, store RemoteStore, batches *BatchStore) *ApplyService {
	return &ApplyService{
		config:  cfg,
		policy:  policy,
		store:   store,
		batches: batches,
	}
}

// Apply は計画を実行します。clickupStoriesにはマッチングに使った
// 取得済みエクスポートを渡します。リモート操作は計画順に1件ずつ行い、
// 成功のたびに台帳を書き出します
func (a *ApplyService) Apply(plan *models.ReconciliationPlan, storyFile *StoryFile, jsonPath string, clickupStories []models.Story) (*models.BatchAudit, error) {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "apply実行")

	batchID := plan.BatchID
	if batchID == "" {
		return nil, fmt.Errorf("計画にバッチIDが採番されていません")
	}

	if err := a.batches.EnsureBatchDir(batchID); err != nil {
		return nil, err
	}

	utils.LogInfo("バックアップを作成します: %s", a.batches.BatchDir(batchID))

	// apply前のClickUp側エクスポートを保存
	exportJSON, exportCSV, err := a.batches.WriteClickUpExport(batchID, clickupStories)
	if err != nil {
		return nil, err
	}

	// apply前のローカルファイルをバックアップ
	inputBackup, err := a.batches.CopyLocalFile(batchID, jsonPath)
	if err != nil {
		return nil, err
	}

	ledger := make([]models.LedgerEntry, 0)

	// タスク作成
	if len(plan.CreateInClickUp) > 0 {
		utils.LogInfo("ClickUpへ %d 件のタスクを作成します", len(plan.CreateInClickUp))
	}
	for _, story := range plan.CreateInClickUp {
		taskID, url, err := a.store.CreateTask(a.config.ClickUpListID, story, batchID)
		if err != nil {
			utils.LogError("タスク作成に失敗しました '%s': %v", story.Title, err)
			continue
		}
		utils.LogInfo("作成しました: %s (%s)", story.Title, url)

		externalID := story.ExternalID
		if externalID == "" {
			externalID = story.Title
		}

		ledger = append(ledger, models.LedgerEntry{
			TaskID:      taskID,
			ExternalID:  externalID,
			Operation:   models.OpCreate,
			TitleBefore: "",
			TitleAfter:  story.Title,
			Fields: []models.LedgerField{
				{Field: "points", Before: nil, After: story.Points},
				{Field: "businessValue", Before: nil, After: string(story.BusinessValue)},
				{Field: "status", Before: nil, After: story.Status},
			},
			UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		})
		a.persistLedger(batchID, ledger)
	}

	// タスク更新
	if len(plan.UpdateClickUp) > 0 {
		utils.LogInfo("ClickUpの %d 件のタスクを更新します", len(plan.UpdateClickUp))
	}
	for _, update := range plan.UpdateClickUp {
		if update.ClickUpTaskID == "" {
			utils.LogWarn("タスクIDがないためスキップします: %s", update.Title)
			continue
		}

		// 操作直前のリモート状態を観測する（revert時のコンフリクト検出用）
		current, err := a.store.GetTask(update.ClickUpTaskID)
		if err != nil {
			utils.LogError("タスク取得に失敗しました '%s': %v", update.Title, err)
			continue
		}

		if err := a.store.UpdateTask(update.ClickUpTaskID, update.Changes, batchID); err != nil {
			utils.LogError("タスク更新に失敗しました '%s': %v", update.Title, err)
			continue
		}
		utils.LogInfo("更新しました: %s (%d フィールド)", update.Title, len(update.Changes))

		if err := a.store.AddComment(update.ClickUpTaskID, ChangeSummary(update.Changes, batchID)); err != nil {
			utils.LogWarn("コメント追加に失敗しました '%s': %v", update.Title, err)
		}

		fields := make([]models.LedgerField, 0, len(update.Changes))
		for _, change := range update.Changes {
			fields = append(fields, models.LedgerField{
				Field:  change.Field,
				Before: change.Before,
				After:  change.After,
			})
		}

		ledger = append(ledger, models.LedgerEntry{
			TaskID:                   update.ClickUpTaskID,
			ExternalID:               update.ExternalID,
			Operation:                models.OpUpdate,
			TitleBefore:              current.Name,
			TitleAfter:               update.Title,
			Fields:                   fields,
			UpdatedAt:                time.Now().UTC().Format(time.RFC3339),
			ClickUpDateUpdatedBefore: current.DateUpdated,
		})
		a.persistLedger(batchID, ledger)
	}

	// オーファンタグ付与
	if len(plan.TagOrphans) > 0 {
		utils.LogInfo("%d 件のオーファンへタグを付与します", len(plan.TagOrphans))
	}
	for _, orphan := range plan.TagOrphans {
		current, err := a.store.GetTask(orphan.TaskID)
		if err != nil {
			utils.LogError("タスク取得に失敗しました '%s': %v", orphan.Title, err)
			continue
		}

		if err := a.store.TagOrphan(orphan.TaskID, orphan.Title, batchID); err != nil {
			utils.LogError("オーファンタグ付与に失敗しました '%s': %v", orphan.Title, err)
			continue
		}
		utils.LogInfo("タグ付与しました: %s", orphan.Title)

		ledger = append(ledger, models.LedgerEntry{
			TaskID:                   orphan.TaskID,
			ExternalID:               orphan.TaskID,
			Operation:                models.OpTagOrphan,
			TitleBefore:              orphan.Title,
			TitleAfter:               a.policy.OrphanPrefix + orphan.Title,
			Fields:                   []models.LedgerField{},
			UpdatedAt:                time.Now().UTC().Format(time.RFC3339),
			ClickUpDateUpdatedBefore: current.DateUpdated,
		})
		a.persistLedger(batchID, ledger)
	}

	// マージ済みローカルストーリーを元のコンテナ形状のまま書き戻す
	if len(plan.UpdateJSON) > 0 {
		storyFile.ReplaceStories(plan.UpdateJSON)
		if err := storyFile.Save(jsonPath); err != nil {
			utils.LogError("ローカルファイル書き戻しに失敗しました: %v", err)
		} else {
			utils.LogInfo("ローカルファイルを更新しました: %s", jsonPath)
		}
	}

	// 最終的な台帳を確定
	if err := a.batches.WriteLedger(batchID, ledger); err != nil {
		return nil, err
	}
	utils.LogInfo("台帳を保存しました: %s (%d エントリ)", a.batches.LedgerPath(batchID), len(ledger))

	audit := models.BatchAudit{
		BatchID:       batchID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		InputJSONPath: jsonPath,
		ReportPath:    a.config.ReportPath,
		BackupPaths: models.BatchBackupPaths{
			ClickUpExport:    exportJSON,
			ClickUpExportCSV: exportCSV,
			InputJSON:        inputBackup,
			Ledger:           a.batches.LedgerPath(batchID),
		},
	}
	if err := a.batches.WriteAudit(audit); err != nil {
		utils.LogWarn("監査メタデータの保存に失敗しました: %v", err)
	}

	utils.LogInfo("apply完了: 作成=%d, 更新=%d, タグ付与=%d, バッチID=%s",
		plan.Counts.Create, plan.Counts.Update, plan.Counts.TagOrphans, batchID)

	return &audit, nil
}

// persistLedger は操作成功のたびに台帳を書き出します（失敗は警告のみ）
func (a *ApplyService) persistLedger(batchID string, ledger []models.LedgerEntry) {
	if err := a.batches.WriteLedger(batchID, ledger); err != nil {
		utils.LogWarn("台帳の途中保存に失敗しました: %v", err)
	}
}
