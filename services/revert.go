package services

import (
	"fmt"
	"strings"
	"time"

	"resolvedelta/config"
	"resolvedelta/models"
	"resolvedelta/utils"
)

// ScopeKind はrevert対象の範囲種別です
type ScopeKind string

const (
	ScopeAll      ScopeKind = "all"
	ScopeTask     ScopeKind = "task"
	ScopeExternal ScopeKind = "external"
)

// RevertScope はrevert対象の範囲です
type RevertScope struct {
	Kind ScopeKind
	ID   string
}

// ParseScope はスコープ文字列（all | task:<id> | external:<id>）を解析します
func ParseScope(s string) (RevertScope, error) {
	switch {
	case s == "" || s == "all":
		return RevertScope{Kind: ScopeAll}, nil
	case strings.HasPrefix(s, "task:"):
		id := strings.TrimPrefix(s, "task:")
		if id == "" {
			return RevertScope{}, fmt.Errorf("task: の後にIDが必要です")
		}
		return RevertScope{Kind: ScopeTask, ID: id}, nil
	case strings.HasPrefix(s, "external:"):
		id := strings.TrimPrefix(s, "external:")
		if id == "" {
			return RevertScope{}, fmt.Errorf("external: の後にIDが必要です")
		}
		return RevertScope{Kind: ScopeExternal, ID: id}, nil
	default:
		return RevertScope{}, fmt.Errorf("不正なスコープです: %s", s)
	}
}

// Disposition は1台帳エントリのrevert結果です
type Disposition string

const (
	DispositionReverted Disposition = "reverted"
	DispositionSkipped  Disposition = "skipped"
	DispositionError    Disposition = "error"
)

// EntryDisposition はレポート用にエントリと結果を対にしたものです
type EntryDisposition struct {
	Entry       models.LedgerEntry
	Disposition Disposition
	Detail      string
}

// RevertService は台帳を逆再生してバッチを取り消します。
// バッチ以後にリモート側で変更されたエントリはコンフリクトとして
// スキップし、バッチ後の編集を決して上書きしません
type RevertService struct {
	policy  config.Policy
	store   RemoteStore
	batches *BatchStore
}

// NewRevertService は新しいRevertServiceを作成します
func NewRevertService(policy config.Policy, store RemoteStore, batches *BatchStore) *RevertService {
	return &RevertService{
		policy:  policy,
		store:   store,
		batches: batches,
	}
}

// Revert はバッチの台帳を読み込み、スコープ内のエントリを逆順で取り消します。
// 各エントリはreverted/skipped/errorのいずれかに必ず解決され、
// 個別のエラーがあっても処理は継続します
func (r *RevertService) Revert(batchID string, scope RevertScope, dryRun bool) (*models.RevertResult, []EntryDisposition, error) {
	utils.LogInfo("revertを開始します: バッチ=%s, スコープ=%s, dry-run=%v", batchID, scope.Kind, dryRun)

	ledger, err := r.batches.LoadLedger(batchID)
	if err != nil {
		return nil, nil, err
	}
	utils.LogInfo("台帳を読み込みました: %d エントリ", len(ledger))

	// スコープでフィルタ
	entries := make([]models.LedgerEntry, 0, len(ledger))
	for _, entry := range ledger {
		switch scope.Kind {
		case ScopeTask:
			if entry.TaskID != scope.ID {
				continue
			}
		case ScopeExternal:
			if entry.ExternalID != scope.ID {
				continue
			}
		}
		entries = append(entries, entry)
	}
	utils.LogInfo("revert対象: %d エントリ", len(entries))

	result := &models.RevertResult{
		BatchID: batchID,
		Errors:  []models.RevertError{},
	}
	dispositions := make([]EntryDisposition, 0, len(entries))

	// 台帳の逆順で取り消す
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]

		if dryRun {
			utils.LogInfo("[DRY-RUN] %s を取り消します: %s", entry.Operation, entry.TitleBefore)
			result.Reverted++
			dispositions = append(dispositions, EntryDisposition{
				Entry:       entry,
				Disposition: DispositionReverted,
				Detail:      "dry-run",
			})
			continue
		}

		disposition := r.revertEntry(entry, batchID, result)
		dispositions = append(dispositions, disposition)
	}

	utils.LogInfo("revert完了: 取り消し=%d, スキップ=%d, エラー=%d",
		result.Reverted, result.Skipped, len(result.Errors))

	return result, dispositions, nil
}

// revertEntry は1エントリを取り消し、結果を集計へ反映します
func (r *RevertService) revertEntry(entry models.LedgerEntry, batchID string, result *models.RevertResult) EntryDisposition {
	current, err := r.store.GetTask(entry.TaskID)
	if err != nil {
		utils.LogError("タスク取得に失敗しました %s: %v", entry.TaskID, err)
		result.Errors = append(result.Errors, models.RevertError{TaskID: entry.TaskID, Error: err.Error()})
		return EntryDisposition{Entry: entry, Disposition: DispositionError, Detail: err.Error()}
	}

	// コンフリクト検査: バッチ以後にリモート側が更新されていればスキップ
	if conflict, detail := isConflict(entry, current); conflict {
		utils.LogWarn("スキップします: %s (%s)", entry.TitleBefore, detail)
		result.Skipped++
		return EntryDisposition{Entry: entry, Disposition: DispositionSkipped, Detail: detail}
	}

	switch entry.Operation {
	case models.OpCreate:
		// バッチで作成したタスクはクローズ扱いにする
		err = r.store.UpdateTask(entry.TaskID, []models.FieldChange{
			{Field: "status", Before: entry.TitleAfter, After: "closed"},
		}, batchID)
		if err == nil {
			err = r.store.AddComment(entry.TaskID,
				fmt.Sprintf("Archived on revert of batch %s. This task was created by the batch and is being removed.", batchID))
		}

	case models.OpUpdate:
		// 各フィールドをbefore値へ戻す
		changes := make([]models.FieldChange, 0, len(entry.Fields))
		for _, f := range entry.Fields {
			changes = append(changes, models.FieldChange{
				Field:  f.Field,
				Before: f.After,
				After:  f.Before,
			})
		}
		err = r.store.UpdateTask(entry.TaskID, changes, batchID)
		if err == nil {
			err = r.store.AddComment(entry.TaskID,
				fmt.Sprintf("Reverted %d field(s) from batch %s.", len(entry.Fields), batchID))
		}

	case models.OpTagOrphan:
		err = r.store.RemoveOrphanTag(entry.TaskID, entry.TitleAfter, batchID)

	default:
		err = fmt.Errorf("未知の操作種別です: %s", entry.Operation)
	}

	if err != nil {
		utils.LogError("取り消しに失敗しました %s: %v", entry.TaskID, err)
		result.Errors = append(result.Errors, models.RevertError{TaskID: entry.TaskID, Error: err.Error()})
		return EntryDisposition{Entry: entry, Disposition: DispositionError, Detail: err.Error()}
	}

	utils.LogInfo("取り消しました: %s (%s)", entry.TitleBefore, entry.Operation)
	result.Reverted++
	return EntryDisposition{Entry: entry, Disposition: DispositionReverted}
}

// isConflict は台帳の観測時刻よりリモートの最終更新が新しいかを判定します。
// どちらかの時刻が解析できない場合は比較不能であり、バッチ後の編集を
// 上書きしないよう安全側に倒してコンフリクト扱いにします
func isConflict(entry models.LedgerEntry, current models.RemoteTask) (bool, string) {
	if entry.ClickUpDateUpdatedBefore == "" || current.DateUpdated == "" {
		return false, ""
	}

	before, err := time.Parse(time.RFC3339, entry.ClickUpDateUpdatedBefore)
	if err != nil {
		return true, fmt.Sprintf("batch snapshot timestamp %q is not comparable", entry.ClickUpDateUpdatedBefore)
	}
	now, err := time.Parse(time.RFC3339, current.DateUpdated)
	if err != nil {
		return true, fmt.Sprintf("remote timestamp %q is not comparable", current.DateUpdated)
	}

	if now.After(before) {
		return true, fmt.Sprintf("remote modified at %s (batch snapshot %s)",
			current.DateUpdated, entry.ClickUpDateUpdatedBefore)
	}
	return false, ""
}
