package services

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"resolvedelta/models"
	"resolvedelta/utils"
)

// BatchStore はバッチ単位のバックアップ・台帳・レポートの置き場を管理します。
// バッチごとに1ディレクトリを割り当てます
type BatchStore struct {
	rootDir string
}

// NewBatchStore は新しいBatchStoreを作成します
func NewBatchStore(rootDir string) *BatchStore {
	return &BatchStore{rootDir: rootDir}
}

// BatchDir はバッチのディレクトリパスを返します
func (s *BatchStore) BatchDir(batchID string) string {
	return filepath.Join(s.rootDir, batchID)
}

// LedgerPath はバッチの台帳ファイルパスを返します
func (s *BatchStore) LedgerPath(batchID string) string {
	return filepath.Join(s.BatchDir(batchID), "ledger.json")
}

// EnsureBatchDir はバッチディレクトリを作成します
func (s *BatchStore) EnsureBatchDir(batchID string) error {
	if err := os.MkdirAll(s.BatchDir(batchID), 0o755); err != nil {
		return fmt.Errorf("バッチディレクトリ作成エラー: %w", err)
	}
	return nil
}

// WriteClickUpExport はapply前のClickUp側エクスポートをJSONとCSVで保存します
func (s *BatchStore) WriteClickUpExport(batchID string, stories []models.Story) (jsonPath, csvPath string, err error) {
	jsonPath = filepath.Join(s.BatchDir(batchID), "clickup-export.json")
	csvPath = filepath.Join(s.BatchDir(batchID), "clickup-export.csv")

	data, err := json.MarshalIndent(stories, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("エクスポートのエンコードエラー: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("エクスポート書き込みエラー: %w", err)
	}

	if err := s.writeExportCSV(csvPath, stories); err != nil {
		return "", "", err
	}

	utils.LogInfo("ClickUpエクスポートを保存しました: %d 件", len(stories))
	return jsonPath, csvPath, nil
}

// writeExportCSV はストーリー一覧をCSVとして保存します
func (s *BatchStore) writeExportCSV(path string, stories []models.Story) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("CSVファイル作成エラー: %w", err)
	}
	defer file.Close()

	// 出力するフィールドと順序を定義
	headers := []string{
		"ID", "Task ID", "Title", "User Story", "Category",
		"Points", "Business Value", "Status", "Acceptance Criteria", "Tags",
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("ヘッダー書き込みエラー: %w", err)
	}

	for _, story := range stories {
		row := []string{
			story.ExternalID,
			story.TaskID,
			story.Title,
			story.UserStory,
			story.Category,
			strconv.Itoa(story.Points),
			string(story.BusinessValue),
			story.Status,
			strings.Join(story.AcceptanceCriteria, "; "),
			strings.Join(story.Tags, ","),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("行書き込みエラー: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV書き込み完了エラー: %w", err)
	}

	return nil
}

// CopyLocalFile はapply前のローカルストーリーファイルをバックアップします
func (s *BatchStore) CopyLocalFile(batchID, srcPath string) (string, error) {
	dstPath := filepath.Join(s.BatchDir(batchID), "stories.json")

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("ローカルファイル読み込みエラー: %w", err)
	}
	if err := os.WriteFile(dstPath, data, 0o644); err != nil {
		return "", fmt.Errorf("バックアップ書き込みエラー: %w", err)
	}

	return dstPath, nil
}

// WriteLedger は台帳全体を書き出します。リモート操作が1件成功するたびに
// 呼び出されるため、バッチが中断しても完了分の台帳は常に有効です
func (s *BatchStore) WriteLedger(batchID string, ledger []models.LedgerEntry) error {
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("台帳のエンコードエラー: %w", err)
	}
	if err := os.WriteFile(s.LedgerPath(batchID), data, 0o644); err != nil {
		return fmt.Errorf("台帳書き込みエラー: %w", err)
	}
	return nil
}

// LoadLedger はバッチの台帳を読み込みます
func (s *BatchStore) LoadLedger(batchID string) ([]models.LedgerEntry, error) {
	data, err := os.ReadFile(s.LedgerPath(batchID))
	if err != nil {
		return nil, fmt.Errorf("バッチ %s の台帳が見つかりません: %w", batchID, err)
	}

	var ledger []models.LedgerEntry
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("台帳の解析エラー: %w", err)
	}

	return ledger, nil
}

// WriteAudit はバッチの監査メタデータを保存します
func (s *BatchStore) WriteAudit(audit models.BatchAudit) error {
	data, err := json.MarshalIndent(audit, "", "  ")
	if err != nil {
		return fmt.Errorf("監査メタデータのエンコードエラー: %w", err)
	}
	path := filepath.Join(s.BatchDir(audit.BatchID), "audit.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("監査メタデータ書き込みエラー: %w", err)
	}
	return nil
}

// WriteRevertReport はrevertレポートをバッチディレクトリへ保存します
func (s *BatchStore) WriteRevertReport(batchID, content string) (string, error) {
	path := filepath.Join(s.BatchDir(batchID), "revert-report.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("revertレポート書き込みエラー: %w", err)
	}
	return path, nil
}
