package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"resolvedelta/api"
	"resolvedelta/config"
	"resolvedelta/services"
	"resolvedelta/utils"
)

func main() {
	// コマンドラインフラグの定義
	batchID := flag.String("batch", "", "取り消すバッチID (必須)")
	scopeStr := flag.String("scope", "all", "取り消す範囲 (all | task:<id> | external:<id>)")
	dryRun := flag.Bool("dry", false, "実際には取り消さず対象のみ表示する")
	help := flag.Bool("help", false, "ヘルプを表示する")

	// フラグのパース
	flag.Parse()

	// ヘルプフラグが指定された場合はヘルプを表示
	if *help {
		printHelp()
		return
	}

	if *batchID == "" {
		utils.LogError("-batch でバッチIDを指定してください")
		printHelp()
		os.Exit(1)
	}

	scope, err := services.ParseScope(*scopeStr)
	if err != nil {
		utils.LogError("スコープの解析に失敗しました: %v", err)
		os.Exit(1)
	}

	// 開始時間の記録
	startTime := time.Now()

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		utils.LogError("設定が不足しています: %v", err)
		os.Exit(1)
	}

	utils.LogInfo("バッチ取り消しツール (v1.0.0)")

	policy := config.PolicyFromEnv()
	client := api.NewClickUpClient(cfg, policy)
	batches := services.NewBatchStore(cfg.BackupDir)
	reverter := services.NewRevertService(policy, client, batches)

	result, dispositions, err := reverter.Revert(*batchID, scope, *dryRun)
	if err != nil {
		utils.LogError("取り消し処理に失敗しました: %v", err)
		os.Exit(1)
	}

	// revertレポートの保存（dry-runでは書き出さない）
	if !*dryRun {
		writer := services.NewReportWriter()
		reportPath, err := batches.WriteRevertReport(*batchID, writer.RevertMarkdown(*result, dispositions))
		if err != nil {
			utils.LogWarn("revertレポートの保存に失敗しました: %v", err)
		} else {
			utils.LogInfo("revertレポートを保存しました: %s", reportPath)
		}
	}

	if len(result.Errors) > 0 {
		utils.LogWarn("%d 件のエントリでエラーが発生しました。レポートを確認してください", len(result.Errors))
	}

	// 合計実行時間の表示
	elapsed := time.Since(startTime)
	utils.LogInfo("処理が完了しました。合計実行時間: %s", elapsed)
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
バッチ取り消しツール

照合バッチの台帳を逆再生して、ClickUpへの変更を取り消します。
バッチ以後にClickUp側で編集されたタスクはスキップされます。

使用方法:
  %s -batch <バッチID> [オプション]

オプション:
  -batch=ID           取り消すバッチID (必須)
  -scope=SCOPE        取り消す範囲: all | task:<id> | external:<id> (デフォルト: all)
  -dry                実際には取り消さず対象のみ表示する
  -help               このヘルプを表示する

環境変数:
  CLICKUP_API_TOKEN   ClickUp APIトークン (必須)
  CLICKUP_LIST_ID     ClickUpリストID (必須)
  BACKUP_DIR          バッチバックアップの置き場 (デフォルト: backups)

例:
  # バッチ全体を取り消す
  %s -batch 20250817-143022-a1b2

  # 特定タスクのみ取り消す
  %s -batch 20250817-143022-a1b2 -scope task:abc123

  # 対象の確認のみ
  %s -batch 20250817-143022-a1b2 -dry
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}
