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
	jsonPath := flag.String("json", "", "ローカルストーリーJSONのパス（省略時は環境変数 STORIES_JSON）")
	reportPath := flag.String("report", "", "パリティレポートのパス（省略時は環境変数 PARITY_REPORT）")
	apply := flag.Bool("apply", false, "計画を実際に適用する（省略時はdry-run）")
	titleSim := flag.Float64("title-sim", 0, "タイトル類似度の下限（0の場合は既定値を使用）")
	storySim := flag.Float64("story-sim", 0, "ユーザーストーリー類似度の下限（0の場合は既定値を使用）")
	outDir := flag.String("out", "", "計画とレポートの出力先（省略時は環境変数 OUT_DIR）")
	help := flag.Bool("help", false, "ヘルプを表示する")

	// フラグのパース
	flag.Parse()

	// ヘルプフラグが指定された場合はヘルプを表示
	if *help {
		printHelp()
		return
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

	// フラグによる上書き（指定された場合のみ）
	if *jsonPath != "" {
		cfg.StoriesJSON = *jsonPath
	}
	if *reportPath != "" {
		cfg.ReportPath = *reportPath
	}
	if *outDir != "" {
		cfg.OutDir = *outDir
	}

	policy := config.PolicyFromEnv()
	if *titleSim > 0 {
		policy.TitleThreshold = *titleSim
	}
	if *storySim > 0 {
		policy.UserStoryThreshold = *storySim
	}

	mode := "dry-run"
	if *apply {
		mode = "apply"
	}
	utils.LogInfo("ストーリー照合ツール (v1.0.0)")
	utils.LogInfo("モード: %s, 入力: %s, レポート: %s", mode, cfg.StoriesJSON, cfg.ReportPath)

	// ローカルストーリーの読み込み
	validator, err := services.NewStoryValidator()
	if err != nil {
		utils.LogError("スキーマの初期化に失敗しました: %v", err)
		os.Exit(1)
	}

	storyFile, skipped, err := services.LoadStoryFile(cfg.StoriesJSON, validator)
	if err != nil {
		utils.LogError("ローカルストーリーの読み込みに失敗しました: %v", err)
		os.Exit(1)
	}
	utils.LogInfo("ローカルストーリーを読み込みました: %d 件（スキップ: %d 件）", len(storyFile.Stories), skipped)

	// ClickUp側の取得
	client := api.NewClickUpClient(cfg, policy)
	utils.LogInfo("ClickUpからタスクを取得しています...")
	clickupStories, err := client.ListTasks(cfg.ClickUpListID)
	if err != nil {
		utils.LogError("ClickUpタスクの取得に失敗しました: %v", err)
		os.Exit(1)
	}
	utils.LogInfo("ClickUpタスクを取得しました: %d 件", len(clickupStories))

	// パリティレポートの解析（ファイルがなければ指示なしで続行）
	parser := services.NewReportParser(policy)
	report, err := parser.ParseFile(cfg.ReportPath)
	if err != nil {
		utils.LogWarn("パリティレポートを読み込めませんでした（指示なしで続行します）: %v", err)
	} else {
		utils.LogInfo("レポートを解析しました: missing=%d, orphans=%d, directives=%d",
			len(report.MissingInClickUp), len(report.OrphansInClickUp), len(report.FieldDirectives))
	}

	// マッチングと計画の構築
	matcher := services.NewMatcher(policy)
	matches := matcher.Match(storyFile.Stories, clickupStories)

	merger := services.NewMergeEngine(policy)
	planner := services.NewPlanner(policy, matcher, merger)
	plan := planner.Build(matches, report)

	if *apply {
		plan.BatchID = services.NewBatchID()
	}

	utils.LogInfo("計画: 作成=%d, 更新=%d, タグ付与=%d, 曖昧=%d",
		plan.Counts.Create, plan.Counts.Update, plan.Counts.TagOrphans, plan.Counts.Ambiguous)

	// 計画とレポートの出力
	writer := services.NewReportWriter()
	planPath, reportOut, err := writer.WritePlanOutputs(cfg.OutDir, plan)
	if err != nil {
		utils.LogError("計画の出力に失敗しました: %v", err)
		os.Exit(1)
	}
	utils.LogInfo("計画を出力しました: %s, %s", planPath, reportOut)

	if !*apply {
		utils.LogInfo("dry-runのため適用しません。-apply を指定すると実行します")
	} else {
		batches := services.NewBatchStore(cfg.BackupDir)
		applier := services.NewApplyService(cfg, policy, client, batches)
		audit, err := applier.Apply(&plan, storyFile, cfg.StoriesJSON, clickupStories)
		if err != nil {
			utils.LogError("適用に失敗しました: %v", err)
			os.Exit(1)
		}
		utils.LogInfo("バッチ %s を適用しました。取り消す場合: revert -batch %s", audit.BatchID, audit.BatchID)
	}

	// 合計実行時間の表示
	elapsed := time.Since(startTime)
	utils.LogInfo("処理が完了しました。合計実行時間: %s", elapsed)
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
ストーリー照合ツール

ローカルのストーリーJSONとClickUpのタスクを突き合わせ、
パリティレポートの推奨に従って差分を解消する計画を作成・適用します。

使用方法:
  %s [オプション]

オプション:
  -json=PATH          ローカルストーリーJSONのパス
  -report=PATH        パリティレポートのパス
  -apply              計画を実際に適用する（省略時はdry-run）
  -title-sim=N        タイトル類似度の下限 (デフォルト: 0.60)
  -story-sim=N        ユーザーストーリー類似度の下限 (デフォルト: 0.60)
  -out=DIR            計画とレポートの出力先 (デフォルト: out)
  -help               このヘルプを表示する

環境変数:
  CLICKUP_API_TOKEN   ClickUp APIトークン (必須)
  CLICKUP_LIST_ID     ClickUpリストID (必須)
  CLICKUP_URL         ClickUp APIのベースURL (デフォルト: https://api.clickup.com/api/v2)
  STORIES_JSON        ローカルストーリーJSONのパス (デフォルト: stories.json)
  PARITY_REPORT       パリティレポートのパス (デフォルト: simple-parity-report.md)
  BACKUP_DIR          バッチバックアップの置き場 (デフォルト: backups)
  OUT_DIR             計画の出力先 (デフォルト: out)

例:
  # dry-runで計画のみ出力
  %s

  # 計画を適用
  %s -apply

  # 類似度の下限を上げて実行
  %s -title-sim=0.8 -story-sim=0.7
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}
