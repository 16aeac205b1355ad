package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"resolvedelta/config"
	"resolvedelta/models"
	"resolvedelta/services"
	"resolvedelta/utils"
)

// ClickUpClient はClickUp APIとのやり取りを処理します
type ClickUpClient struct {
	config *config.Config
	policy config.Policy
	client *http.Client
}

// NewClickUpClient は新しいClickUpクライアントを作成します。
// オーファン接頭辞などの方針値は呼び出し側と同じものを注入します
func NewClickUpClient(cfg *config.Config, policy config.Policy) *ClickUpClient {
	return &ClickUpClient{
		config: cfg,
		policy: policy,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// CheckAuth はClickUp認証をチェックします
func (c *ClickUpClient) CheckAuth() error {
	url := fmt.Sprintf("%s/user", c.config.ClickUpURL)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成エラー: %w", err)
	}

	req.Header.Set("Authorization", c.config.ClickUpAPIToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("リクエスト送信エラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("認証失敗: %s", string(body))
	}

	return nil
}

// clickupTask はClickUp APIのタスクレスポンスです
type clickupTask struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      struct {
		Status string `json:"status"`
	} `json:"status"`
	DateUpdated string   `json:"date_updated"`
	Points      *float64 `json:"points"`
	Tags        []struct {
		Name string `json:"name"`
	} `json:"tags"`
	CustomFields []struct {
		Name  string `json:"name"`
		Value any    `json:"value"`
	} `json:"custom_fields"`
	Checklists []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	} `json:"checklists"`
	URL string `json:"url"`
}

// ListTasks はリスト内の全タスクを取得しStoryへ変換します。
// 変換に失敗したタスクは警告してスキップします
func (c *ClickUpClient) ListTasks(listID string) ([]models.Story, error) {
	url := fmt.Sprintf("%s/list/%s/task?include_closed=true", c.config.ClickUpURL, listID)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成エラー: %w", err)
	}

	req.Header.Set("Authorization", c.config.ClickUpAPIToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("リクエスト送信エラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("タスク一覧取得失敗: %s", string(body))
	}

	var result struct {
		Tasks []clickupTask `json:"tasks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("レスポンス解析エラー: %w", err)
	}

	stories := make([]models.Story, 0, len(result.Tasks))
	for _, task := range result.Tasks {
		story, err := c.taskToStory(task)
		if err != nil {
			utils.LogWarn("タスク %s の変換に失敗したためスキップします: %v", task.ID, err)
			continue
		}
		stories = append(stories, story)
	}

	return stories, nil
}

// taskToStory はClickUpタスクをStoryへ変換します
func (c *ClickUpClient) taskToStory(task clickupTask) (models.Story, error) {
	if task.Name == "" {
		return models.Story{}, fmt.Errorf("タスク名がありません")
	}

	// カスタムフィールドから外部IDとビジネス価値を抽出（名前の部分一致）
	externalID := task.ID
	businessValueRaw := ""
	for _, field := range task.CustomFields {
		name := strings.ToLower(field.Name)
		value, _ := field.Value.(string)
		if value == "" {
			continue
		}
		if strings.Contains(name, c.config.ExternalIDFieldHint) {
			externalID = value
		}
		if strings.Contains(name, c.config.BusinessValueFieldHint) {
			businessValueRaw = value
		}
	}

	// チェックリストから受け入れ条件を抽出
	var acceptanceCriteria []string
	for _, checklist := range task.Checklists {
		name := strings.ToLower(checklist.Name)
		if !strings.Contains(name, "acceptance") && !strings.Contains(name, "criteria") {
			continue
		}
		for _, item := range checklist.Items {
			if item.Name != "" {
				acceptanceCriteria = append(acceptanceCriteria, strings.TrimSpace(item.Name))
			}
		}
	}

	tags := make([]string, 0, len(task.Tags))
	for _, tag := range task.Tags {
		tags = append(tags, tag.Name)
	}

	points := 0
	if task.Points != nil {
		points = int(*task.Points)
	}

	status := task.Status.Status
	if status == "" {
		status = "captured"
	}

	businessValue, _ := services.NormalizeBusinessValue(businessValueRaw)

	story := models.Story{
		ExternalID:         externalID,
		TaskID:             task.ID,
		Title:              task.Name,
		UserStory:          task.Description,
		Points:             points,
		BusinessValue:      businessValue,
		Status:             status,
		AcceptanceCriteria: acceptanceCriteria,
		Tags:               tags,
	}
	if story.UserStory == "" {
		story.UserStory = task.Name
	}

	story = services.NormalizeStory(story)
	story.Meta = &models.StoryMeta{
		Source:    models.SourceClickUp,
		UpdatedAt: millisToRFC3339(task.DateUpdated),
	}

	return story, nil
}

// GetTask はタスクの現在状態を取得します
func (c *ClickUpClient) GetTask(taskID string) (models.RemoteTask, error) {
	task, err := c.fetchTask(taskID)
	if err != nil {
		return models.RemoteTask{}, err
	}

	return models.RemoteTask{
		ID:          task.ID,
		Name:        task.Name,
		Status:      task.Status.Status,
		DateUpdated: millisToRFC3339(task.DateUpdated),
	}, nil
}

// fetchTask はタスクの生レスポンスを取得します
func (c *ClickUpClient) fetchTask(taskID string) (clickupTask, error) {
	url := fmt.Sprintf("%s/task/%s", c.config.ClickUpURL, taskID)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return clickupTask{}, fmt.Errorf("リクエスト作成エラー: %w", err)
	}

	req.Header.Set("Authorization", c.config.ClickUpAPIToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return clickupTask{}, fmt.Errorf("リクエスト送信エラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return clickupTask{}, fmt.Errorf("タスク取得失敗: %s", string(body))
	}

	var task clickupTask
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return clickupTask{}, fmt.Errorf("レスポンス解析エラー: %w", err)
	}

	return task, nil
}

// buildTaskDescription はタスク用のリッチな説明文を組み立てます
func buildTaskDescription(story models.Story) string {
	var parts []string

	if story.UserStory != "" {
		parts = append(parts, fmt.Sprintf("## User Story\n%s", story.UserStory))
	}

	var details []string
	if story.BusinessValue != "" {
		details = append(details, fmt.Sprintf("**Business Value:** %s", story.BusinessValue))
	}
	if story.Category != "" {
		details = append(details, fmt.Sprintf("**Category:** %s", story.Category))
	}
	if story.Points > 0 {
		details = append(details, fmt.Sprintf("**Story Points:** %d", story.Points))
	}
	if len(details) > 0 {
		parts = append(parts, fmt.Sprintf("## Story Details\n%s", strings.Join(details, " | ")))
	}

	if len(story.AcceptanceCriteria) > 0 {
		parts = append(parts, fmt.Sprintf("## Acceptance Criteria\nSee the %d checklist item(s) for detailed acceptance criteria.", len(story.AcceptanceCriteria)))
	}

	return strings.Join(parts, "\n\n")
}

// CreateTask はタスクを作成し、受け入れ条件をチェックリストとして登録します
func (c *ClickUpClient) CreateTask(listID string, story models.Story, batchID string) (string, string, error) {
	url := fmt.Sprintf("%s/list/%s/task", c.config.ClickUpURL, listID)

	priority := 3 // normal
	switch story.BusinessValue {
	case models.BusinessValueCritical:
		priority = 1 // urgent
	case models.BusinessValueImportant:
		priority = 2 // high
	}

	payload := map[string]interface{}{
		"name":                 story.Title,
		"markdown_description": buildTaskDescription(story),
		"status":               story.Status,
		"priority":             priority,
		"tags":                 append(append([]string{}, story.Tags...), "sync-batch-"+batchID),
	}
	if story.Points > 0 {
		payload["points"] = story.Points
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("JSONエンコードエラー: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", "", fmt.Errorf("リクエスト作成エラー: %w", err)
	}

	req.Header.Set("Authorization", c.config.ClickUpAPIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("リクエスト送信エラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", "", fmt.Errorf("タスク作成失敗: %s", string(body))
	}

	var result struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", fmt.Errorf("レスポンス解析エラー: %w", err)
	}

	// 受け入れ条件をチェックリストとして登録
	if len(story.AcceptanceCriteria) > 0 {
		if err := c.addAcceptanceCriteria(result.ID, story.AcceptanceCriteria); err != nil {
			utils.LogWarn("受け入れ条件の登録に失敗しました %s: %v", result.ID, err)
		}
	}

	return result.ID, result.URL, nil
}

// UpdateTask はフィールド変更をタスクへ適用します
func (c *ClickUpClient) UpdateTask(taskID string, changes []models.FieldChange, batchID string) error {
	payload := map[string]interface{}{}
	var criteriaChange *models.FieldChange

	for i, change := range changes {
		switch change.Field {
		case "title":
			payload["name"] = change.After
		case "userStory":
			payload["description"] = change.After
		case "status":
			payload["status"] = change.After
		case "points":
			payload["points"] = toInt(change.After)
		case "tags":
			payload["tags"] = append(toStringSlice(change.After), "sync-batch-"+batchID)
		case "acceptanceCriteria":
			criteriaChange = &changes[i]
		}
	}

	if len(payload) > 0 {
		url := fmt.Sprintf("%s/task/%s", c.config.ClickUpURL, taskID)

		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("JSONエンコードエラー: %w", err)
		}

		req, err := http.NewRequest("PUT", url, bytes.NewBuffer(payloadBytes))
		if err != nil {
			return fmt.Errorf("リクエスト作成エラー: %w", err)
		}

		req.Header.Set("Authorization", c.config.ClickUpAPIToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("リクエスト送信エラー: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("タスク更新失敗: %s", string(body))
		}
	}

	// 受け入れ条件の追加分をチェックリストへ反映
	if criteriaChange != nil {
		before := toStringSlice(criteriaChange.Before)
		after := toStringSlice(criteriaChange.After)

		var added []string
		for _, item := range after {
			found := false
			for _, old := range before {
				if item == old {
					found = true
					break
				}
			}
			if !found {
				added = append(added, item)
			}
		}

		if len(added) > 0 {
			if err := c.addAcceptanceCriteria(taskID, added); err != nil {
				utils.LogWarn("受け入れ条件の追加に失敗しました %s: %v", taskID, err)
			}
		}
	}

	return nil
}

// addAcceptanceCriteria は受け入れ条件チェックリストへ項目を追加します。
// チェックリストが存在しない場合は作成します
func (c *ClickUpClient) addAcceptanceCriteria(taskID string, items []string) error {
	checklistID, err := c.findAcceptanceChecklist(taskID)
	if err != nil {
		return err
	}

	if checklistID == "" {
		checklistID, err = c.createChecklist(taskID, "Acceptance Criteria")
		if err != nil {
			return err
		}
	}

	for _, item := range items {
		if err := c.createChecklistItem(checklistID, item); err != nil {
			return err
		}
	}

	return nil
}

// findAcceptanceChecklist は受け入れ条件チェックリストのIDを探します
func (c *ClickUpClient) findAcceptanceChecklist(taskID string) (string, error) {
	task, err := c.fetchTask(taskID)
	if err != nil {
		return "", err
	}

	for _, checklist := range task.Checklists {
		name := strings.ToLower(checklist.Name)
		if strings.Contains(name, "acceptance") || strings.Contains(name, "criteria") {
			return checklist.ID, nil
		}
	}

	return "", nil
}

// createChecklist はタスクへチェックリストを作成します
func (c *ClickUpClient) createChecklist(taskID, name string) (string, error) {
	url := fmt.Sprintf("%s/task/%s/checklist", c.config.ClickUpURL, taskID)

	payloadBytes, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return "", fmt.Errorf("JSONエンコードエラー: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("リクエスト作成エラー: %w", err)
	}

	req.Header.Set("Authorization", c.config.ClickUpAPIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("リクエスト送信エラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("チェックリスト作成失敗: %s", string(body))
	}

	var result struct {
		Checklist struct {
			ID string `json:"id"`
		} `json:"checklist"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("レスポンス解析エラー: %w", err)
	}

	return result.Checklist.ID, nil
}

// createChecklistItem はチェックリストへ項目を追加します
func (c *ClickUpClient) createChecklistItem(checklistID, name string) error {
	url := fmt.Sprintf("%s/checklist/%s/checklist_item", c.config.ClickUpURL, checklistID)

	payloadBytes, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("JSONエンコードエラー: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("リクエスト作成エラー: %w", err)
	}

	req.Header.Set("Authorization", c.config.ClickUpAPIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("リクエスト送信エラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("チェックリスト項目作成失敗: %s", string(body))
	}

	return nil
}

// AddComment はタスクへコメントを追加します
func (c *ClickUpClient) AddComment(taskID, comment string) error {
	url := fmt.Sprintf("%s/task/%s/comment", c.config.ClickUpURL, taskID)

	payloadBytes, err := json.Marshal(map[string]string{"comment_text": comment})
	if err != nil {
		return fmt.Errorf("JSONエンコードエラー: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("リクエスト作成エラー: %w", err)
	}

	req.Header.Set("Authorization", c.config.ClickUpAPIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("リクエスト送信エラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("コメント追加失敗: %s", string(body))
	}

	return nil
}

// renameTask はタスク名を変更します
func (c *ClickUpClient) renameTask(taskID, name string) error {
	url := fmt.Sprintf("%s/task/%s", c.config.ClickUpURL, taskID)

	payloadBytes, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("JSONエンコードエラー: %w", err)
	}

	req, err := http.NewRequest("PUT", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("リクエスト作成エラー: %w", err)
	}

	req.Header.Set("Authorization", c.config.ClickUpAPIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("リクエスト送信エラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("タスク名変更失敗: %s", string(body))
	}

	return nil
}

// TagOrphan はタイトルへオーファン接頭辞を付与します（付与済みなら何もしません）
func (c *ClickUpClient) TagOrphan(taskID, currentTitle, batchID string) error {
	if strings.HasPrefix(currentTitle, c.policy.OrphanPrefix) {
		return nil
	}

	if err := c.renameTask(taskID, c.policy.OrphanPrefix+currentTitle); err != nil {
		return err
	}

	return c.AddComment(taskID,
		fmt.Sprintf("Marked as orphan by reconciliation (batch %s). This task exists in ClickUp but not in the source JSON.", batchID))
}

// RemoveOrphanTag はオーファン接頭辞を取り除きます（未付与なら何もしません）
func (c *ClickUpClient) RemoveOrphanTag(taskID, currentTitle, batchID string) error {
	if !strings.HasPrefix(currentTitle, c.policy.OrphanPrefix) {
		return nil
	}

	if err := c.renameTask(taskID, strings.TrimPrefix(currentTitle, c.policy.OrphanPrefix)); err != nil {
		return err
	}

	return c.AddComment(taskID,
		fmt.Sprintf("Orphan tag removed on revert of batch %s.", batchID))
}

// millisToRFC3339 はミリ秒エポック文字列をRFC3339へ変換します
func millisToRFC3339(millis string) string {
	if millis == "" {
		return ""
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// toInt は数値をintへ変換します（JSON経由のfloat64も受け付ける）
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}

// toStringSlice は文字列スライスへ変換します（JSON経由の[]anyも受け付ける）
func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...)
	case []any:
		result := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}
