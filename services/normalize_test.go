package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"resolvedelta/models"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "前後の空白を除去", input: "  hello world  ", expected: "hello world"},
		{name: "連続する空白を畳む", input: "hello    world\t\tagain", expected: "hello world again"},
		{name: "空文字列", input: "", expected: ""},
		{name: "空白のみ", input: "   \t\n  ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeText(tt.input))
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  string
		wantExact bool
	}{
		{name: "完全一致", input: "in progress", expected: "in progress", wantExact: true},
		{name: "大文字小文字を無視", input: "In Progress", expected: "in progress", wantExact: true},
		{name: "前後の空白を許容", input: "  Deployed ", expected: "deployed", wantExact: true},
		{name: "部分一致で解決", input: "progress", expected: "in progress", wantExact: false},
		{name: "包含方向の部分一致", input: "ready for deploy today", expected: "ready for deploy", wantExact: false},
		{name: "未知の値はそのまま通す", input: "Banana", expected: "Banana", wantExact: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, exact := NormalizeStatus(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.wantExact, exact)
		})
	}
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range models.StatusSet {
		assert.True(t, IsValidStatus(s), s)
	}
	assert.False(t, IsValidStatus("Banana"))
	assert.False(t, IsValidStatus("In Progress")) // 正準形は小文字のみ
}

func TestNormalizeBusinessValue(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  models.BusinessValue
		wantExact bool
	}{
		{name: "critical", input: "Critical", expected: models.BusinessValueCritical, wantExact: true},
		{name: "highはcritical扱い", input: "high priority", expected: models.BusinessValueCritical, wantExact: true},
		{name: "important", input: "important", expected: models.BusinessValueImportant, wantExact: true},
		{name: "mediumはimportant扱い", input: "Medium", expected: models.BusinessValueImportant, wantExact: true},
		{name: "nice to have", input: "Nice to Have", expected: models.BusinessValueNiceToHave, wantExact: true},
		{name: "lowはnice to have扱い", input: "low", expected: models.BusinessValueNiceToHave, wantExact: true},
		{name: "未知の値はImportantへフォールバック", input: "whatever", expected: models.BusinessValueImportant, wantExact: false},
		{name: "空文字列もフォールバック", input: "", expected: models.BusinessValueImportant, wantExact: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, exact := NormalizeBusinessValue(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.wantExact, exact)
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" Backend ", "backend", "API", "", "frontend"})
	assert.Equal(t, []string{"api", "backend", "frontend"}, got)

	// 正規化は冪等
	assert.Equal(t, got, NormalizeTags(got))
}

func TestNormalizeAcceptanceCriteria(t *testing.T) {
	got := NormalizeAcceptanceCriteria([]string{
		"User can  log in",
		"User can log in",
		"",
		"Admin sees dashboard",
	})
	assert.Equal(t, []string{"Admin sees dashboard", "User can log in"}, got)

	// 正規化は冪等
	assert.Equal(t, got, NormalizeAcceptanceCriteria(got))
}

func TestNormalizeStory(t *testing.T) {
	story := models.Story{
		Title:              "  Team  Roster ",
		UserStory:          "As a coach\tI want the roster",
		Category:           " Core ",
		Status:             "In Progress",
		AcceptanceCriteria: []string{"b", "a", "a"},
		Tags:               []string{"Core", "core"},
	}

	got := NormalizeStory(story)
	assert.Equal(t, "Team Roster", got.Title)
	assert.Equal(t, "As a coach I want the roster", got.UserStory)
	assert.Equal(t, "Core", got.Category)
	assert.Equal(t, "in progress", got.Status)
	assert.Equal(t, []string{"a", "b"}, got.AcceptanceCriteria)
	assert.Equal(t, []string{"core"}, got.Tags)
}

func TestAreEqual(t *testing.T) {
	assert.True(t, AreEqual("Hello  World", "hello world"))
	assert.False(t, AreEqual("hello", "world"))
}

func TestAreStringSlicesEqual(t *testing.T) {
	assert.True(t, AreStringSlicesEqual([]string{"b", "A"}, []string{"a", "B"}))
	assert.False(t, AreStringSlicesEqual([]string{"a"}, []string{"a", "b"}))
	assert.False(t, AreStringSlicesEqual([]string{"a"}, []string{"b"}))
	assert.True(t, AreStringSlicesEqual(nil, nil))
}
