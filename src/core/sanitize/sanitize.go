// Package sanitize 从模型输出中提取 JSON 对象，并清理无法落库的字符
package sanitize

import (
	"encoding/json"
	"regexp"
	"strings"

	"gorm.io/datatypes"
)

// Stage 解析成功所处的阶段
type Stage int

const (
	StageFailed Stage = iota
	StageDirect
	StageFenced
	StageEmbedded
)

func (s Stage) String() string {
	switch s {
	case StageDirect:
		return "direct"
	case StageFenced:
		return "fenced"
	case StageEmbedded:
		return "embedded"
	default:
		return "failed"
	}
}

// Result 解析结果，失败时 Doc 为空文档而不是 nil
type Result struct {
	Doc   map[string]any
	Stage Stage
}

// OK 是否提取到 JSON 对象
func (r Result) OK() bool {
	return r.Stage != StageFailed
}

var (
	fenceOpen  = regexp.MustCompile("^```[a-zA-Z0-9_-]*\\s*")
	fenceClose = regexp.MustCompile("```\\s*$")
)

// ParseObject 依次尝试：整体解析、去掉 markdown 代码块标记、截取首个 { 到最后一个 }
func ParseObject(text string) Result {
	if doc, ok := decodeObject(text); ok {
		return Result{Doc: doc, Stage: StageDirect}
	}

	content := strings.TrimSpace(text)
	if strings.HasPrefix(content, "```") {
		content = fenceOpen.ReplaceAllString(content, "")
		content = fenceClose.ReplaceAllString(content, "")
		if doc, ok := decodeObject(content); ok {
			return Result{Doc: doc, Stage: StageFenced}
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end > start {
		if doc, ok := decodeObject(content[start : end+1]); ok {
			return Result{Doc: doc, Stage: StageEmbedded}
		}
	}

	return Result{Doc: map[string]any{}, Stage: StageFailed}
}

func decodeObject(text string) (map[string]any, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err != nil || doc == nil {
		return nil, false
	}
	return doc, true
}

// StripNullBytes 递归删除字符串、列表、对象（含键）中的 \x00
func StripNullBytes(v any) any {
	switch t := v.(type) {
	case string:
		return StripString(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = StripNullBytes(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = StripString(item)
		}
		return out
	case map[string]any:
		return stripMap(t)
	case datatypes.JSONMap:
		return datatypes.JSONMap(stripMap(t))
	default:
		return v
	}
}

// StripDocument StripNullBytes 的对象版本
func StripDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	return stripMap(doc)
}

func stripMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, item := range m {
		out[StripString(k)] = StripNullBytes(item)
	}
	return out
}

// StripString 删除字符串中的 \x00
func StripString(s string) string {
	if !strings.ContainsRune(s, 0) {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}
