package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CriterionResult 单个维度的模型评估，Score 为 nil 表示模型未给出分数
type CriterionResult struct {
	Score     *float64 `json:"score,omitempty"`
	Issues    []string `json:"issues"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// Payload 模型返回的评估文档
type Payload struct {
	Evaluations     map[string]CriterionResult `json:"evaluations"`
	OverallIssues   []string                   `json:"overall_issues"`
	Recommendations []string                   `json:"recommendations"`
}

// DecodePayload 宽松解码，缺少 evaluations 对象时返回 false
func DecodePayload(doc map[string]any) (Payload, bool) {
	raw, ok := doc["evaluations"].(map[string]any)
	if !ok {
		return Payload{}, false
	}

	p := Payload{
		Evaluations:     make(map[string]CriterionResult, len(raw)),
		OverallIssues:   toStrings(doc["overall_issues"]),
		Recommendations: toStrings(doc["recommendations"]),
	}
	for key, v := range raw {
		entry, _ := v.(map[string]any)
		cr := CriterionResult{}
		if entry != nil {
			cr.Score = toScore(entry["score"])
			cr.Issues = toStrings(entry["issues"])
			if s, ok := entry["reasoning"].(string); ok {
				cr.Reasoning = s
			}
		}
		p.Evaluations[key] = cr
	}
	return p, true
}

// Document 转回通用文档结构用于落库
func (p Payload) Document() map[string]any {
	evals := make(map[string]any, len(p.Evaluations))
	for key, cr := range p.Evaluations {
		entry := map[string]any{
			"issues":    stringsToAny(cr.Issues),
			"reasoning": cr.Reasoning,
		}
		if cr.Score != nil {
			entry["score"] = *cr.Score
		}
		evals[key] = entry
	}
	return map[string]any{
		"evaluations":     evals,
		"overall_issues":  stringsToAny(p.OverallIssues),
		"recommendations": stringsToAny(p.Recommendations),
	}
}

func toScore(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return nil
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = n
	default:
		return nil
	}
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			switch s := item.(type) {
			case nil:
			case string:
				out = append(out, s)
			default:
				out = append(out, fmt.Sprint(s))
			}
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
