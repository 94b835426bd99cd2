package scoring

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Criterion 评分维度
type Criterion struct {
	Key         string  `json:"key"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

// Rubric 评分规则：维度权重之和为 1，外加一组严重违规短语
type Rubric struct {
	Criteria           []Criterion `json:"criteria"`
	CriticalViolations []string    `json:"critical_violations"`
}

const weightTolerance = 1e-6

// DefaultRubric 默认的 12 个维度
func DefaultRubric() Rubric {
	return Rubric{
		Criteria: []Criterion{
			{Key: "intent", Weight: 0.10, Description: "Intent Recognition"},
			{Key: "fields", Weight: 0.20, Description: "Field Completeness"},
			{Key: "flow", Weight: 0.15, Description: "Flow Adherence"},
			{Key: "admin", Weight: 0.10, Description: "Administrative Validation"},
			{Key: "accuracy", Weight: 0.10, Description: "Accuracy"},
			{Key: "tone", Weight: 0.05, Description: "Tone"},
			{Key: "brevity", Weight: 0.05, Description: "Brevity"},
			{Key: "error_handling", Weight: 0.05, Description: "Error Handling"},
			{Key: "handoff", Weight: 0.05, Description: "Handoff"},
			{Key: "summary", Weight: 0.10, Description: "Summary"},
			{Key: "evidence", Weight: 0.03, Description: "Evidence"},
			{Key: "actions", Weight: 0.02, Description: "Actions"},
		},
		CriticalViolations: DefaultCriticalViolations(),
	}
}

// DefaultCriticalViolations 默认严重违规短语
func DefaultCriticalViolations() []string {
	return []string{
		"confirming level 3 administrative data",
		"confirming restricted data",
		"promising money compensation",
		"promising compensation",
		"incorrect legal advice",
	}
}

// Validate 权重非负、键唯一且总和为 1
func (r Rubric) Validate() error {
	if len(r.Criteria) == 0 {
		return fmt.Errorf("rubric has no criteria")
	}
	seen := make(map[string]struct{}, len(r.Criteria))
	total := 0.0
	for _, c := range r.Criteria {
		key := strings.TrimSpace(c.Key)
		if key == "" {
			return fmt.Errorf("rubric criterion key cannot be empty")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate rubric criterion %q", key)
		}
		seen[key] = struct{}{}
		if c.Weight < 0 || math.IsNaN(c.Weight) {
			return fmt.Errorf("rubric criterion %q has invalid weight %v", key, c.Weight)
		}
		total += c.Weight
	}
	if math.Abs(total-1) > weightTolerance {
		return fmt.Errorf("rubric weights sum to %.6f, want 1", total)
	}
	return nil
}

// Keys 维度键，按声明顺序
func (r Rubric) Keys() []string {
	keys := make([]string, len(r.Criteria))
	for i, c := range r.Criteria {
		keys[i] = c.Key
	}
	return keys
}

// PromptList 渲染为提示词中的维度列表
func (r Rubric) PromptList() string {
	var b strings.Builder
	for _, c := range r.Criteria {
		desc := c.Description
		if desc == "" {
			desc = c.Key
		}
		fmt.Fprintf(&b, "- %s: %s (weight: %g%%)\n", strings.ToUpper(c.Key), desc, math.Round(c.Weight*10000)/100)
	}
	return b.String()
}

var spaceRun = regexp.MustCompile(`\s+`)

// normalizePhrase 小写，下划线与连字符视为空格，合并空白
func normalizePhrase(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
