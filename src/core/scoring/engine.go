// Package scoring 按加权评分规则计算会话质量分数
package scoring

import (
	"math"
	"strings"

	"qa-compass-server/src/core/sanitize"
)

// Severity 问题严重程度
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// CriticalCriterion 严重违规问题使用的维度名
const CriticalCriterion = "critical"

// 状态阈值与严重违规封顶分
const (
	GoodThreshold = 80.0
	WarnThreshold = 60.0
	CriticalCap   = 40.0
	DefaultScore  = 50.0
)

// 解析失败时默认文档使用的文本
const (
	ParseFailedIssue     = "Evaluation parsing failed"
	ParseFailedReasoning = "Error in evaluation"
)

var (
	criticalKeywords = []string{"critical", "violation", "error", "wrong", "incorrect"}
	majorKeywords    = []string{"major", "significant", "important", "issue"}
)

// Issue 评分过程中记录的问题
type Issue struct {
	Criterion string   `json:"criterion"`
	Issue     string   `json:"issue"`
	Severity  Severity `json:"severity"`
}

// Verdict 评分结论，Degraded 表示模型输出无法解析，使用了默认文档
type Verdict struct {
	Score    float64 `json:"score"`
	Status   string  `json:"status"`
	Issues   []Issue `json:"issues"`
	Degraded bool    `json:"degraded,omitempty"`
}

// Engine 评分引擎，对同一评分规则可并发使用
type Engine struct {
	rubric     Rubric
	violations []string
}

// NewEngine 校验评分规则并创建引擎
func NewEngine(r Rubric) (*Engine, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	violations := make([]string, 0, len(r.CriticalViolations))
	for _, v := range r.CriticalViolations {
		if n := normalizePhrase(v); n != "" {
			violations = append(violations, n)
		}
	}
	return &Engine{rubric: r, violations: violations}, nil
}

// Rubric 当前评分规则
func (e *Engine) Rubric() Rubric {
	return e.rubric
}

// DefaultPayload 每个维度 50 分并标记解析失败
func (e *Engine) DefaultPayload() Payload {
	evals := make(map[string]CriterionResult, len(e.rubric.Criteria))
	for _, c := range e.rubric.Criteria {
		score := DefaultScore
		evals[c.Key] = CriterionResult{
			Score:     &score,
			Issues:    []string{ParseFailedIssue},
			Reasoning: ParseFailedReasoning,
		}
	}
	return Payload{
		Evaluations:     evals,
		OverallIssues:   []string{ParseFailedIssue},
		Recommendations: []string{},
	}
}

// Evaluate 对清洗后的模型输出评分，返回结论与应落库的文档
func (e *Engine) Evaluate(res sanitize.Result) (Verdict, map[string]any) {
	if res.OK() {
		if p, ok := DecodePayload(res.Doc); ok {
			return e.Score(p), res.Doc
		}
	}
	p := e.DefaultPayload()
	v := e.Score(p)
	v.Degraded = true
	return v, p.Document()
}

// Score 计算加权分数：逐维度截断到 [0,100] 后加权，命中严重违规时封顶 40
func (e *Engine) Score(p Payload) Verdict {
	issues := make([]Issue, 0)
	total := 0.0

	for _, c := range e.rubric.Criteria {
		cr, ok := p.Evaluations[c.Key]
		if !ok {
			continue
		}
		score := DefaultScore
		if cr.Score != nil {
			score = clamp(*cr.Score, 0, 100)
		}
		for _, text := range cr.Issues {
			if strings.TrimSpace(text) == "" || text == "None" {
				continue
			}
			issues = append(issues, Issue{Criterion: c.Key, Issue: text, Severity: ClassifySeverity(text)})
		}
		total += score * c.Weight
	}

	for _, text := range p.OverallIssues {
		if e.isCriticalViolation(text) {
			issues = append(issues, Issue{Criterion: CriticalCriterion, Issue: text, Severity: SeverityCritical})
			total = math.Min(total, CriticalCap)
		}
	}

	final := round2(total)
	return Verdict{Score: final, Status: StatusFor(final), Issues: issues}
}

func (e *Engine) isCriticalViolation(text string) bool {
	n := normalizePhrase(text)
	if n == "" {
		return false
	}
	for _, v := range e.violations {
		if strings.Contains(n, v) {
			return true
		}
	}
	return false
}

// ClassifySeverity 按关键词判定严重程度
func ClassifySeverity(text string) Severity {
	lower := strings.ToLower(text)
	for _, k := range criticalKeywords {
		if strings.Contains(lower, k) {
			return SeverityCritical
		}
	}
	for _, k := range majorKeywords {
		if strings.Contains(lower, k) {
			return SeverityMajor
		}
	}
	return SeverityMinor
}

// StatusFor good >= 80, warn >= 60, 其余为 bad
func StatusFor(score float64) string {
	switch {
	case score >= GoodThreshold:
		return "good"
	case score >= WarnThreshold:
		return "warn"
	default:
		return "bad"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
