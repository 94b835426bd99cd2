package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"qa-compass-server/src/core/conversation"
	"qa-compass-server/src/core/knowledge"
	"qa-compass-server/src/core/prompt"
	"qa-compass-server/src/core/providers/llm"
	"qa-compass-server/src/core/sanitize"
	"qa-compass-server/src/core/scoring"
	"qa-compass-server/src/core/utils"
	"qa-compass-server/src/models"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"
)

// 运行阶段
const (
	PhaseCollecting  = "collecting"
	PhaseDispatching = "dispatching"
	PhaseAggregating = "aggregating"
	PhasePersisting  = "persisting"
	PhaseDone        = "done"
)

// 单条失败时的错误文本
const (
	ErrMsgTimeout        = "timeout"
	ErrMsgMissingID      = "missing conversation_id"
	ErrMsgKBInjectFailed = "kb_inject_failed"
)

// DefaultUserPromptPrefix 用户消息前缀，后接会话记忆原文
const DefaultUserPromptPrefix = "mode: đưa ra thông tin tri tiết, không bình luận\n"

// Options 编排参数
type Options struct {
	Model            string
	Temperature      float64
	Concurrency      int
	CallTimeout      time.Duration
	UserPromptPrefix string
}

// Persister 结果落库接口
type Persister interface {
	Upsert(ctx context.Context, records []Record) (map[string]error, error)
}

// Notifier 运行完成通知
type Notifier interface {
	RunCompleted(ctx context.Context, s Summary) error
}

// Request 一次批量评估请求，显式 ID 为空时按 Limit 自动选取
type Request struct {
	ConversationIDs []string `json:"conversation_ids"`
	Limit           int      `json:"limit"`
}

// ItemResult 单个会话的评估结果
type ItemResult struct {
	ConversationID string           `json:"conversation_id"`
	BotID          *int64           `json:"bot_id,omitempty"`
	OK             bool             `json:"ok"`
	Result         map[string]any   `json:"result,omitempty"`
	Verdict        *scoring.Verdict `json:"verdict,omitempty"`
	Error          string           `json:"error,omitempty"`
	Persisted      bool             `json:"persisted"`
}

// Report 一次运行的完整结果，Items 与输入会话顺序一致
type Report struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Items      []ItemResult `json:"items"`
}

// Summary 运行统计
type Summary struct {
	RunID        string  `json:"run_id"`
	Total        int     `json:"total"`
	Succeeded    int     `json:"succeeded"`
	Failed       int     `json:"failed"`
	Persisted    int     `json:"persisted"`
	AverageScore float64 `json:"average_score"`
}

// Summary 统计成功、失败、落库数量与平均分
func (r *Report) Summary() Summary {
	s := Summary{RunID: r.RunID, Total: len(r.Items)}
	total := 0.0
	for _, it := range r.Items {
		if it.OK {
			s.Succeeded++
			if it.Verdict != nil {
				total += it.Verdict.Score
			}
		} else {
			s.Failed++
		}
		if it.Persisted {
			s.Persisted++
		}
	}
	if s.Succeeded > 0 {
		s.AverageScore = math.Round(total/float64(s.Succeeded)*100) / 100
	}
	return s
}

// Orchestrator 批量评估编排器，进程内共享一个并发信号量
type Orchestrator struct {
	source    conversation.Source
	resolver  knowledge.Resolver
	provider  llm.Provider
	prompts   *prompt.Loader
	engine    *scoring.Engine
	persister Persister
	notifier  Notifier
	opts      Options
	sem       *semaphore.Weighted
	logger    *utils.Logger
}

// NewOrchestrator 创建编排器，notifier 可为空
func NewOrchestrator(
	source conversation.Source,
	resolver knowledge.Resolver,
	provider llm.Provider,
	prompts *prompt.Loader,
	engine *scoring.Engine,
	persister Persister,
	notifier Notifier,
	opts Options,
	logger *utils.Logger,
) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 90 * time.Second
	}
	if opts.UserPromptPrefix == "" {
		opts.UserPromptPrefix = DefaultUserPromptPrefix
	}
	return &Orchestrator{
		source:    source,
		resolver:  resolver,
		provider:  provider,
		prompts:   prompts,
		engine:    engine,
		persister: persister,
		notifier:  notifier,
		opts:      opts,
		sem:       semaphore.NewWeighted(int64(opts.Concurrency)),
		logger:    logger,
	}
}

// Run 执行一次批量评估。输入错误与空结果在任何评分调用前返回；
// 落库失败时仍返回完整报告，所有条目 persisted 为 false
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	report := &Report{RunID: utils.NewRunID(), StartedAt: time.Now()}
	log := o.logger.With("run_id", report.RunID)

	log.Info("phase=%s ids=%d limit=%d", PhaseCollecting, len(req.ConversationIDs), req.Limit)
	convs, err := o.source.Fetch(ctx, conversation.Query{ConversationIDs: req.ConversationIDs, Limit: req.Limit})
	if err != nil {
		log.Warn("拉取会话失败: %v", err)
		return nil, err
	}
	kbs, err := o.resolver.Resolve(ctx, botIndices(convs))
	if err != nil {
		return nil, fmt.Errorf("解析知识库失败: %w", err)
	}
	rubric := o.engine.Rubric()
	template, err := o.prompts.Load(prompt.QA, map[string]string{
		"CRITERIA":      rubric.PromptList(),
		"CRITERIA_KEYS": strings.Join(rubric.Keys(), ", "),
	})
	if err != nil {
		return nil, fmt.Errorf("加载评估提示词失败: %w", err)
	}

	log.Info("phase=%s conversations=%d concurrency=%d", PhaseDispatching, len(convs), o.opts.Concurrency)
	report.Items = make([]ItemResult, len(convs))
	g := new(errgroup.Group)
	g.SetLimit(o.opts.Concurrency)
	for i := range convs {
		conv := convs[i]
		g.Go(func() error {
			report.Items[i] = o.evaluate(ctx, log, conv, kbs, template)
			return nil
		})
	}
	_ = g.Wait()

	summary := report.Summary()
	log.Info("phase=%s succeeded=%d failed=%d", PhaseAggregating, summary.Succeeded, summary.Failed)

	log.Info("phase=%s", PhasePersisting)
	if err := o.persist(ctx, convs, report.Items); err != nil {
		report.FinishedAt = time.Now()
		log.Error("本次评估落库失败: %v", err)
		return report, err
	}

	report.FinishedAt = time.Now()
	summary = report.Summary()
	log.Info("phase=%s persisted=%d average=%.2f elapsed=%s", PhaseDone, summary.Persisted, summary.AverageScore, report.FinishedAt.Sub(report.StartedAt))
	if o.notifier != nil {
		if err := o.notifier.RunCompleted(ctx, summary); err != nil {
			log.Warn("发送运行完成通知失败: %v", err)
		}
	}
	return report, nil
}

func (o *Orchestrator) evaluate(ctx context.Context, log *utils.Logger, conv models.Conversation, kbs map[int64]datatypes.JSONMap, template string) ItemResult {
	item := ItemResult{ConversationID: conv.ConversationID, BotID: conv.BotID}
	if strings.TrimSpace(conv.ConversationID) == "" {
		item.Error = ErrMsgMissingID
		return item
	}

	kb := datatypes.JSONMap{}
	if conv.BotID != nil {
		if v, ok := kbs[*conv.BotID]; ok && v != nil {
			kb = v
		}
	}
	kbJSON, err := marshalKB(kb)
	if err != nil {
		item.Error = fmt.Sprintf("%s: %v", ErrMsgKBInjectFailed, err)
		return item
	}

	memory := "{}"
	if conv.BotMemory != nil {
		memory = *conv.BotMemory
	}

	text, err := o.call(ctx, llm.ChatRequest{
		Model: o.opts.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: strings.ReplaceAll(template, "{{KB}}", kbJSON)},
			{Role: llm.RoleUser, Content: o.opts.UserPromptPrefix + memory},
		},
		Temperature: o.opts.Temperature,
		JSONObject:  true,
	})
	if err != nil {
		log.Warn("评分调用失败 conversation=%s: %v", conv.ConversationID, err)
		item.Error = err.Error()
		return item
	}

	parsed := sanitize.ParseObject(text)
	verdict, doc := o.engine.Evaluate(parsed)
	if verdict.Degraded {
		log.Warn("模型输出无法解析，使用默认评分 conversation=%s", conv.ConversationID)
		doc["raw_response"] = text
	} else {
		log.Debug("解析模型输出 conversation=%s stage=%s", conv.ConversationID, parsed.Stage)
	}

	item.OK = true
	item.Result = doc
	item.Verdict = &verdict
	return item
}

var errCallTimeout = errors.New(ErrMsgTimeout)

// call 调用评分服务。信号量在调用真正返回后才释放，超时放弃的调用仍占用并发名额
func (o *Orchestrator) call(ctx context.Context, req llm.ChatRequest) (string, error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		defer o.sem.Release(1)
		defer cancel()
		text, err := o.provider.Chat(callCtx, req)
		done <- reply{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", errCallTimeout
		}
		return r.text, r.err
	case <-callCtx.Done():
		select {
		case r := <-done:
			if r.err == nil {
				return r.text, nil
			}
		default:
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", errCallTimeout
		}
		return "", callCtx.Err()
	}
}

func (o *Orchestrator) persist(ctx context.Context, convs []models.Conversation, items []ItemResult) error {
	records := make([]Record, 0, len(items))
	for i, it := range items {
		if !it.OK {
			continue
		}
		records = append(records, Record{
			ConversationID: it.ConversationID,
			BotMemory:      convs[i].BotMemory,
			Result:         it.Result,
			Verdict:        *it.Verdict,
		})
	}
	if len(records) == 0 {
		return nil
	}

	rejected, err := o.persister.Upsert(ctx, records)
	if err != nil {
		return err
	}
	for i := range items {
		if !items[i].OK {
			continue
		}
		if rerr, ok := rejected[strings.TrimSpace(items[i].ConversationID)]; ok {
			items[i].OK = false
			items[i].Error = rerr.Error()
			continue
		}
		items[i].Persisted = true
	}
	return nil
}

func botIndices(convs []models.Conversation) []int64 {
	out := make([]int64, 0, len(convs))
	for _, c := range convs {
		if c.BotID != nil {
			out = append(out, *c.BotID)
		}
	}
	return out
}

// marshalKB 关闭 HTML 转义，保持知识库原文
func marshalKB(kb datatypes.JSONMap) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(kb)); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
