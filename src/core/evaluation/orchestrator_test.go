package evaluation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qa-compass-server/src/configs/database/dbtest"
	"qa-compass-server/src/core/conversation"
	"qa-compass-server/src/core/errs"
	"qa-compass-server/src/core/evaluation"
	"qa-compass-server/src/core/knowledge"
	"qa-compass-server/src/core/prompt"
	"qa-compass-server/src/core/providers/llm"
	"qa-compass-server/src/core/scoring"
	"qa-compass-server/src/core/utils"
	"qa-compass-server/src/models"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var _ = Describe("Orchestrator", func() {
	var (
		db       *gorm.DB
		provider *fakeProvider
		notifier *fakeNotifier
		opts     evaluation.Options
		ctx      = context.Background()
		base     = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	)

	newOrchestrator := func() *evaluation.Orchestrator {
		logger := utils.NopLogger()
		engine, err := scoring.NewEngine(scoring.DefaultRubric())
		Expect(err).To(BeNil())
		return evaluation.NewOrchestrator(
			conversation.NewSource(db, logger, conversation.MaxBatch),
			knowledge.NewResolver(db, logger),
			provider,
			prompt.NewLoader(""),
			engine,
			evaluation.NewReconciler(db, nil, evaluation.CacheTTL{}, logger),
			notifier,
			opts,
			logger,
		)
	}

	addConversation := func(id string, minute int, memory *string) {
		Expect(db.Create(&models.Conversation{
			ConversationID: id,
			CustomerPhone:  str("0911222333"),
			BotID:          i64(7),
			BotMemory:      memory,
			CreatedAt:      base.Add(time.Duration(minute) * time.Minute),
		}).Error).To(BeNil())
	}

	ids := func(items []evaluation.ItemResult) []string {
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = it.ConversationID
		}
		return out
	}

	BeforeEach(func() {
		var err error
		db, err = dbtest.New()
		Expect(err).To(BeNil())

		Expect(db.Create(&models.Bot{BotIndex: 7, Name: "Hành chính công"}).Error).To(BeNil())
		Expect(db.Create(&models.BotVersion{
			BotIndex:      7,
			SystemPrompt:  "prompt",
			KnowledgeBase: datatypes.JSONMap{"rule": "<b>CCCD</b> & hộ khẩu"},
		}).Error).To(BeNil())
		for i := 0; i < 5; i++ {
			addConversation(fmt.Sprintf("c-%d", i), i, str(fmt.Sprintf(`{"marker":"c-%d"}`, i)))
		}

		provider = &fakeProvider{respond: func(context.Context, llm.ChatRequest) (string, error) {
			return scorePayload(70), nil
		}}
		notifier = &fakeNotifier{}
		opts = evaluation.Options{Model: "gpt-4.1-mini", Temperature: 0.4, Concurrency: 3, CallTimeout: time.Second}
	})

	It("returns results in request order and persists them", func() {
		provider.respond = func(_ context.Context, req llm.ChatRequest) (string, error) {
			if strings.Contains(req.Messages[1].Content, "c-3") {
				time.Sleep(30 * time.Millisecond)
				return "```json\n" + scorePayload(90) + "\n```", nil
			}
			return scorePayload(70), nil
		}

		report, err := newOrchestrator().Run(ctx, evaluation.Request{ConversationIDs: []string{"c-3", "c-0", "c-4"}})
		Expect(err).To(BeNil())
		Expect(report.RunID).To(HavePrefix("run_"))
		Expect(ids(report.Items)).To(Equal([]string{"c-3", "c-0", "c-4"}))
		for _, it := range report.Items {
			Expect(it.OK).To(BeTrue())
			Expect(it.Persisted).To(BeTrue())
			Expect(*it.BotID).To(BeEquivalentTo(7))
		}
		Expect(report.Items[0].Verdict.Score).To(Equal(90.0))
		Expect(report.Items[0].Verdict.Status).To(Equal("good"))
		Expect(report.Items[1].Verdict.Score).To(Equal(70.0))
		Expect(report.Items[1].Verdict.Status).To(Equal("warn"))

		var stored []models.Evaluation
		Expect(db.Order("conversation_id").Find(&stored).Error).To(BeNil())
		Expect(stored).To(HaveLen(3))
		Expect(stored[0].Memory).To(Equal(datatypes.JSONMap{"marker": "c-0"}))

		Expect(notifier.summaries).To(HaveLen(1))
		summary := notifier.summaries[0]
		Expect(summary.RunID).To(Equal(report.RunID))
		Expect(summary.Total).To(Equal(3))
		Expect(summary.Persisted).To(Equal(3))
		Expect(summary.AverageScore).To(Equal(76.67))
	})

	It("builds prompts from the knowledge base and bot memory", func() {
		_, err := newOrchestrator().Run(ctx, evaluation.Request{ConversationIDs: []string{"c-1"}})
		Expect(err).To(BeNil())

		req, ok := provider.requestFor("c-1")
		Expect(ok).To(BeTrue())
		Expect(req.Model).To(Equal("gpt-4.1-mini"))
		Expect(req.Temperature).To(Equal(0.4))
		Expect(req.JSONObject).To(BeTrue())
		Expect(req.Messages[0].Role).To(Equal(llm.RoleSystem))
		Expect(req.Messages[0].Content).To(ContainSubstring(`{"rule":"<b>CCCD</b> & hộ khẩu"}`))
		Expect(req.Messages[0].Content).NotTo(ContainSubstring("{{KB}}"))
		Expect(req.Messages[0].Content).To(ContainSubstring("FIELDS: Field Completeness (weight: 20%)"))
		Expect(req.Messages[1].Content).To(Equal(evaluation.DefaultUserPromptPrefix + `{"marker":"c-1"}`))
	})

	It("sends an empty object when the bot has no knowledge or memory", func() {
		Expect(db.Create(&models.Conversation{ConversationID: "lonely", BotID: i64(99)}).Error).To(BeNil())
		_, err := newOrchestrator().Run(ctx, evaluation.Request{ConversationIDs: []string{"lonely"}})
		Expect(err).NotTo(HaveOccurred())

		req, ok := provider.requestFor(evaluation.DefaultUserPromptPrefix + "{}")
		Expect(ok).To(BeTrue())
		Expect(req.Messages[0].Content).To(ContainSubstring("```json\n{}\n```"))
	})

	It("never runs more than the configured number of calls at once", func() {
		for i := 5; i < 12; i++ {
			addConversation(fmt.Sprintf("c-%d", i), i, str(`{"k":"v"}`))
		}
		provider.respond = func(context.Context, llm.ChatRequest) (string, error) {
			time.Sleep(15 * time.Millisecond)
			return scorePayload(80), nil
		}

		report, err := newOrchestrator().Run(ctx, evaluation.Request{Limit: 12})
		Expect(err).To(BeNil())
		Expect(report.Items).To(HaveLen(12))
		Expect(provider.calls.Load()).To(BeEquivalentTo(12))
		Expect(provider.peak.Load()).To(BeNumerically("<=", 3))
		Expect(provider.peak.Load()).To(BeNumerically(">=", 2))
	})

	It("marks a slow item as timed out without affecting the others", func() {
		opts.CallTimeout = 50 * time.Millisecond
		provider.respond = func(ctx context.Context, req llm.ChatRequest) (string, error) {
			if strings.Contains(req.Messages[1].Content, "c-2") {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return scorePayload(85), nil
		}

		report, err := newOrchestrator().Run(ctx, evaluation.Request{ConversationIDs: []string{"c-1", "c-2", "c-3"}})
		Expect(err).To(BeNil())
		Expect(report.Items[1].OK).To(BeFalse())
		Expect(report.Items[1].Error).To(Equal("timeout"))
		Expect(report.Items[1].Persisted).To(BeFalse())
		Expect(report.Items[0].OK).To(BeTrue())
		Expect(report.Items[2].OK).To(BeTrue())

		var n int64
		Expect(db.Model(&models.Evaluation{}).Count(&n).Error).To(BeNil())
		Expect(n).To(BeEquivalentTo(2))
	})

	It("keeps abandoned calls counted against the concurrency cap", func() {
		opts.Concurrency = 2
		opts.CallTimeout = 100 * time.Millisecond
		release := make(chan struct{})
		provider.respond = func(_ context.Context, req llm.ChatRequest) (string, error) {
			if strings.Contains(req.Messages[1].Content, "c-0") {
				<-release
				return scorePayload(10), nil
			}
			time.Sleep(10 * time.Millisecond)
			return scorePayload(75), nil
		}
		orch := newOrchestrator()

		first, err := orch.Run(ctx, evaluation.Request{ConversationIDs: []string{"c-0"}})
		Expect(err).To(BeNil())
		Expect(first.Items[0].Error).To(Equal("timeout"))
		Expect(provider.active.Load()).To(BeEquivalentTo(1))

		second, err := orch.Run(ctx, evaluation.Request{ConversationIDs: []string{"c-1", "c-2", "c-3"}})
		Expect(err).To(BeNil())
		for _, it := range second.Items {
			Expect(it.OK).To(BeTrue())
		}
		Expect(provider.peak.Load()).To(BeEquivalentTo(2))

		close(release)
		Eventually(provider.active.Load).Should(BeZero())
	})

	It("degrades unparseable output to the default payload", func() {
		provider.respond = func(context.Context, llm.ChatRequest) (string, error) {
			return "I cannot evaluate this conversation.", nil
		}

		report, err := newOrchestrator().Run(ctx, evaluation.Request{ConversationIDs: []string{"c-0"}})
		Expect(err).To(BeNil())
		item := report.Items[0]
		Expect(item.OK).To(BeTrue())
		Expect(item.Verdict.Degraded).To(BeTrue())
		Expect(item.Verdict.Score).To(Equal(50.0))
		Expect(item.Verdict.Status).To(Equal("bad"))
		Expect(item.Result).To(HaveKeyWithValue("raw_response", "I cannot evaluate this conversation."))
		Expect(item.Result).To(HaveKey("evaluations"))
		Expect(item.Persisted).To(BeTrue())
	})

	It("caps the score when a critical violation is reported", func() {
		provider.respond = func(context.Context, llm.ChatRequest) (string, error) {
			return scorePayload(95, "Bot was promising_compensation to the customer"), nil
		}
		report, err := newOrchestrator().Run(ctx, evaluation.Request{ConversationIDs: []string{"c-0"}})
		Expect(err).To(BeNil())
		Expect(report.Items[0].Verdict.Score).To(Equal(40.0))
		Expect(report.Items[0].Verdict.Status).To(Equal("bad"))
	})

	It("reports provider errors per item", func() {
		provider.respond = func(_ context.Context, req llm.ChatRequest) (string, error) {
			if strings.Contains(req.Messages[1].Content, "c-1") {
				return "", errors.New("upstream 503")
			}
			return scorePayload(60), nil
		}
		report, err := newOrchestrator().Run(ctx, evaluation.Request{ConversationIDs: []string{"c-0", "c-1"}})
		Expect(err).To(BeNil())
		Expect(report.Items[1].Error).To(Equal("upstream 503"))
		Expect(report.Items[0].Persisted).To(BeTrue())

		s := report.Summary()
		Expect(s.Succeeded).To(Equal(1))
		Expect(s.Failed).To(Equal(1))
		Expect(s.AverageScore).To(Equal(60.0))
	})

	It("flags conversations without an id", func() {
		Expect(db.Exec("DELETE FROM conversation").Error).To(BeNil())
		addConversation("", 1, str(`{"a":1}`))
		addConversation("c-9", 0, str(`{"a":2}`))

		report, err := newOrchestrator().Run(ctx, evaluation.Request{Limit: 5})
		Expect(err).To(BeNil())
		Expect(report.Items).To(HaveLen(2))
		Expect(report.Items[0].Error).To(Equal("missing conversation_id"))
		Expect(report.Items[1].OK).To(BeTrue())
		Expect(provider.calls.Load()).To(BeEquivalentTo(1))
	})

	It("turns records rejected on validation into item failures", func() {
		addConversation("empty-memory", 10, str(`{}`))
		report, err := newOrchestrator().Run(ctx, evaluation.Request{ConversationIDs: []string{"c-0", "empty-memory"}})
		Expect(err).To(BeNil())
		Expect(report.Items[0].Persisted).To(BeTrue())
		Expect(report.Items[1].OK).To(BeFalse())
		Expect(report.Items[1].Persisted).To(BeFalse())
		Expect(report.Items[1].Error).To(ContainSubstring("memory cannot be empty"))
	})

	It("returns the report with nothing persisted when the batch fails", func() {
		Expect(db.Callback().Create().Before("gorm:create").Register("test:fail", func(tx *gorm.DB) {
			if tx.Statement.Table == "evaluations" {
				_ = tx.AddError(errors.New("connection reset"))
			}
		})).To(Succeed())

		report, err := newOrchestrator().Run(ctx, evaluation.Request{ConversationIDs: []string{"c-0", "c-1"}})
		Expect(errors.Is(err, errs.ErrPersistence)).To(BeTrue())
		Expect(report).NotTo(BeNil())
		for _, it := range report.Items {
			Expect(it.OK).To(BeTrue())
			Expect(it.Persisted).To(BeFalse())
		}
		Expect(notifier.summaries).To(BeEmpty())
	})

	It("rejects oversized requests before any scoring call", func() {
		req := evaluation.Request{}
		for i := 0; i < 21; i++ {
			req.ConversationIDs = append(req.ConversationIDs, fmt.Sprintf("c-%d", i))
		}
		_, err := newOrchestrator().Run(ctx, req)
		Expect(errs.IsInput(err)).To(BeTrue())
		Expect(errors.Is(err, errs.ErrTooManyConversations)).To(BeTrue())
		Expect(provider.calls.Load()).To(BeZero())
	})

	It("returns the empty-result error when nothing matches", func() {
		_, err := newOrchestrator().Run(ctx, evaluation.Request{ConversationIDs: []string{"nope"}})
		Expect(errors.Is(err, errs.ErrNoConversations)).To(BeTrue())
		Expect(provider.calls.Load()).To(BeZero())
	})

	It("is idempotent across repeated runs", func() {
		orch := newOrchestrator()
		for i := 0; i < 2; i++ {
			_, err := orch.Run(ctx, evaluation.Request{ConversationIDs: []string{"c-0", "c-1"}})
			Expect(err).To(BeNil())
		}
		var n int64
		Expect(db.Model(&models.Evaluation{}).Count(&n).Error).To(BeNil())
		Expect(n).To(BeEquivalentTo(2))
	})
})
