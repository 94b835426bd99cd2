package botcatalog_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"qa-compass-server/src/configs"
	"qa-compass-server/src/configs/database"
	"qa-compass-server/src/configs/database/dbtest"
	"qa-compass-server/src/core/botcatalog"
	"qa-compass-server/src/core/cache"
	"qa-compass-server/src/core/errs"
	"qa-compass-server/src/core/prompt"
	"qa-compass-server/src/core/providers/llm"
	"qa-compass-server/src/core/utils"
	"qa-compass-server/src/models"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func str(s string) *string { return &s }

type stubProvider struct {
	calls   atomic.Int32
	last    llm.ChatRequest
	respond func(llm.ChatRequest) (string, error)
}

func (p *stubProvider) Initialize() error { return nil }
func (p *stubProvider) Cleanup() error    { return nil }

func (p *stubProvider) Chat(_ context.Context, req llm.ChatRequest) (string, error) {
	p.calls.Add(1)
	p.last = req
	return p.respond(req)
}

var emptyDBSeq atomic.Int64

var _ = Describe("Service", func() {
	var (
		db       *gorm.DB
		mr       *miniredis.Miniredis
		provider *stubProvider
		svc      *botcatalog.Service
		ctx      = context.Background()
	)

	newService := func(readDB *gorm.DB) *botcatalog.Service {
		rt := cache.NewReadThrough(cache.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "qa"), utils.NopLogger())
		return botcatalog.NewService(db, readDB, provider, prompt.NewLoader(""), rt, botcatalog.Options{
			KnowledgeModel: "gpt-4.1",
			Temperature:    0.4,
			ListTTL:        24 * time.Hour,
		}, utils.NopLogger())
	}

	BeforeEach(func() {
		var err error
		db, err = dbtest.New()
		Expect(err).To(BeNil())
		mr, err = miniredis.Run()
		Expect(err).To(BeNil())

		Expect(db.Create(&models.LegacyBot{ID: 12, Name: str("Tư vấn hộ tịch"), SystemPrompt: str("Bạn là trợ lý hộ tịch.")}).Error).To(BeNil())
		Expect(db.Create(&models.LegacyBot{ID: 13, Name: str("  ")}).Error).To(BeNil())

		provider = &stubProvider{respond: func(llm.ChatRequest) (string, error) {
			return "```json\n{\"purpose\":\"hộ tịch\",\"intents\":[\"register_birth\"]}\n```", nil
		}}
		svc = newService(db)
	})

	AfterEach(func() {
		mr.Close()
	})

	It("imports a legacy bot with a generated knowledge base", func() {
		bot, created, err := svc.Import(ctx, 12)
		Expect(err).To(BeNil())
		Expect(created).To(BeTrue())
		Expect(bot.Name).To(Equal("Tư vấn hộ tịch"))

		Expect(provider.last.Model).To(Equal("gpt-4.1"))
		Expect(provider.last.Messages[1].Content).To(Equal("Bạn là trợ lý hộ tịch."))

		versions, err := svc.Versions(ctx, 12)
		Expect(err).To(BeNil())
		Expect(versions).To(HaveLen(1))
		Expect(versions[0].SystemPrompt).To(Equal("Bạn là trợ lý hộ tịch."))
		Expect(versions[0].KnowledgeBase).To(HaveKeyWithValue("purpose", "hộ tịch"))
	})

	It("is idempotent", func() {
		first, _, err := svc.Import(ctx, 12)
		Expect(err).To(BeNil())
		again, created, err := svc.Import(ctx, 12)
		Expect(err).To(BeNil())
		Expect(created).To(BeFalse())
		Expect(again.ID).To(Equal(first.ID))
		Expect(provider.calls.Load()).To(BeEquivalentTo(1))

		var n int64
		Expect(db.Model(&models.BotVersion{}).Where("bot_index = ?", 12).Count(&n).Error).To(BeNil())
		Expect(n).To(BeEquivalentTo(1))
	})

	It("falls back to defaults when the legacy row has no data", func() {
		bot, _, err := svc.Import(ctx, 13)
		Expect(err).To(BeNil())
		Expect(bot.Name).To(Equal("Bot 13"))
		Expect(provider.calls.Load()).To(BeZero())

		versions, err := svc.Versions(ctx, 13)
		Expect(err).To(BeNil())
		Expect(versions[0].SystemPrompt).To(Equal(botcatalog.ImportedPrompt))
		Expect(versions[0].KnowledgeBase).To(Equal(datatypes.JSONMap{}))
	})

	It("tolerates a read store without the legacy table", func() {
		empty, err := database.Open(configs.DBConfig{Dialect: "sqlite", DSN: fmt.Sprintf("file:legacy_empty_%d?mode=memory&cache=shared", emptyDBSeq.Add(1))})
		Expect(err).To(BeNil())

		bot, created, err := newService(empty).Import(ctx, 44)
		Expect(err).To(BeNil())
		Expect(created).To(BeTrue())
		Expect(bot.Name).To(Equal("Bot 44"))
	})

	It("stores an empty knowledge base when generation fails", func() {
		provider.respond = func(llm.ChatRequest) (string, error) { return "", errors.New("quota exceeded") }
		_, _, err := svc.Import(ctx, 12)
		Expect(err).To(BeNil())
		versions, err := svc.Versions(ctx, 12)
		Expect(err).To(BeNil())
		Expect(versions[0].KnowledgeBase).To(Equal(datatypes.JSONMap{}))
	})

	It("rejects non-positive indices", func() {
		_, _, err := svc.Import(ctx, 0)
		Expect(errs.IsInput(err)).To(BeTrue())
	})

	It("regenerates knowledge as a new version and keeps the old one", func() {
		_, _, err := svc.Import(ctx, 12)
		Expect(err).To(BeNil())

		provider.respond = func(req llm.ChatRequest) (string, error) {
			Expect(req.JSONObject).To(BeTrue())
			return `{"purpose":"v2"}`, nil
		}
		v2, err := svc.RegenerateKnowledge(ctx, 12)
		Expect(err).To(BeNil())
		Expect(v2.KnowledgeBase).To(Equal(datatypes.JSONMap{"purpose": "v2"}))

		versions, err := svc.Versions(ctx, 12)
		Expect(err).To(BeNil())
		Expect(versions).To(HaveLen(2))
		Expect(versions[0].ID).To(Equal(v2.ID))
		Expect(versions[1].KnowledgeBase).To(HaveKeyWithValue("purpose", "hộ tịch"))
		Expect(versions[0].SystemPrompt).To(Equal(versions[1].SystemPrompt))
	})

	It("reports unknown bots as not found", func() {
		_, err := svc.Versions(ctx, 999)
		Expect(errs.IsNotFound(err)).To(BeTrue())
		_, err = svc.RegenerateKnowledge(ctx, 999)
		Expect(errs.IsNotFound(err)).To(BeTrue())
		_, err = svc.Rename(ctx, 999, "x")
		Expect(errs.IsNotFound(err)).To(BeTrue())
	})

	It("renames bots and refreshes the cached list", func() {
		_, _, err := svc.Import(ctx, 12)
		Expect(err).To(BeNil())

		list, err := svc.List(ctx, 0)
		Expect(err).To(BeNil())
		Expect(list).To(HaveLen(1))
		Expect(mr.Exists("qa:bots:list:limit=100")).To(BeTrue())

		_, err = svc.Rename(ctx, 12, "  Hộ tịch 2  ")
		Expect(err).To(BeNil())
		Expect(mr.Exists("qa:bots:list:limit=100")).To(BeFalse())

		list, err = svc.List(ctx, 0)
		Expect(err).To(BeNil())
		Expect(list[0].Name).To(Equal("Hộ tịch 2"))

		_, err = svc.Rename(ctx, 12, "   ")
		Expect(errs.IsInput(err)).To(BeTrue())
	})

	It("lists newest bots first within the limit", func() {
		for _, idx := range []int64{12, 13, 14} {
			_, _, err := svc.Import(ctx, idx)
			Expect(err).To(BeNil())
			time.Sleep(5 * time.Millisecond)
		}
		list, err := svc.List(ctx, 2)
		Expect(err).To(BeNil())
		Expect(list).To(HaveLen(2))
		Expect(list[0].BotIndex).To(BeEquivalentTo(14))
		Expect(list[1].BotIndex).To(BeEquivalentTo(13))

		Expect(svc.ClearCache(ctx)).To(Equal(1))
	})
})
