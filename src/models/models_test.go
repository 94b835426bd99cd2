package models_test

import (
	"qa-compass-server/src/configs/database/dbtest"
	"qa-compass-server/src/models"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var _ = Describe("models", func() {
	var db *gorm.DB

	BeforeEach(func() {
		var err error
		db, err = dbtest.New()
		Expect(err).To(BeNil())
	})

	Describe("Bot", func() {
		It("trims the name and assigns an id", func() {
			bot := &models.Bot{BotIndex: 7, Name: "  Support  "}
			Expect(db.Create(bot).Error).To(BeNil())
			Expect(bot.Name).To(Equal("Support"))
			Expect(bot.ID).NotTo(Equal(uuid.Nil))
		})

		It("rejects empty names and non-positive indices", func() {
			Expect(db.Create(&models.Bot{BotIndex: 1, Name: "   "}).Error).To(MatchError(models.ErrEmptyBotName))
			Expect(db.Create(&models.Bot{BotIndex: 0, Name: "x"}).Error).To(MatchError(models.ErrInvalidBotIndex))
		})
	})

	Describe("BotVersion", func() {
		It("defaults the knowledge base and requires a prompt", func() {
			Expect(db.Create(&models.Bot{BotIndex: 3, Name: "b"}).Error).To(BeNil())

			v := &models.BotVersion{BotIndex: 3, SystemPrompt: " be nice "}
			Expect(db.Create(v).Error).To(BeNil())
			Expect(v.KnowledgeBase).To(Equal(datatypes.JSONMap{}))
			Expect(v.SystemPrompt).To(Equal("be nice"))
			Expect(v.ID.Version()).To(Equal(uuid.Version(7)))

			Expect(db.Create(&models.BotVersion{BotIndex: 3, SystemPrompt: ""}).Error).To(MatchError(models.ErrEmptySystemPrompt))
		})

		It("is removed together with its bot", func() {
			bot := &models.Bot{BotIndex: 4, Name: "b"}
			Expect(db.Create(bot).Error).To(BeNil())
			Expect(db.Create(&models.BotVersion{BotIndex: 4, SystemPrompt: "p"}).Error).To(BeNil())

			Expect(db.Delete(bot).Error).To(BeNil())
			var n int64
			Expect(db.Model(&models.BotVersion{}).Where("bot_index = ?", 4).Count(&n).Error).To(BeNil())
			Expect(n).To(BeZero())
		})
	})

	Describe("Evaluation", func() {
		It("requires non-empty memory and result", func() {
			e := &models.Evaluation{ConversationID: "c1", Memory: datatypes.JSONMap{}, EvaluationResult: datatypes.JSONMap{"a": 1}}
			Expect(db.Create(e).Error).To(MatchError(models.ErrEmptyMemory))

			e = &models.Evaluation{ConversationID: "c1", Memory: datatypes.JSONMap{"m": 1}}
			Expect(db.Create(e).Error).To(MatchError(models.ErrEmptyResult))

			e = &models.Evaluation{ConversationID: " ", Memory: datatypes.JSONMap{"m": 1}, EvaluationResult: datatypes.JSONMap{"a": 1}}
			Expect(db.Create(e).Error).To(MatchError(models.ErrEmptyConversationID))
		})

		It("stores issues and defaults reviewed to false", func() {
			e := &models.Evaluation{
				ConversationID:   "c2",
				Memory:           datatypes.JSONMap{"messages": []any{"hi"}},
				EvaluationResult: datatypes.JSONMap{"evaluations": map[string]any{}},
				Score:            72.5,
				Status:           models.StatusWarn,
				Issues:           datatypes.JSONSlice[models.EvaluationIssue]{{Criterion: "tone", Issue: "curt", Severity: "minor"}},
			}
			Expect(db.Create(e).Error).To(BeNil())

			var got models.Evaluation
			Expect(db.Where("conversation_id = ?", "c2").First(&got).Error).To(BeNil())
			Expect(got.Reviewed).To(BeFalse())
			Expect(got.ReviewNote).To(BeNil())
			Expect(got.Issues).To(HaveLen(1))
			Expect(got.Issues[0].Criterion).To(Equal("tone"))
		})
	})
})
