package errs

import (
	"errors"
	"fmt"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("errs", func() {
	It("detects wrapped input errors", func() {
		err := fmt.Errorf("fetch: %w", NewInput("conversation_ids exceeds 20", ErrTooManyConversations))
		Expect(IsInput(err)).To(BeTrue())
		Expect(errors.Is(err, ErrTooManyConversations)).To(BeTrue())
		Expect(StatusCode(err)).To(Equal(http.StatusBadRequest))
	})

	It("detects not found errors", func() {
		err := fmt.Errorf("get: %w", NewNotFound("evaluation", "c-1"))
		Expect(IsNotFound(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("evaluation c-1 not found"))
		Expect(StatusCode(err)).To(Equal(http.StatusNotFound))
	})

	It("maps the empty batch to 404 and persistence to 500", func() {
		Expect(StatusCode(ErrNoConversations)).To(Equal(http.StatusNotFound))
		Expect(StatusCode(fmt.Errorf("commit: %w", ErrPersistence))).To(Equal(http.StatusInternalServerError))
		Expect(StatusCode(nil)).To(Equal(http.StatusOK))
	})

	It("returns false for plain errors", func() {
		Expect(IsInput(errors.New("x"))).To(BeFalse())
		Expect(IsNotFound(errors.New("x"))).To(BeFalse())
	})
})
