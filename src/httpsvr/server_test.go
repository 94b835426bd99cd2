package httpsvr_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"qa-compass-server/src/core/auth"
	"qa-compass-server/src/core/evaluation"
	"qa-compass-server/src/core/utils"
	"qa-compass-server/src/httpsvr"
	"qa-compass-server/src/httpsvr/qarun"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type okRunner struct{}

func (okRunner) Run(context.Context, evaluation.Request) (*evaluation.Report, error) {
	return &evaluation.Report{RunID: "r"}, nil
}

var _ = Describe("router", func() {
	var token *auth.AuthToken

	BeforeEach(func() {
		var err error
		token, err = auth.NewAuthToken("0123456789abcdef0123456789abcdef")
		Expect(err).NotTo(HaveOccurred())
	})

	newRouter := func(withAuth bool) http.Handler {
		routes := httpsvr.Routes{QARun: qarun.NewHandler(okRunner{}, utils.NopLogger())}
		if withAuth {
			routes.AuthToken = token
		}
		return httpsvr.NewRouter(routes, utils.NopLogger())
	}

	run := func(h http.Handler, bearer string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, httpsvr.APIPrefix+"/qa_runs/run", nil)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	It("serves api routes without auth when disabled", func() {
		Expect(run(newRouter(false), "").Code).To(Equal(http.StatusOK))
	})

	It("requires a bearer token when enabled", func() {
		h := newRouter(true)
		Expect(run(h, "").Code).To(Equal(http.StatusUnauthorized))

		signed, err := token.GenerateToken("ops", "admin", time.Minute)
		Expect(err).NotTo(HaveOccurred())
		w := run(h, signed)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("X-Request-Id")).NotTo(BeEmpty())
	})

	It("shuts the server down when the context ends", func() {
		srv := httpsvr.NewServer("127.0.0.1", 0, newRouter(false), utils.NopLogger())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- srv.Run(ctx) }()
		time.Sleep(50 * time.Millisecond)
		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
	})
})
