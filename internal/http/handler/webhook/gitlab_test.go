package webhook_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/http/handler/webhook"
	"vortex.app/relay/internal/service"
)

const pushHook = `{
  "object_kind": "push",
  "ref": "refs/heads/main",
  "after": "c3",
  "user_name": "Tanuki",
  "user_username": "tanuki",
  "project": {"path_with_namespace": "group/app"},
  "commits": [{"id": "c3", "message": "fix", "url": "https://gitlab.com/group/app/-/commit/c3", "author": {"name": "Tanuki"}}]
}`

var _ = Describe("GitLabWebhookHandler", func() {
	var (
		producer *fakeProducer
		engine   *gin.Engine
	)

	BeforeEach(func() {
		producer = &fakeProducer{}
		token := &countingSecret{secret: []byte("gl-token")}
		ingest := service.NewWebhookIngestService(producer, "vortex.github", "vortex.gitlab")
		h := webhook.NewGitLabWebhookHandler(webhook.NewMemoizedSecret(token.fetch), ingest, "")
		engine = gin.New()
		engine.POST("/webhooks/gitlab", h.HandleEvent)
	})

	send := func(token, event, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/gitlab", bytes.NewBufferString(body))
		if token != "" {
			req.Header.Set("X-Gitlab-Token", token)
		}
		req.Header.Set("X-Gitlab-Event", event)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		return rec.Code
	}

	It("publishes commit.pushed for a push hook", func() {
		Expect(send("gl-token", "Push Hook", pushHook)).To(Equal(http.StatusOK))
		Expect(producer.published).To(HaveLen(1))
		evt := producer.published[0]
		Expect(evt.Source).To(Equal("vortex.gitlab"))
		d := evt.Detail.(domain.CommitPushedDetail)
		Expect(d.Repo).To(Equal("group/app"))
		Expect(d.GithubUsername).To(Equal("tanuki"))
		Expect(d.Commits).To(HaveLen(1))
	})

	It("rejects a missing token", func() {
		Expect(send("", "Push Hook", pushHook)).To(Equal(http.StatusUnauthorized))
	})

	It("rejects a wrong token", func() {
		Expect(send("nope", "Push Hook", pushHook)).To(Equal(http.StatusUnauthorized))
		Expect(producer.published).To(BeEmpty())
	})

	It("refuses an oversized payload", func() {
		body := pushHook + strings.Repeat(" ", webhook.MaxPayloadBytes)
		Expect(send("gl-token", "Push Hook", body)).To(Equal(http.StatusRequestEntityTooLarge))
		Expect(producer.published).To(BeEmpty())
	})

	It("acknowledges unsupported hooks", func() {
		Expect(send("gl-token", "Note Hook", `{"object_kind":"note"}`)).To(Equal(http.StatusOK))
		Expect(producer.published).To(BeEmpty())
	})
})
