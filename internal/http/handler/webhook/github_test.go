package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/http/dto"
	"vortex.app/relay/internal/http/handler/webhook"
	"vortex.app/relay/internal/queue"
	"vortex.app/relay/internal/service"
	"vortex.app/relay/internal/signature"
)

type fakeProducer struct {
	mu        sync.Mutex
	published []domain.Event
	traceIDs  []string
}

func (f *fakeProducer) Publish(_ context.Context, evt domain.Event, opts queue.PublishOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, evt)
	f.traceIDs = append(f.traceIDs, opts.TraceID)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type countingSecret struct {
	secret []byte
	err    error
	calls  int
}

func (c *countingSecret) fetch(context.Context) ([]byte, error) {
	c.calls++
	return c.secret, c.err
}

const openedBody = `{"action":"opened","pull_request":{"id":1001,"number":5,"title":"Add cache"},"repository":{"full_name":"acme/api"},"installation":{"id":42},"sender":{"login":"octo"}}`

var _ = Describe("GitHubWebhookHandler", func() {
	var (
		producer *fakeProducer
		secret   *countingSecret
		engine   *gin.Engine
	)

	secretValue := []byte("It's a Secret to Everybody")

	BeforeEach(func() {
		producer = &fakeProducer{}
		secret = &countingSecret{secret: secretValue}
		ingest := service.NewWebhookIngestService(producer, "vortex.github", "vortex.gitlab")
		h := webhook.NewGitHubWebhookHandler(webhook.NewMemoizedSecret(secret.fetch), ingest, "X-Trace-Id")
		engine = gin.New()
		engine.POST("/webhooks/github", h.HandleEvent)
	})

	send := func(event, body, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewBufferString(body))
		if event != "" {
			req.Header.Set("X-GitHub-Event", event)
		}
		if sig != "" {
			req.Header.Set(signature.HeaderName, sig)
		}
		req.Header.Set("X-Trace-Id", "trace-1")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		return rec
	}

	It("publishes pr.created for a signed opened pull request", func() {
		rec := send("pull_request", openedBody, signature.Sign([]byte(openedBody), secretValue))
		Expect(rec.Code).To(Equal(http.StatusOK))

		var resp dto.WebhookResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Status).To(Equal("ok"))
		Expect(resp.DetailType).To(Equal("pr.created"))

		Expect(producer.published).To(HaveLen(1))
		Expect(producer.published[0].Detail.(domain.PullRequestDetail).Installation).To(Equal(int64(42)))
		Expect(producer.traceIDs).To(Equal([]string{"trace-1"}))
	})

	It("fetches the secret once across deliveries", func() {
		sig := signature.Sign([]byte(openedBody), secretValue)
		Expect(send("pull_request", openedBody, sig).Code).To(Equal(http.StatusOK))
		Expect(send("pull_request", openedBody, sig).Code).To(Equal(http.StatusOK))
		Expect(secret.calls).To(Equal(1))
	})

	It("acknowledges other actions without publishing", func() {
		body := `{"action":"closed","pull_request":{"id":1,"number":1}}`
		rec := send("pull_request", body, signature.Sign([]byte(body), secretValue))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("ignored"))
		Expect(producer.published).To(BeEmpty())
	})

	DescribeTable("rejects incomplete requests with 400",
		func(event, body string, signed bool) {
			sig := ""
			if signed {
				sig = signature.Sign([]byte(body), secretValue)
			}
			Expect(send(event, body, sig).Code).To(Equal(http.StatusBadRequest))
			Expect(producer.published).To(BeEmpty())
		},
		Entry("no signature", "pull_request", openedBody, false),
		Entry("no event header", "", openedBody, true),
		Entry("empty body", "pull_request", "", true),
	)

	It("rejects a bad signature with 401", func() {
		rec := send("pull_request", openedBody, signature.Sign([]byte(openedBody), []byte("wrong")))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(producer.published).To(BeEmpty())
	})

	It("answers 401 when the secret cannot be fetched, and retries the fetch next time", func() {
		secret.err = errors.New("secret store down")
		sig := signature.Sign([]byte(openedBody), secretValue)
		Expect(send("pull_request", openedBody, sig).Code).To(Equal(http.StatusUnauthorized))

		secret.err = nil
		Expect(send("pull_request", openedBody, sig).Code).To(Equal(http.StatusOK))
		Expect(secret.calls).To(Equal(2))
	})

	It("refuses an oversized payload before fetching the secret", func() {
		body := `{"action":"opened"}` + strings.Repeat(" ", webhook.MaxPayloadBytes)
		rec := send("pull_request", body, signature.Sign([]byte(body), secretValue))
		Expect(rec.Code).To(Equal(http.StatusRequestEntityTooLarge))
		Expect(secret.calls).To(BeZero())
		Expect(producer.published).To(BeEmpty())
	})

	It("answers 400 for a signed but malformed payload", func() {
		body := `{"action":`
		Expect(send("pull_request", body, signature.Sign([]byte(body), secretValue)).Code).To(Equal(http.StatusBadRequest))
	})
})
