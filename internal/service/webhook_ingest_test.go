package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/service"
)

const prOpened = `{
  "action": "opened",
  "number": 5,
  "pull_request": {
    "id": 1001,
    "number": 5,
    "title": "Add cache",
    "html_url": "https://github.com/acme/api/pull/5",
    "created_at": "2024-05-01T10:00:00Z",
    "updated_at": "2024-05-01T10:00:00Z",
    "head": {"sha": "abc123"}
  },
  "repository": {"full_name": "acme/api"},
  "installation": {"id": 42},
  "sender": {"login": "octo"}
}`

const pushed = `{
  "ref": "refs/heads/main",
  "after": "b2",
  "pusher": {"name": "octo"},
  "repository": {"full_name": "acme/api"},
  "installation": {"id": 42},
  "sender": {"login": "octo"},
  "commits": [
    {"id": "a1", "message": "first", "timestamp": "2024-05-01T10:00:00Z", "url": "https://github.com/acme/api/commit/a1", "author": {"name": "Octo Cat"}},
    {"id": "b2", "message": "second", "timestamp": "2024-05-01T10:05:00Z", "url": "https://github.com/acme/api/commit/b2", "author": {"name": "Octo Cat"}}
  ]
}`

const mergeRequestOpened = `{
  "object_kind": "merge_request",
  "event_type": "merge_request",
  "user": {"username": "tanuki"},
  "project": {"path_with_namespace": "group/app"},
  "object_attributes": {"id": 900, "iid": 12, "title": "Fix", "url": "https://gitlab.com/group/app/-/merge_requests/12", "action": "open", "last_commit": {"id": "ff00"}}
}`

var _ = Describe("WebhookIngestService", func() {
	var (
		ctx      context.Context
		producer *mockProducer
		svc      service.WebhookIngestService
	)

	BeforeEach(func() {
		ctx = context.Background()
		producer = &mockProducer{}
		svc = service.NewWebhookIngestService(producer, "vortex.github", "vortex.gitlab")
	})

	Describe("IngestGitHub", func() {
		It("publishes pr.created for an opened pull request", func() {
			res, err := svc.IngestGitHub(ctx, service.WebhookRequest{EventName: "pull_request", Body: []byte(prOpened), TraceID: "t-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Event).NotTo(BeNil())

			Expect(producer.published).To(HaveLen(1))
			evt := producer.published[0]
			Expect(evt.Source).To(Equal("vortex.github"))
			Expect(evt.DetailType).To(Equal(domain.EventPRCreated))
			Expect(evt.CorrelationID).To(Equal(evt.ID))
			Expect(producer.opts[0].TraceID).To(Equal("t-1"))

			d := evt.Detail.(domain.PullRequestDetail)
			Expect(d.PRID).To(Equal(int64(1001)))
			Expect(d.Number).To(Equal(5))
			Expect(d.Repo).To(Equal("acme/api"))
			Expect(d.Installation).To(Equal(int64(42)))
			Expect(d.GithubUsername).To(Equal("octo"))
			Expect(d.CreatedAt).To(Equal("2024-05-01T10:00:00Z"))
		})

		It("publishes pr.updated for a synchronized pull request", func() {
			body := []byte(`{"action":"synchronize","pull_request":{"id":1001,"number":5},"repository":{"full_name":"acme/api"},"installation":{"id":42}}`)
			_, err := svc.IngestGitHub(ctx, service.WebhookRequest{EventName: "pull_request", Body: body})
			Expect(err).NotTo(HaveOccurred())
			Expect(producer.published).To(HaveLen(1))
			Expect(producer.published[0].DetailType).To(Equal(domain.EventPRUpdated))
		})

		It("publishes commit.pushed with every commit", func() {
			_, err := svc.IngestGitHub(ctx, service.WebhookRequest{EventName: "push", Body: []byte(pushed)})
			Expect(err).NotTo(HaveOccurred())

			d := producer.published[0].Detail.(domain.CommitPushedDetail)
			Expect(d.Head).To(Equal("b2"))
			Expect(d.Pusher).To(Equal("octo"))
			Expect(d.Commits).To(HaveLen(2))
			Expect(d.Commits[0].Author).To(Equal("Octo Cat"))
			Expect(d.Commits[1].Timestamp).To(Equal("2024-05-01T10:05:00Z"))
		})

		DescribeTable("acknowledges without publishing",
			func(eventName, body string) {
				res, err := svc.IngestGitHub(ctx, service.WebhookRequest{EventName: eventName, Body: []byte(body)})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Event).To(BeNil())
				Expect(res.Ignored).NotTo(BeEmpty())
				Expect(producer.published).To(BeEmpty())
			},
			Entry("closed pull request", "pull_request", `{"action":"closed","pull_request":{"id":1,"number":1}}`),
			Entry("issues event", "issues", `{"action":"opened"}`),
			Entry("ping", "ping", `{"zen":"hi"}`),
		)

		It("rejects a malformed payload as a bad request", func() {
			_, err := svc.IngestGitHub(ctx, service.WebhookRequest{EventName: "pull_request", Body: []byte("{not json")})
			Expect(err).To(HaveOccurred())
			Expect(service.IsBadRequest(err)).To(BeTrue())
		})

		It("rejects a pull request without an installation", func() {
			body := []byte(`{"action":"opened","pull_request":{"id":1001,"number":5},"repository":{"full_name":"acme/api"}}`)
			_, err := svc.IngestGitHub(ctx, service.WebhookRequest{EventName: "pull_request", Body: body})
			Expect(service.IsBadRequest(err)).To(BeTrue())
		})

		It("returns bus failures", func() {
			producer.err = domain.NewUpstreamError("event bus", 0, errors.New("connection refused"))
			_, err := svc.IngestGitHub(ctx, service.WebhookRequest{EventName: "pull_request", Body: []byte(prOpened)})
			Expect(err).To(HaveOccurred())
			Expect(service.IsBadRequest(err)).To(BeFalse())
		})
	})

	Describe("IngestGitLab", func() {
		It("publishes pr.created for an opened merge request", func() {
			_, err := svc.IngestGitLab(ctx, service.WebhookRequest{EventName: "Merge Request Hook", Body: []byte(mergeRequestOpened)})
			Expect(err).NotTo(HaveOccurred())

			evt := producer.published[0]
			Expect(evt.Source).To(Equal("vortex.gitlab"))
			d := evt.Detail.(domain.PullRequestDetail)
			Expect(d.Provider).To(Equal(domain.ProviderGitLab))
			Expect(d.Repo).To(Equal("group/app"))
			Expect(d.Number).To(Equal(12))
			Expect(d.PRID).To(Equal(int64(900)))
			Expect(d.GithubUsername).To(Equal("tanuki"))
		})

		It("ignores other hooks", func() {
			res, err := svc.IngestGitLab(ctx, service.WebhookRequest{EventName: "Issue Hook", Body: []byte(`{}`)})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Event).To(BeNil())
		})
	})
})
