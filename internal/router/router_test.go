package router_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/router"
)

func prCreated(source string) domain.Event {
	evt, err := domain.NewEvent(source, domain.EventPRCreated, domain.PullRequestDetail{
		Provider: domain.ProviderGitHub, PRID: 10, Number: 3, Repo: "acme/api", Installation: 1,
	})
	Expect(err).NotTo(HaveOccurred())
	return evt
}

func counting(n *atomic.Int32, err error) router.Handler {
	return router.HandlerFunc(func(context.Context, domain.Event) ([]domain.Event, error) {
		n.Add(1)
		return nil, err
	})
}

var _ = Describe("Router", func() {
	ctx := context.Background()

	It("matches exact and wildcard sources and ignores other detail types", func() {
		exact := router.Route{Name: "exact", Sources: []string{"vortex.github"}, DetailTypes: []domain.EventType{domain.EventPRCreated}}
		wild := router.Route{Name: "wild", Sources: []string{"vortex.*"}}
		other := router.Route{Name: "other", DetailTypes: []domain.EventType{domain.EventDiffReady}}
		foreign := router.Route{Name: "foreign", Sources: []string{"acme.*"}}

		evt := prCreated("vortex.github")
		Expect(exact.Matches(evt)).To(BeTrue())
		Expect(wild.Matches(evt)).To(BeTrue())
		Expect(other.Matches(evt)).To(BeFalse())
		Expect(foreign.Matches(evt)).To(BeFalse())
		Expect(exact.Matches(prCreated("vortex.gitlab"))).To(BeFalse())
	})

	It("fans out to every matching route concurrently and isolates failures", func() {
		var ok1, ok2, failing, unmatched atomic.Int32
		release := make(chan struct{})
		slow := router.HandlerFunc(func(context.Context, domain.Event) ([]domain.Event, error) {
			<-release
			ok2.Add(1)
			return nil, nil
		})

		r, err := router.New([]router.Route{
			{Name: "a", Handler: counting(&ok1, nil)},
			{Name: "b", Handler: slow},
			{Name: "c", Handler: counting(&failing, errors.New("boom"))},
			{Name: "d", DetailTypes: []domain.EventType{domain.EventReportReady}, Handler: counting(&unmatched, nil)},
		})
		Expect(err).NotTo(HaveOccurred())

		done := make(chan []router.Outcome)
		go func() { done <- r.Dispatch(ctx, prCreated("vortex.github"), "") }()

		Eventually(ok1.Load).Should(Equal(int32(1)))
		Eventually(failing.Load).Should(Equal(int32(1)))
		close(release)

		var outcomes []router.Outcome
		Eventually(done, time.Second).Should(Receive(&outcomes))
		Expect(outcomes).To(HaveLen(3))
		Expect(ok2.Load()).To(Equal(int32(1)))
		Expect(unmatched.Load()).To(BeZero())

		byRoute := map[string]error{}
		for _, o := range outcomes {
			byRoute[o.Route] = o.Err
		}
		Expect(byRoute["a"]).NotTo(HaveOccurred())
		Expect(byRoute["b"]).NotTo(HaveOccurred())
		Expect(byRoute["c"]).To(MatchError("boom"))

		stats := r.Stats().Snapshot()
		Expect(stats["c"].Failed).To(Equal(int64(1)))
		Expect(stats["a"].Succeeded).To(Equal(int64(1)))
	})

	It("restricts dispatch to the target route", func() {
		var a, b atomic.Int32
		r, err := router.New([]router.Route{
			{Name: "a", Handler: counting(&a, nil)},
			{Name: "b", Handler: counting(&b, nil)},
		})
		Expect(err).NotTo(HaveOccurred())

		outcomes := r.Dispatch(ctx, prCreated("vortex.github"), "b")
		Expect(outcomes).To(HaveLen(1))
		Expect(a.Load()).To(BeZero())
		Expect(b.Load()).To(Equal(int32(1)))
	})

	It("turns a handler panic into a failed outcome", func() {
		r, err := router.New([]router.Route{{
			Name: "p",
			Handler: router.HandlerFunc(func(context.Context, domain.Event) ([]domain.Event, error) {
				panic("nil map")
			}),
		}})
		Expect(err).NotTo(HaveOccurred())

		outcomes := r.Dispatch(ctx, prCreated("vortex.github"), "")
		Expect(outcomes[0].Err).To(MatchError(ContainSubstring("panicked")))
	})

	It("rejects duplicate and handler-less routes", func() {
		var n atomic.Int32
		_, err := router.New([]router.Route{{Name: "x", Handler: counting(&n, nil)}, {Name: "x", Handler: counting(&n, nil)}})
		Expect(err).To(HaveOccurred())
		_, err = router.New([]router.Route{{Name: "y"}})
		Expect(err).To(HaveOccurred())
	})
})
