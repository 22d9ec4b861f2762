package credential_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vortex.app/relay/internal/credential"
	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/model"
)

var _ = Describe("Broker", func() {
	var (
		ctx    context.Context
		now    time.Time
		cache  *credential.TokenCache
		tokens *mockTokenStore
		issuer *mockIssuer
		broker *credential.Broker
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		cache = credential.NewTokenCache()
		tokens = newMockTokenStore()
		issuer = &mockIssuer{issue: func(id int64, call int) (model.InstallationToken, error) {
			return model.InstallationToken{
				InstallationID: id,
				Token:          fmt.Sprintf("ghs_%d_%d", id, call),
				ExpiresAt:      now.Add(time.Hour),
			}, nil
		}}
		broker = credential.NewBroker(cache, tokens, issuer, credential.WithClock(func() time.Time { return now }))
	})

	It("serves a second call within the margin from cache without another issuer call", func() {
		for _, id := range []int64{1, 42, 99999} {
			first, err := broker.GetInstallationToken(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			second, err := broker.GetInstallationToken(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		}
		Expect(issuer.Calls()).To(Equal(3))
	})

	It("issues exactly one new token after expiry", func() {
		first, err := broker.GetInstallationToken(ctx, 7)
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(time.Hour)
		second, err := broker.GetInstallationToken(ctx, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Token).NotTo(Equal(first.Token))
		Expect(issuer.Calls()).To(Equal(2))

		_, err = broker.GetInstallationToken(ctx, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(issuer.Calls()).To(Equal(2))
	})

	It("never returns a token within 60 seconds of expiry", func() {
		tokens.tokens[5] = model.InstallationToken{InstallationID: 5, Token: "stale", ExpiresAt: now.Add(59 * time.Second)}

		tok, err := broker.GetInstallationToken(ctx, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.Token).NotTo(Equal("stale"))
		Expect(tok.ExpiresAt.Sub(now)).To(BeNumerically(">", credential.FreshnessMargin))
	})

	It("backfills the process cache from the persistent tier", func() {
		tokens.tokens[8] = model.InstallationToken{InstallationID: 8, Token: "persisted", ExpiresAt: now.Add(30 * time.Minute)}

		tok, err := broker.GetInstallationToken(ctx, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.Token).To(Equal("persisted"))
		Expect(issuer.Calls()).To(BeZero())

		cached, ok := cache.Get(8, now, credential.FreshnessMargin)
		Expect(ok).To(BeTrue())
		Expect(cached.Token).To(Equal("persisted"))
	})

	It("writes issued tokens to both tiers", func() {
		_, err := broker.GetInstallationToken(ctx, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(tokens.tokens).To(HaveKey(int64(3)))
		Expect(cache.Len()).To(Equal(1))
	})

	It("fails with UpstreamError and caches nothing when the issuer returns 404", func() {
		issuer.issue = func(int64, int) (model.InstallationToken, error) {
			return model.InstallationToken{}, domain.NewUpstreamError("github issuer", 404, errors.New("Not Found"))
		}

		_, err := broker.GetInstallationToken(ctx, 404)
		Expect(domain.IsUpstream(err)).To(BeTrue())
		Expect(tokens.puts).To(BeZero())
		Expect(cache.Len()).To(BeZero())
	})

	It("rejects an issued token that already expires inside the margin", func() {
		issuer.issue = func(id int64, _ int) (model.InstallationToken, error) {
			return model.InstallationToken{InstallationID: id, Token: "ghs_short", ExpiresAt: now.Add(30 * time.Second)}, nil
		}

		tok, err := broker.GetInstallationToken(ctx, 9)
		Expect(domain.IsUpstream(err)).To(BeTrue())
		Expect(tok.Token).To(BeEmpty())
		Expect(tokens.puts).To(BeZero())
		Expect(cache.Len()).To(BeZero())
	})

	It("degrades to the issuer when the persistent tier is unavailable", func() {
		tokens.getErr = errors.New("db down")
		tokens.putErr = errors.New("db down")

		tok, err := broker.GetInstallationToken(ctx, 11)
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.Token).To(Equal("ghs_11_1"))

		_, err = broker.GetInstallationToken(ctx, 11)
		Expect(err).NotTo(HaveOccurred())
		Expect(issuer.Calls()).To(Equal(1))
	})

	It("tolerates concurrent callers", func() {
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				tok, err := broker.GetInstallationToken(ctx, 77)
				Expect(err).NotTo(HaveOccurred())
				Expect(tok.Token).NotTo(BeEmpty())
			}()
		}
		wg.Wait()
		Expect(issuer.Calls()).To(BeNumerically(">=", 1))
		Expect(cache.Len()).To(Equal(1))
	})
})
