package handler_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vortex.app/relay/internal/http/handler"
	"vortex.app/relay/internal/model"
	"vortex.app/relay/internal/service"
	"vortex.app/relay/internal/store"
)

type fakeProfiles struct {
	profiles map[string]model.UserProfile
	putErr   error
}

func (f *fakeProfiles) Get(_ context.Context, username string) (*model.UserProfile, error) {
	p, ok := f.profiles[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProfiles) Put(_ context.Context, p model.UserProfile) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.profiles[p.GithubUsername] = p
	return nil
}

var _ = Describe("RegistrationHandler", func() {
	var (
		profiles *fakeProfiles
		engine   *gin.Engine
	)

	BeforeEach(func() {
		profiles = &fakeProfiles{profiles: map[string]model.UserProfile{}}
		h := handler.NewRegistrationHandler(service.NewRegistrationService(profiles))
		engine = gin.New()
		engine.POST("/api/v1/register", h.Register)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/register", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		return rec
	}

	It("stores the profile and answers 200", func() {
		rec := post(`{"email":"octo@example.com","githubUsername":"octo"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("Email registered"))
		Expect(profiles.profiles["octo"].Email).To(Equal("octo@example.com"))
	})

	DescribeTable("answers 400 for unusable requests",
		func(body string) {
			Expect(post(body).Code).To(Equal(http.StatusBadRequest))
			Expect(profiles.profiles).To(BeEmpty())
		},
		Entry("missing username", `{"email":"octo@example.com"}`),
		Entry("missing email", `{"githubUsername":"octo"}`),
		Entry("not json", `email=octo`),
	)

	It("answers 500 when the store fails", func() {
		profiles.putErr = errors.New("connection reset")
		Expect(post(`{"email":"octo@example.com","githubUsername":"octo"}`).Code).To(Equal(http.StatusInternalServerError))
	})
})
