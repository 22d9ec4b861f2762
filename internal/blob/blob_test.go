package blob_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vortex.app/relay/internal/blob"
	"vortex.app/relay/internal/domain"
)

// fakeS3 serves just enough of the S3 object API for PutObject/GetObject.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", f.types[r.URL.Path])
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

var _ = Describe("MinioStore", func() {
	var (
		fake  *fakeS3
		store blob.Store
	)

	BeforeEach(func() {
		fake = &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
		server := httptest.NewServer(fake)
		DeferCleanup(server.Close)

		var err error
		store, err = blob.NewMinioStore(blob.Config{
			Endpoint:  strings.TrimPrefix(server.URL, "http://"),
			AccessKey: "ak",
			SecretKey: "sk",
			Bucket:    "reports",
			Region:    "us-east-1",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("uploads with the given content type", func() {
		Expect(store.Put(context.Background(), "reports/acme-1-x.pdf", []byte("%PDF-1.3"), "application/pdf")).To(Succeed())
		Expect(fake.types).To(HaveKeyWithValue("/reports/reports/acme-1-x.pdf", "application/pdf"))
	})

	It("fetches an object by key", func() {
		fake.objects["/reports/reports/acme-1-x.pdf"] = []byte("%PDF-1.3")
		fake.types["/reports/reports/acme-1-x.pdf"] = "application/pdf"

		data, err := store.Get(context.Background(), "reports/acme-1-x.pdf")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("%PDF-1.3"))
	})

	It("maps a missing key to ErrNotFound", func() {
		_, err := store.Get(context.Background(), "reports/none.pdf")
		Expect(errors.Is(err, blob.ErrNotFound)).To(BeTrue())
		Expect(domain.IsUpstream(err)).To(BeFalse())
	})
})
