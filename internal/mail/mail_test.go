package mail_test

import (
	"bytes"
	"encoding/base64"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/mail"
)

var _ = Describe("Build", func() {
	It("assembles a multipart message with the PDF attached", func() {
		pdf := []byte("%PDF-1.3 fake")
		m, err := mail.Build(`"Code Reviewer" <noreply@vortex.app>`, mail.Message{
			To:      "a@b.com",
			Subject: "Your PR Review Report",
			Body:    "Hi,\n\nYour PR report is attached as a PDF.",
			Attachments: []mail.Attachment{
				{Name: "report.pdf", ContentType: "application/pdf", Data: pdf},
			},
		})
		Expect(err).NotTo(HaveOccurred())

		var buf bytes.Buffer
		_, err = m.WriteTo(&buf)
		Expect(err).NotTo(HaveOccurred())
		raw := buf.String()

		Expect(raw).To(ContainSubstring("Subject: Your PR Review Report"))
		Expect(raw).To(ContainSubstring("<a@b.com>"))
		Expect(raw).To(ContainSubstring("multipart/mixed"))
		Expect(raw).To(ContainSubstring("application/pdf"))
		Expect(raw).To(ContainSubstring(`filename="report.pdf"`))
		Expect(raw).To(ContainSubstring(base64.StdEncoding.EncodeToString(pdf)))
	})

	It("rejects an invalid recipient", func() {
		_, err := mail.Build("noreply@vortex.app", mail.Message{To: "not an address"})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("NewSMTPSender", func() {
	It("requires a host and a valid sender address", func() {
		_, err := mail.NewSMTPSender(mail.Config{From: "noreply@vortex.app"})
		Expect(domain.IsConfig(err)).To(BeTrue())

		_, err = mail.NewSMTPSender(mail.Config{Host: "smtp.local", From: "nope"})
		Expect(domain.IsConfig(err)).To(BeTrue())

		_, err = mail.NewSMTPSender(mail.Config{Host: "smtp.local", Port: 25, From: "noreply@vortex.app"})
		Expect(err).NotTo(HaveOccurred())
	})
})
