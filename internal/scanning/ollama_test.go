package scanning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Ollama", func() {
	var (
		categories []string
		scanner    *Ollama
	)

	BeforeEach(func() {
		categories = []string{"Groceries", "Fuel"}
	})

	Describe("NewOllama", func() {
		It("defaults the endpoint and model", func() {
			scanner, err := NewOllama("", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(scanner.baseURL).To(Equal("http://localhost:11434"))
			Expect(scanner.model).To(Equal("llava"))
		})
	})

	Describe("Process", func() {
		When("the media is an audio note", func() {
			BeforeEach(func() {
				var err error
				scanner, err = NewOllama("http://localhost:11434", "llava")
				Expect(err).NotTo(HaveOccurred())
			})

			It("reports the note as unprocessable without touching the file", func() {
				result := scanner.Process(context.Background(), "/nonexistent/note.mp3", categories)
				Expect(result.Failed()).To(BeTrue())
				Expect(result.Confidence).To(BeZero())
				Expect(result.RawText).To(ContainSubstring("audio notes are not supported"))
			})
		})

		When("the chat API returns an extraction", func() {
			var (
				chatServer *httptest.Server
				mediaPath  string
				seenBody   ollamaChatRequest
			)

			BeforeEach(func() {
				chatServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					Expect(r.URL.Path).To(Equal("/api/chat"))
					Expect(json.NewDecoder(r.Body).Decode(&seenBody)).NotTo(HaveOccurred())
					json.NewEncoder(w).Encode(ollamaChatResponse{
						Message: ollamaMessage{
							Role:    "assistant",
							Content: `{"vendor": "Shell Gas Station", "amount": 45.50, "currency": "USD", "category": "Fuel"}`,
						},
						Done: true,
					})
				}))

				mediaPath = filepath.Join(GinkgoT().TempDir(), "receipt.png")
				Expect(os.WriteFile(mediaPath, tinyPNG(), 0600)).NotTo(HaveOccurred())

				var err error
				scanner, err = NewOllama(chatServer.URL, "llava")
				Expect(err).NotTo(HaveOccurred())
			})

			AfterEach(func() {
				chatServer.Close()
			})

			It("returns the extracted fields with full confidence", func() {
				result := scanner.Process(context.Background(), mediaPath, categories)
				Expect(result.Failed()).To(BeFalse())
				Expect(result.Vendor).To(HaveValue(Equal("Shell Gas Station")))
				Expect(result.Amount).To(HaveValue(Equal(45.50)))
				Expect(result.Category).To(HaveValue(Equal("Fuel")))
			})

			It("sends the image and the constrained category list", func() {
				scanner.Process(context.Background(), mediaPath, categories)
				Expect(seenBody.Model).To(Equal("llava"))
				Expect(seenBody.Images).To(HaveLen(1))
				Expect(seenBody.Messages).To(HaveLen(2))
				Expect(seenBody.Messages[1].Content).To(ContainSubstring("Groceries, Fuel"))
			})
		})

		When("the chat API is unreachable", func() {
			var mediaPath string

			BeforeEach(func() {
				downServer := httptest.NewServer(http.NotFoundHandler())
				downServer.Close()

				mediaPath = filepath.Join(GinkgoT().TempDir(), "receipt.png")
				Expect(os.WriteFile(mediaPath, tinyPNG(), 0600)).NotTo(HaveOccurred())

				var err error
				scanner, err = NewOllama(downServer.URL, "llava")
				Expect(err).NotTo(HaveOccurred())
			})

			It("reports a zero-confidence error result", func() {
				result := scanner.Process(context.Background(), mediaPath, categories)
				Expect(result.Failed()).To(BeTrue())
				Expect(result.RawText).To(HavePrefix("Error:"))
			})
		})
	})
})
