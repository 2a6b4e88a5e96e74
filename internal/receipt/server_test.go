package receipt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		queue       *mockEnqueuer
		converter   *mockConverter
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP, server.ServeHTTP, server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		db.seedCategories()
		storage = newMockStorage()
		queue = &mockEnqueuer{}
		converter = &mockConverter{rate: 1.08}
		auth = BasicAuth{}
		idGen := &mockIDGenerator{id: "test-id-123"}
		timeSrc := &mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, storage, queue, converter, idGen, timeSrc)
		server = NewServerWithMux(service, auth, http.NewServeMux())
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	multipartUpload := func(fieldFilename, contentType string, data []byte) *http.Request {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="`+fieldFilename+`"`)
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).NotTo(HaveOccurred())

		req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/receipts/upload", &body)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req
	}

	Describe("handleHealth", func() {
		It("should return status OK", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/health")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})

	Describe("handleUploadReceipt", func() {
		When("a supported image is uploaded", func() {
			It("should return status Accepted with the placeholder receipt", func() {
				resp, err := http.DefaultClient.Do(multipartUpload("receipt.jpg", "image/jpeg", []byte("fake image")))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

				var payload struct {
					Receipt *Receipt `json:"receipt"`
					Message string   `json:"message"`
				}
				Expect(json.NewDecoder(resp.Body).Decode(&payload)).NotTo(HaveOccurred())
				Expect(payload.Receipt.ID).To(Equal("test-id-123"))
				Expect(payload.Receipt.Status).To(Equal(StatusProcessing))
			})

			It("should enqueue a processing task", func() {
				resp, err := http.DefaultClient.Do(multipartUpload("receipt.jpg", "image/jpeg", []byte("fake image")))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(queue.tasks).To(HaveLen(1))
				Expect(queue.tasks[0].ReceiptID).To(Equal("test-id-123"))
			})
		})

		When("the file type is unsupported", func() {
			It("should return status Bad Request", func() {
				resp, err := http.DefaultClient.Do(multipartUpload("notes.txt", "text/plain", []byte("hello")))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(queue.tasks).To(BeEmpty())
			})
		})

		When("the upload exceeds the size limit", func() {
			It("should return status Bad Request with a size message", func() {
				var body bytes.Buffer
				writer := multipart.NewWriter(&body)
				part, err := writer.CreateFormFile("file", "huge.jpg")
				Expect(err).NotTo(HaveOccurred())
				_, err = part.Write(bytes.Repeat([]byte{0}, 51<<20))
				Expect(err).NotTo(HaveOccurred())
				Expect(writer.Close()).NotTo(HaveOccurred())

				req := httptest.NewRequest("POST", "/api/receipts/upload", &body)
				req.Header.Set("Content-Type", writer.FormDataContentType())
				rec := httptest.NewRecorder()
				server.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(rec.Body.String()).To(ContainSubstring("too large"))
				Expect(queue.tasks).To(BeEmpty())
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				var body bytes.Buffer
				writer := multipart.NewWriter(&body)
				Expect(writer.Close()).NotTo(HaveOccurred())
				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/receipts/upload", &body)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Content-Type", writer.FormDataContentType())

				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleCreateReceipt", func() {
		postReceipt := func(body string) *http.Response {
			resp, err := http.Post(ghttpServer.URL()+"/api/receipts", "application/json", strings.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the entry is valid", func() {
			It("should return status Created with a completed receipt", func() {
				resp := postReceipt(`{"vendor": "Corner Store", "amount": 12.50, "currency": "usd", "transaction_date": "2024-01-10"}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var rec Receipt
				Expect(json.NewDecoder(resp.Body).Decode(&rec)).NotTo(HaveOccurred())
				Expect(rec.Status).To(Equal(StatusCompleted))
				Expect(rec.Currency).To(Equal("USD"))
				Expect(rec.SourcePath).To(Equal(ManualEntrySource))
			})
		})

		When("the amount is negative", func() {
			It("should return status Bad Request", func() {
				resp := postReceipt(`{"amount": -5}`)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the date is malformed", func() {
			It("should return status Bad Request", func() {
				resp := postReceipt(`{"transaction_date": "01/10/2024"}`)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the body is not JSON", func() {
			It("should return status Bad Request", func() {
				resp := postReceipt(`not json`)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleListReceipts", func() {
		BeforeEach(func() {
			db.receipts["id1"] = &Receipt{ID: "id1", Status: StatusReview}
			db.receipts["id2"] = &Receipt{ID: "id2", Status: StatusCompleted}
		})

		It("should return a paginated listing", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

			var page ReceiptPage
			Expect(json.NewDecoder(resp.Body).Decode(&page)).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(2))
			Expect(page.Items).To(HaveLen(2))
		})

		It("should apply the status filter", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts?status=review")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var page ReceiptPage
			Expect(json.NewDecoder(resp.Body).Decode(&page)).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(1))
			Expect(page.Items[0].ID).To(Equal("id1"))
		})

		It("should reject a malformed category filter", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts?category_id=abc")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject a malformed date filter", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts?start_date=junk")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleGetReceipt", func() {
		BeforeEach(func() {
			db.receipts["id1"] = &Receipt{ID: "id1", Status: StatusReview}
		})

		When("the receipt exists", func() {
			It("should return the receipt", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/id1")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var rec Receipt
				Expect(json.NewDecoder(resp.Body).Decode(&rec)).NotTo(HaveOccurred())
				Expect(rec.ID).To(Equal("id1"))
			})
		})

		When("the receipt does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/nonexistent")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleUpdateReceipt", func() {
		putReceipt := func(id, body string) *http.Response {
			req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/receipts/"+id, strings.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		BeforeEach(func() {
			db.receipts["id1"] = &Receipt{ID: "id1", Currency: "USD", Status: StatusReview}
		})

		When("the edit is valid", func() {
			It("should apply the change", func() {
				resp := putReceipt("id1", `{"vendor": "New Vendor", "status": "completed"}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var rec Receipt
				Expect(json.NewDecoder(resp.Body).Decode(&rec)).NotTo(HaveOccurred())
				Expect(rec.Vendor).To(HaveValue(Equal("New Vendor")))
				Expect(rec.Status).To(Equal(StatusCompleted))
			})
		})

		When("the status change moves backwards", func() {
			BeforeEach(func() {
				db.receipts["id1"].Status = StatusCompleted
			})

			It("should return status Bad Request", func() {
				resp := putReceipt("id1", `{"status": "review"}`)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the receipt does not exist", func() {
			It("should return status Not Found", func() {
				resp := putReceipt("nonexistent", `{"vendor": "X"}`)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleGetReceiptFile", func() {
		BeforeEach(func() {
			db.receipts["id1"] = &Receipt{ID: "id1", SourcePath: "2024/01/15/id1.jpg", Status: StatusReview}
			db.receipts["manual"] = &Receipt{ID: "manual", SourcePath: ManualEntrySource, Status: StatusCompleted}
			storage.files["2024/01/15/id1.jpg"] = []byte("file data")
		})

		When("the receipt has media", func() {
			It("should return the file with its content type", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/id1/file")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))

				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(Equal("file data"))
			})
		})

		When("the receipt is a manual entry", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/manual/file")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleDeleteReceipt", func() {
		BeforeEach(func() {
			db.receipts["id1"] = &Receipt{ID: "id1", SourcePath: "2024/01/15/id1.jpg", Status: StatusCompleted}
			storage.files["2024/01/15/id1.jpg"] = []byte("data")
		})

		When("the receipt exists", func() {
			It("should return status No Content and remove the record", func() {
				req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/receipts/id1", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				Expect(db.receipts).NotTo(HaveKey("id1"))
				Expect(storage.files).NotTo(HaveKey("2024/01/15/id1.jpg"))
			})
		})

		When("the receipt does not exist", func() {
			It("should return status Not Found", func() {
				req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/receipts/nonexistent", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("dashboard endpoints", func() {
		It("should return the summary", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/dashboard/summary")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var summary DashboardSummary
			Expect(json.NewDecoder(resp.Body).Decode(&summary)).NotTo(HaveOccurred())
		})

		It("should return the trends with a month window", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/dashboard/trends?months=6")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var trends SpendingTrends
			Expect(json.NewDecoder(resp.Body).Decode(&trends)).NotTo(HaveOccurred())
			Expect(trends.MonthlyData).To(HaveLen(6))
		})

		It("should return the categories", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/dashboard/categories")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var categories []*Category
			Expect(json.NewDecoder(resp.Body).Decode(&categories)).NotTo(HaveOccurred())
			Expect(categories).To(HaveLen(len(DefaultCategories)))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "secret"}
			server = NewServerWithMux(service, auth, http.NewServeMux())
			setupServer()
		})

		When("no credentials are provided", func() {
			It("should return status Unauthorized with a challenge", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			})
		})

		When("the credentials are wrong", func() {
			It("should return status Unauthorized", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:wrong")))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("the credentials are correct", func() {
			It("should serve the request", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("user", "secret")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})

		It("should leave the health check unauthenticated", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/health")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
