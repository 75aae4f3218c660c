package station

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/rxscan/internal/barcode"
	"github.com/zombor/rxscan/internal/scanning"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		minter      *mockMinter
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.Handler().ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		minter = &mockMinter{id: "OBT128000000042"}
		timeSrc := &mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, storage, scanning.DefaultConfig(), minter, &mockIDGenerator{}, timeSrc)
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	post := func(path, body string) *http.Response {
		resp, err := http.Post(ghttpServer.URL()+path, "application/json", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	get := func(path string) *http.Response {
		resp, err := http.Get(ghttpServer.URL() + path)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	errorBody := func(resp *http.Response) string {
		defer resp.Body.Close()
		var body map[string]string
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		return body["error"]
	}

	Describe("handleMintIdentifier", func() {
		When("the request is valid", func() {
			It("should return status Created with the identifier", func() {
				resp := post("/api/identifiers", `{"kind":"barcode"}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))

				var identifier Identifier
				Expect(json.NewDecoder(resp.Body).Decode(&identifier)).To(Succeed())
				Expect(identifier.ID).To(Equal("OBT128000000042"))
				Expect(identifier.Kind).To(Equal(barcode.KindBarcode))
				Expect(db.identifiers).To(HaveKey("OBT128000000042"))
			})
		})

		When("the body is not JSON", func() {
			It("should return status Bad Request", func() {
				resp := post("/api/identifiers", `nope`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorBody(resp)).To(Equal("Invalid request body"))
			})
		})

		When("the kind is unknown", func() {
			BeforeEach(func() {
				minter.err = barcode.ErrUnknownKind
			})

			It("should return status Bad Request", func() {
				resp := post("/api/identifiers", `{"kind":"coupon"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorBody(resp)).To(ContainSubstring("unknown identifier kind"))
			})
		})

		When("the identifier collides", func() {
			BeforeEach(func() {
				db.identifiers["OBT128000000042"] = &Identifier{ID: "OBT128000000042"}
			})

			It("should return status Conflict", func() {
				resp := post("/api/identifiers", `{"kind":"barcode"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
				Expect(errorBody(resp)).To(ContainSubstring("already registered"))
			})
		})

		When("the registry fails", func() {
			BeforeEach(func() {
				db.createErr = errors.New("database error")
			})

			It("should return status Internal Server Error", func() {
				resp := post("/api/identifiers", `{"kind":"barcode"}`)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleListIdentifiers", func() {
		BeforeEach(func() {
			db.identifiers["INV2401150001"] = &Identifier{ID: "INV2401150001", Kind: barcode.KindInvoice}
			db.identifiers["RTN2401150002"] = &Identifier{ID: "RTN2401150002", Kind: barcode.KindReturn}
		})

		It("should return all identifiers", func() {
			resp := get("/api/identifiers")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var identifiers []Identifier
			Expect(json.NewDecoder(resp.Body).Decode(&identifiers)).To(Succeed())
			Expect(identifiers).To(HaveLen(2))
		})

		When("the registry fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("database error")
			})

			It("should return status Internal Server Error", func() {
				resp := get("/api/identifiers")
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(errorBody(resp)).To(Equal("Internal server error"))
			})
		})
	})

	Describe("handleGetIdentifier", func() {
		When("the identifier exists", func() {
			BeforeEach(func() {
				db.identifiers["RSP2401150042"] = &Identifier{ID: "RSP2401150042", Kind: barcode.KindPrescription}
			})

			It("should return it", func() {
				resp := get("/api/identifiers/RSP2401150042")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var identifier Identifier
				Expect(json.NewDecoder(resp.Body).Decode(&identifier)).To(Succeed())
				Expect(identifier.Kind).To(Equal(barcode.KindPrescription))
			})
		})

		When("the identifier does not exist", func() {
			It("should return status Not Found", func() {
				resp := get("/api/identifiers/missing")
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				Expect(errorBody(resp)).To(Equal("Identifier not found"))
			})
		})
	})

	Describe("handleGetBars", func() {
		BeforeEach(func() {
			db.identifiers["AB12"] = &Identifier{ID: "AB12"}
		})

		It("should return the bar graphic", func() {
			resp := get("/api/identifiers/AB12/bars")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var graphic barcode.Graphic
			Expect(json.NewDecoder(resp.Body).Decode(&graphic)).To(Succeed())
			Expect(graphic.Bars).To(HaveLen(4))
			Expect(graphic.Bars[0].Height).To(Equal(barcode.LetterBarHeight))
			Expect(graphic.Bars[2].Height).To(Equal(barcode.DigitBarHeight))
		})

		It("should return status Not Found for unregistered identifiers", func() {
			resp := get("/api/identifiers/ZZ99/bars")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleGetLabel", func() {
		BeforeEach(func() {
			db.identifiers["OBT128000000042"] = &Identifier{ID: "OBT128000000042"}
		})

		It("should serve an SVG", func() {
			resp := get("/api/identifiers/OBT128000000042/label.svg")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/svg+xml"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(HavePrefix("<svg"))
		})

		When("storage fails", func() {
			BeforeEach(func() {
				storage.saveErr = errors.New("disk full")
			})

			It("should return status Internal Server Error", func() {
				resp := get("/api/identifiers/OBT128000000042/label.svg")
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(errorBody(resp)).To(Equal("Label unavailable"))
			})
		})
	})

	Describe("handleDecode", func() {
		DescribeTable("decodes tokens",
			func(token string, kind barcode.Kind, valid bool, hasPrescription bool) {
				body, err := json.Marshal(map[string]string{"token": token})
				Expect(err).NotTo(HaveOccurred())
				resp := post("/api/decode", string(body))
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var decoded barcode.Decoded
				Expect(json.NewDecoder(resp.Body).Decode(&decoded)).To(Succeed())
				Expect(decoded.Token).To(Equal(token))
				Expect(decoded.Kind).To(Equal(kind))
				Expect(decoded.Valid).To(Equal(valid))
				Expect(decoded.Prescription != nil).To(Equal(hasPrescription))
			},
			Entry("a prescription", "RX-1001-LIC99-20240101", barcode.KindPrescription, true, true),
			Entry("a generic barcode", "OBT128000000042", barcode.KindBarcode, true, false),
			Entry("a return number", "RTN2401150042", barcode.KindReturn, true, false),
			Entry("garbage", "hello", barcode.KindUnknown, false, false),
		)

		It("does not record the scan", func() {
			resp := post("/api/decode", `{"token":"OBT128000000042"}`)
			resp.Body.Close()
			Expect(db.Scans()).To(BeEmpty())
		})

		It("rejects an invalid body", func() {
			resp := post("/api/decode", `{`)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleListScans", func() {
		BeforeEach(func() {
			for _, token := range []string{"A1", "B2", "C3"} {
				_, err := service.RecordScan(token, "test")
				Expect(err).NotTo(HaveOccurred())
			}
		})

		tokens := func(resp *http.Response) []string {
			defer resp.Body.Close()
			var scans []Scan
			Expect(json.NewDecoder(resp.Body).Decode(&scans)).To(Succeed())
			out := make([]string, 0, len(scans))
			for _, scan := range scans {
				out = append(out, scan.Token)
			}
			return out
		}

		It("should return the scan log", func() {
			Expect(tokens(get("/api/scans"))).To(Equal([]string{"A1", "B2", "C3"}))
		})

		It("should honor the limit", func() {
			Expect(tokens(get("/api/scans?limit=1"))).To(Equal([]string{"C3"}))
		})

		It("should reject an invalid limit", func() {
			resp := get("/api/scans?limit=-1")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorBody(resp)).To(Equal("Invalid limit"))
		})
	})

	Describe("CORS preflight", func() {
		It("should answer OPTIONS without auth", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/identifiers", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "pharmacist", Password: "secret"}
		})

		request := func(credentials string) *http.Response {
			req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+"/api/decode", bytes.NewBufferString(`{"token":"A"}`))
			Expect(err).NotTo(HaveOccurred())
			if credentials != "" {
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credentials)))
			}
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			return resp
		}

		When("no credentials are sent", func() {
			It("should return status Unauthorized", func() {
				resp := request("")
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(Equal(`Basic realm="rxscan"`))
			})
		})

		When("the password is wrong", func() {
			It("should return status Unauthorized", func() {
				Expect(request("pharmacist:wrong").StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("the credentials match", func() {
			It("should serve the request", func() {
				Expect(request("pharmacist:secret").StatusCode).To(Equal(http.StatusOK))
			})
		})
	})
})
