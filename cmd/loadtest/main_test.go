package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Loadtest", func() {
	Describe("tally", func() {
		It("should count requests per routed instance", func() {
			t := newTally()
			t.record(result{RoutedTo: "http://a:1", StatusCode: 200, Duration: time.Millisecond})
			t.record(result{RoutedTo: "http://b:2", StatusCode: 200, Duration: time.Millisecond})
			t.record(result{RoutedTo: "http://a:1", StatusCode: 500, Duration: time.Millisecond})
			t.record(result{StatusCode: 503})
			t.record(result{Err: errors.New("connection refused")})

			Expect(t.total).To(Equal(5))
			Expect(t.success).To(Equal(2))
			Expect(t.failure).To(Equal(3))
			Expect(t.distribution()).To(Equal(map[string]int{
				"http://a:1": 2,
				"http://b:2": 1,
				unrouted:     1,
			}))
			Expect(t.statusCodes).To(Equal(map[int]int{200: 2, 500: 1, 503: 1}))
		})

		It("should measure the spread between routed instances only", func() {
			t := newTally()
			for i := 0; i < 3; i++ {
				t.record(result{RoutedTo: "http://a:1", StatusCode: 200})
			}
			t.record(result{RoutedTo: "http://b:2", StatusCode: 200})
			t.record(result{StatusCode: 503})

			Expect(t.spread()).To(Equal(2))
		})

		It("should report zero spread when nothing was routed", func() {
			Expect(newTally().spread()).To(BeZero())
		})
	})

	Describe("percentile", func() {
		It("should pick from sorted input", func() {
			d := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
			Expect(percentile(d, 0.5)).To(Equal(time.Duration(5)))
			Expect(percentile(d, 0.99)).To(Equal(time.Duration(9)))
			Expect(percentile(nil, 0.5)).To(BeZero())
		})
	})

	Describe("run", func() {
		var server *httptest.Server

		BeforeEach(func() {
			var n atomic.Int64
			instances := []string{"http://127.0.0.1:5001", "http://127.0.0.1:5002", "http://127.0.0.1:5003"}
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				u := instances[(n.Add(1)-1)%int64(len(instances))]
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `{"balancer":"OK","routed_to":%q,"instance_response":{}}`, u)
			}))
		})

		AfterEach(func() {
			server.Close()
		})

		It("should tally routed_to from every envelope", func() {
			t := run(context.Background(), server.Client(), server.URL+"/process", 30, 5, false)

			Expect(t.total).To(Equal(30))
			Expect(t.failure).To(BeZero())
			Expect(t.distribution()).To(Equal(map[string]int{
				"http://127.0.0.1:5001": 10,
				"http://127.0.0.1:5002": 10,
				"http://127.0.0.1:5003": 10,
			}))
			Expect(t.spread()).To(BeZero())
		})

		It("should fall back to the backend header for error envelopes", func() {
			errServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Backend-Server", "http://127.0.0.1:5009")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"error":"connection failure with http://127.0.0.1:5009"}`)
			}))
			defer errServer.Close()

			t := run(context.Background(), errServer.Client(), errServer.URL, 3, 1, false)
			Expect(t.failure).To(Equal(3))
			Expect(t.distribution()).To(HaveKeyWithValue("http://127.0.0.1:5009", 3))
		})

		It("should write the summary", func() {
			t := run(context.Background(), server.Client(), server.URL, 6, 2, false)

			var out bytes.Buffer
			printSummary(&out, t, server.URL, 6, 2, time.Second)
			Expect(out.String()).To(ContainSubstring("routed_to distribution:"))
			Expect(out.String()).To(ContainSubstring("http://127.0.0.1:5001 -> 2"))

			path := filepath.Join(GinkgoT().TempDir(), "summary.json")
			Expect(writeSummary(path, t, server.URL, time.Second)).To(Succeed())

			raw, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			var s summary
			Expect(json.Unmarshal(raw, &s)).To(Succeed())
			Expect(s.Total).To(Equal(6))
			Expect(s.Distribution).To(HaveLen(3))
		})
	})
})
