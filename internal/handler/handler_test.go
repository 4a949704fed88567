package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/pool-balancer/internal/backend"
	"github.com/angeloszaimis/pool-balancer/internal/handler"
	"github.com/angeloszaimis/pool-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/pool-balancer/internal/registry"
)

var _ = Describe("Handler", func() {
	var (
		h         *handler.LoadBalancerHandler
		reg       *registry.Registry
		instance  *httptest.Server
		lastQuery string
	)

	BeforeEach(func() {
		log := slog.New(slog.NewTextHandler(io.Discard, nil))

		instance = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastQuery = r.URL.RawQuery
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
		}))

		reg = registry.New(instance.URL)
		reg.SetStatus(instance.URL, true)

		lb := loadbalancer.NewLoadBalancer(registry.NewRoundRobin(reg), backend.New(2*time.Second, 0), log, nil)
		h = handler.NewLoadBalancerHandler(log, lb)
	})

	AfterEach(func() {
		instance.Close()
	})

	serve := func(method, target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
		return w
	}

	Describe("ServeHTTP", func() {
		It("should forward /process and wrap the answer", func() {
			w := serve(http.MethodGet, "/process")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))
			Expect(w.Header().Get("X-Backend-Server")).To(Equal(instance.URL))
			Expect(w.Header().Get(backend.HeaderRequestID)).NotTo(BeEmpty())

			var env map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &env)).To(Succeed())
			Expect(env).To(HaveKeyWithValue("balancer", "OK"))
			Expect(env).To(HaveKeyWithValue("routed_to", instance.URL))
			Expect(env).To(HaveKeyWithValue("instance_response", map[string]any{"path": "/process"}))
		})

		It("should forward arbitrary paths with their query", func() {
			w := serve(http.MethodGet, "/api/items?page=2")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"path":"/api/items"`))
			Expect(lastQuery).To(Equal("page=2"))
		})

		It("should keep the caller's request ID", func() {
			req := httptest.NewRequest(http.MethodGet, "/process", nil)
			req.Header.Set(backend.HeaderRequestID, "abc-123")
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			Expect(w.Header().Get(backend.HeaderRequestID)).To(Equal("abc-123"))
		})

		It("should reject methods other than GET", func() {
			w := serve(http.MethodPost, "/process")

			Expect(w.Code).To(Equal(http.StatusMethodNotAllowed))
			Expect(w.Header().Get("Allow")).To(Equal("GET, HEAD"))
		})

		Context("with no healthy instances", func() {
			BeforeEach(func() {
				reg.SetStatus(instance.URL, false)
			})

			It("should return 503 Service Unavailable", func() {
				w := serve(http.MethodGet, "/process")

				Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
				Expect(w.Body.String()).To(MatchJSON(`{"error":"no instances available"}`))
				Expect(w.Header().Get("X-Backend-Server")).To(BeEmpty())
				Expect(w.Header().Get(backend.HeaderRequestID)).NotTo(BeEmpty())
			})
		})

		Context("when the instance goes away", func() {
			It("should return 500 with a connection failure", func() {
				instance.Close()

				w := serve(http.MethodGet, "/process")

				Expect(w.Code).To(Equal(http.StatusInternalServerError))
				Expect(w.Body.String()).To(MatchJSON(`{"error":"connection failure with ` + instance.URL + `"}`))
			})
		})
	})

	Describe("client IP", func() {
		It("should prefer X-Forwarded-For", func() {
			var seen string
			lb := routerFunc(func(ctx context.Context, req backend.Request) loadbalancer.Outcome {
				seen = req.ClientIP
				return loadbalancer.Outcome{StatusCode: http.StatusOK, Body: map[string]string{}}
			})
			h = handler.NewLoadBalancerHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), lb)

			req := httptest.NewRequest(http.MethodGet, "/process", nil)
			req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
			h.ServeHTTP(httptest.NewRecorder(), req)

			Expect(seen).To(Equal("203.0.113.9"))
		})
	})
})

type routerFunc func(ctx context.Context, req backend.Request) loadbalancer.Outcome

func (f routerFunc) Route(ctx context.Context, req backend.Request) loadbalancer.Outcome {
	return f(ctx, req)
}
