package healthcheck_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/pool-balancer/internal/healthcheck"
	"github.com/angeloszaimis/pool-balancer/internal/registry"
)

var _ = Describe("Prober", func() {
	var (
		reg     *registry.Registry
		log     *slog.Logger
		healthy *httptest.Server
		failing *httptest.Server
		slow    *httptest.Server
		hits    atomic.Int32
	)

	statusOf := func(u string) registry.Status {
		s, _ := reg.Status(u)
		return s
	}

	deadURL := func() string {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		u := "http://" + listener.Addr().String()
		listener.Close()
		return u
	}

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		hits.Store(0)

		healthy = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				hits.Add(1)
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"status":"OK"}`))
				return
			}
			http.NotFound(w, r)
		}))
		failing = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		slow = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))

		reg = registry.New()
	})

	AfterEach(func() {
		healthy.Close()
		failing.Close()
		slow.Close()
	})

	Describe("ProbeAll", func() {
		It("should mark a 2xx instance healthy", func() {
			reg.Add(healthy.URL)
			prober := healthcheck.NewProber(reg, healthcheck.Options{}, log, nil)

			prober.ProbeAll(context.Background())

			Expect(statusOf(healthy.URL)).To(Equal(registry.StatusHealthy))
		})

		It("should accept any 2xx status", func() {
			accepted := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
			defer accepted.Close()

			reg.Add(accepted.URL)
			healthcheck.NewProber(reg, healthcheck.Options{}, log, nil).ProbeAll(context.Background())

			Expect(statusOf(accepted.URL)).To(Equal(registry.StatusHealthy))
		})

		It("should mark non-2xx, unreachable and slow instances unhealthy", func() {
			dead := deadURL()
			reg.Add(failing.URL)
			reg.Add(dead)
			reg.Add(slow.URL)
			reg.Add(healthy.URL)

			prober := healthcheck.NewProber(reg, healthcheck.Options{Timeout: 100 * time.Millisecond}, log, nil)
			prober.ProbeAll(context.Background())

			Expect(statusOf(failing.URL)).To(Equal(registry.StatusUnhealthy))
			Expect(statusOf(dead)).To(Equal(registry.StatusUnhealthy))
			Expect(statusOf(slow.URL)).To(Equal(registry.StatusUnhealthy))
			Expect(statusOf(healthy.URL)).To(Equal(registry.StatusHealthy))
		})

		It("should bound a cycle by the probe timeout", func() {
			reg.Add(slow.URL)
			prober := healthcheck.NewProber(reg, healthcheck.Options{Timeout: 50 * time.Millisecond}, log, nil)

			start := time.Now()
			prober.ProbeAll(context.Background())
			Expect(time.Since(start)).To(BeNumerically("<", 400*time.Millisecond))
		})

		It("should flip a healthy instance to unhealthy without removing it", func() {
			reg.Add(healthy.URL)
			prober := healthcheck.NewProber(reg, healthcheck.Options{}, log, nil)
			prober.ProbeAll(context.Background())
			Expect(statusOf(healthy.URL)).To(Equal(registry.StatusHealthy))

			healthy.Close()
			prober.ProbeAll(context.Background())

			Expect(statusOf(healthy.URL)).To(Equal(registry.StatusUnhealthy))
			Expect(reg.Len()).To(Equal(1))
		})

		It("should use the configured health path", func() {
			custom := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/healthz" {
					w.WriteHeader(http.StatusOK)
					return
				}
				w.WriteHeader(http.StatusNotFound)
			}))
			defer custom.Close()

			reg.Add(custom.URL)
			healthcheck.NewProber(reg, healthcheck.Options{Path: "healthz"}, log, nil).ProbeAll(context.Background())

			Expect(statusOf(custom.URL)).To(Equal(registry.StatusHealthy))
		})

		It("should leave statuses untouched when cancelled", func() {
			reg.Add(healthy.URL)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			healthcheck.NewProber(reg, healthcheck.Options{}, log, nil).ProbeAll(ctx)

			Expect(statusOf(healthy.URL)).To(Equal(registry.StatusUnknown))
		})

		It("should not apply an in-flight result to a re-added instance", func() {
			arrived := make(chan struct{})
			release := make(chan struct{})
			gated := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				close(arrived)
				<-release
				w.WriteHeader(http.StatusOK)
			}))
			defer gated.Close()

			reg.Add(gated.URL)
			prober := healthcheck.NewProber(reg, healthcheck.Options{Timeout: 5 * time.Second}, log, nil)

			done := make(chan struct{})
			go func() {
				defer close(done)
				prober.ProbeAll(context.Background())
			}()

			Eventually(arrived).Should(BeClosed())
			reg.Remove(gated.URL)
			reg.Add(gated.URL)
			close(release)
			Eventually(done).Should(BeClosed())

			Expect(statusOf(gated.URL)).To(Equal(registry.StatusUnknown))
		})

		It("should handle an empty registry", func() {
			prober := healthcheck.NewProber(reg, healthcheck.Options{}, log, nil)
			Expect(func() { prober.ProbeAll(context.Background()) }).NotTo(Panic())
		})
	})

	Describe("Run", func() {
		It("should not probe a newly added instance before the first cycle", func() {
			reg.Add(healthy.URL)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go healthcheck.NewProber(reg, healthcheck.Options{Interval: time.Hour}, log, nil).Run(ctx)

			Consistently(func() registry.Status {
				return statusOf(healthy.URL)
			}, 150*time.Millisecond).Should(Equal(registry.StatusUnknown))
			Expect(hits.Load()).To(BeZero())
		})

		It("should mark instances healthy on the next cycle", func() {
			reg.Add(healthy.URL)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go healthcheck.NewProber(reg, healthcheck.Options{Interval: 50 * time.Millisecond}, log, nil).Run(ctx)

			Eventually(func() registry.Status {
				return statusOf(healthy.URL)
			}).Should(Equal(registry.StatusHealthy))
		})

		It("should pick up instances added while running", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go healthcheck.NewProber(reg, healthcheck.Options{Interval: 50 * time.Millisecond}, log, nil).Run(ctx)

			time.Sleep(60 * time.Millisecond)
			reg.Add(healthy.URL)

			Eventually(func() registry.Status {
				return statusOf(healthy.URL)
			}).Should(Equal(registry.StatusHealthy))
		})

		It("should stop when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})

			go func() {
				defer close(done)
				healthcheck.NewProber(reg, healthcheck.Options{Interval: 20 * time.Millisecond}, log, nil).Run(ctx)
			}()

			time.Sleep(50 * time.Millisecond)
			cancel()

			Eventually(done).Should(BeClosed())
		})
	})
})
