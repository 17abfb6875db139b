package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/couchbase/scanmerge/secondary/logging"
	"github.com/couchbase/scanmerge/secondary/stats"
)

func serveMetrics(addr string, registry gometrics.Registry) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(stats.NewRegistryCollector("scanmerge", registry))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("metrics server %v: %v", addr, err)
		}
	}()
	logging.Infof("serving metrics on %v/metrics", addr)
	return srv
}

func shutdownMetrics(srv *http.Server, linger time.Duration) {
	if linger > 0 {
		time.Sleep(linger)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
