/*
Package monitoring provides metrics collection.

# Overview

Metrics live on a private Prometheus registry owned by the collector, so
several collectors can coexist in one test binary. Every recorder is safe to
call on a nil *Metrics.

Tracked:

  - HTTP requests (count, latency, response size) per route template
  - Download attempts by outcome and bytes transferred
  - Staging duration by mode and outcome
  - Component acquisitions and last progress per component
  - Process spawns by kind and the running environments gauge
  - Event subscribers, published events, evicted observers

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
