/*
Package monitoring provides Prometheus metrics for the colouring search.

# Overview

Every process owns one Metrics value registered on its own registry, so a
generator and a supervisor never collide and tests can create as many as they
need. All recording methods are safe to call on a nil *Metrics, which lets
library code record unconditionally.

# Metrics

- Ring buffer: bytes and frames moved, frames discarded on resynchronisation,
  abandoned writes, recovered write locks, buffer fill level
- Generator: solve attempts and sent candidates
- Supervisor: received candidates by outcome, best removal count seen
- HTTP: requests served by the optional metrics endpoint

# Usage

	reg := monitoring.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	metrics.RecordFrameRead(len(payload))
	metrics.SetBestRemoved(3)

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
