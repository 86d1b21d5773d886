// Package api hosts the HTTP server, middleware, and handlers that drive the
// brief pipeline. Notable routes:
//   - POST /start-step1 .. /start-step4 schedule a pipeline stage.
//   - GET /status returns the job state and call budget.
//   - GET /ugc-html, /serp-html, /final-html serve rendered stage output.
//   - GET /download/{filename} and /api/recent-briefs read saved briefs.
//   - GET /ws streams status updates over WebSocket.
//   - GET /healthz, /readyz, /metrics for probes and Prometheus scraping.
package api
