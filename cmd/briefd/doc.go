// Package main hosts the brief service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes the four stage endpoints, status polling, rendered stage HTML, saved
//     brief downloads, health probes, and metrics. Stage requests are validated against the job's current step
//     before anything is scheduled.
//   - Pipeline: internal/pipeline owns the single job record. A stage-1 request resets it and the model-call
//     budget, mints a run ID, and cancels whatever the previous run still had in flight. Stage tasks flow through
//     a bounded in-memory queue to a small worker pool; each task carries a ticket so a superseded task cannot
//     write over a newer run.
//   - Collaborators: SERP results come from SerpAPI, a Colly scrape, or a Chromedp render of a search page.
//     Research, analysis, and the final brief are chat-completion calls, every one gated by the budget limiter.
//     Markdown is rendered with goldmark.
//   - Persistence & fanout: completed briefs are written as JSON plus HTML to the configured BlobStore
//     (memory/local/GCS). Run history optionally goes to Postgres or SQLite, and a completion event is published to
//     Pub/Sub or NATS when configured. Progress events are batched to log, Prometheus, and WebSocket sinks.
//
// Quick checklist:
//   - Configure env vars: OPENAI_API_KEY (or BRIEF_LLM_API_KEY), SERPAPI_API_KEY (or BRIEF_SERP_API_KEY),
//     BRIEF_SERVER_PORT, BRIEF_SERP_PROVIDER, BRIEF_STORAGE_BACKEND, BRIEF_HISTORY_BACKEND/DSN, BRIEF_NOTIFY_BACKEND.
//     A .env file in the working directory is loaded first.
//   - Serve: go run ./cmd/briefd serve --config config.yaml
//   - One-off brief: go run ./cmd/briefd generate --keyword "budget planning" --theme "FP&A" --persona CFO
package main
