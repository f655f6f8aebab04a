// Package api serves repository trees over HTTP.
//
// Routes:
//
//	GET /healthz                    liveness probe
//	GET /metrics                    Prometheus metrics
//	GET /ratelimit                  remaining repository host quota
//	GET /repo/{owner}/{repo}        repository tree as JSON (cache first, ?refresh=1 bypasses)
//	GET /repo/{owner}/{repo}/check  {"exists":true}, or 404/403/500 with {"error": ...}
//
// Invalid owner or repository names are rejected with 400 before any
// request reaches the repository host.
package api
