// Package metrics defines Prometheus metrics for the credential issuance
// service, covering device flows, polls, token exchanges and upstream
// platform calls.
package metrics
