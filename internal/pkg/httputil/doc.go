// Package httputil provides the JSON response and request helpers every
// admin API handler uses, so error envelopes and logging stay consistent.
package httputil
