// Package site expands an environment configuration into the declared
// resource set for a statically hosted web property: hosted DNS zone,
// TLS certificate, origin bucket, CDN distribution, DNS records, and the
// flag-gated deploy identity and uptime monitor. Descriptors are canonical
// JSON validated against per-kind CUE schemas, so descriptor hashes are
// stable and the reconciler can diff them reliably.
package site
