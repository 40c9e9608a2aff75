// Package migrations embeds the PostgreSQL schema files so the adserver
// binary can apply them without a checkout.
package migrations

import "embed"

// FS holds the *.sql files, applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
