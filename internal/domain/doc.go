// Package domain defines the core types of the ad serving core.
//
// Types in this package are value objects shared by targeting, eligibility,
// selection, serving and the storage adapters. They carry JSON/DB tags and
// pure validation helpers, nothing else.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - Constants and enums belong here
package domain
