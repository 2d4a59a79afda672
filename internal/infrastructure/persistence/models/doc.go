// Package models holds the GORM row types of the partner schema and their
// mapping to domain types. Domain packages never carry GORM tags.
//
//   - base.go: identity, timestamps and version columns
//   - partner.go: partners and end users
//   - ledger.go: ledger entries and unreconciled settlements
package models
