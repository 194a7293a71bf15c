package migrations

import "embed"

// Files holds the SQL migrations compiled into the binary. Files use a flat
// numeric naming scheme (001_init.sql, 002_...) and are applied in name order.
//
//go:embed *.sql
var Files embed.FS
