// Package migrations embeds the SQL schema of the event stores.
package migrations

import "embed"

// EventsFS holds the event journal schema shared by the SQL backends.
//
//go:embed events/*.sql
var EventsFS embed.FS

// EventsRoot is the directory inside EventsFS.
const EventsRoot = "events"
