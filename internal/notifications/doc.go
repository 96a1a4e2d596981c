// Package notifications sends push notifications about dock activity through
// ntfy. Each category (sessions, firmware, errors) can be toggled in
// configuration; with no topic configured the service is a silent noop.
package notifications
