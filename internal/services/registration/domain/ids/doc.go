// Package ids defines the validated identifiers of the registration domain.
//
// Student, course and term values are parsed from raw strings at the edge of
// the system. Session and enrollment identifiers are composites derived from
// them, so the same business key always yields the same identifier and no
// separate uniqueness index is needed.
package ids
