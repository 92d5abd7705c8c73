// Package textutil builds the names and captions a delivered segment carries.
//
// Output names are derived from the segment's day and file stem and are safe
// on any filesystem. Captions come from a config template whose placeholders
// expand to the raw name, a title-cased rendering of it, the formatted day,
// and the full segment key.
package textutil
