// Package secrets redacts credentials from extracted browser logs.
//
// Network entries carry request and response headers verbatim, and console
// output routinely echoes tokens. Every record passes through a Scrubber
// before it is printed, returned over the API or published. Rule IDs and
// counts are kept so callers can report what was removed without leaking it.
package secrets
