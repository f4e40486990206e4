// Package secmem provides a page-protected heap for sensitive data —
// cryptographic keys, plaintext, intermediate state — with stronger
// guarantees than a general-purpose allocator.
//
// Buffer is a fixed-length container backed by the default allocator: small
// allocations pack onto shared, guarded pages; large ones get dedicated
// guarded pages. Key wraps a Buffer whose backing allocator forbids
// sharing and caching: its memory starts unmapped (NoAccess) and is only
// ever made readable or writable for the lexical duration of a ReadWith or
// WriteWith call, after which protection reverts unconditionally — even if
// the callback panics.
//
// The allocator underneath both containers is internal/memguard: a
// page-granular pool (reserve/release/mprotect/mlock via
// golang.org/x/sys/unix) plus a chunk allocator for small shared
// allocations.
package secmem
