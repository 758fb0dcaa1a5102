/*
Package storekv provides BoltDB-backed embedded storage for the queue core.

Buckets are created one per live queue, plus one reserved bucket for
sequence counters. Every tree operation the queue core needs (create, drop,
prefix scan, range scan, atomic batch removal, compare-and-swap counter
update) has a method here.

# Ephemeral stores

When no db_path is configured the core still needs a BoltDB-compatible
handle, since BoltDB has no in-memory mode. Open achieves this by opening a
temporary file and unlinking it immediately: on Unix the inode stays alive
for as long as the process holds the file descriptor, and the directory
entry disappears, so nothing survives a restart and nothing needs explicit
cleanup.

# Compression

BoltDB has no built-in page compression, so a persistent Store compresses
every event-body value with zstd before it reaches a page and decompresses
on every read path (Get, ScanPrefix, ScanRange, ScanAll). Ephemeral stores
skip it: there's no disk footprint to shrink. Sequence counters bypass this
entirely — they go through UpdateAndFetch, which never touches encode or
decode, since the allocator needs the raw 8-byte big-endian value.
*/
package storekv
