/*
Package broadcast implements the queue core's in-memory fan-out.

Each live queue gets one Hub: a queue-wide subscriber set plus a
key-to-subscriber-set map, both created lazily on first use. Every
subscriber is an independently buffered channel; Publish sends to every
current subscriber without blocking, dropping the oldest buffered message
when a subscriber's channel is full.

Get-or-insert of a per-key subscriber set is a single locked operation: two
concurrent first-time subscribers for the same key always observe the same
set, with no insert-then-lookup window where a second caller could create a
duplicate.
*/
package broadcast
