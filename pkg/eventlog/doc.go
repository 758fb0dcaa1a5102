/*
Package eventlog persists events under composite storage keys and enforces
per-key retention.

Storage keys are bytes(key) || be64(sequence), so a prefix scan by key
yields that key's events in sequence order and a range scan
[bytes(key)||be64(s) .. bytes(key)||be64(max)] yields every event from
sequence s onward. Retention trimming scans the key's prefix in reverse,
keeps the M most recent survivors, and removes the rest in one atomic
batch on every publish, rather than compacting periodically in the
background.
*/
package eventlog
