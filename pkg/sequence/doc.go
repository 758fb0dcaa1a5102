/*
Package sequence allocates strictly increasing per-(queue, key) sequence
numbers.

Allocation is a single compare-and-swap against a reserved bucket in the
embedded store, keyed literally "id_" + queue + key. Counters live apart
from event bodies (see pkg/eventlog) so a queue-wide scan never has to
skip or misinterpret a counter entry.
*/
package sequence
