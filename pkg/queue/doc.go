/*
Package queue ties storekv, sequence, eventlog, and broadcast together into
the durable per-queue, per-key pub/sub core: Manager owns one tree per live
queue plus a lazily-populated hub registry, and exposes create/delete/close/
send/subscribe.

Manager is bound to a single concrete event.Event type via an
eventlog.Decoder rather than introducing a generic Manager[T] — a process
deals in one event shape at a time, so the type parameter would buy
nothing beyond what the Decoder closure already gives callers.
*/
package queue
