// Package conversation keeps a client's view of a conversation consistent
// across two independent data sources: the request/response API and the
// push channel.
//
// # Components
//
//   - Store: the single mutable state (session list, active session, log).
//     Every mutation funnels through one serialized apply-and-notify entry
//     point.
//   - Reconciler: merges inbound push messages into the log. Duplicates are
//     dropped against the dedup cursor; the authoritative assistant reply is
//     placed directly after the user message that triggered it, discarding
//     any stale state in between.
//   - Coordinator: per outgoing message, picks the push channel
//     (fire-and-forget) or the synchronous REST call, and normalizes both
//     into the same final log shape.
//   - Controller: the owning context. It wires the pieces to the event bus
//     and tears all of it down (connection, timers, subscriptions) in one
//     Close call.
package conversation
