// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink] — interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event] — structured record with timestamp, action, actor, target, IP, metadata.
//
// # Architecture boundaries
//
// This package is an observability tap. The durable audit trail lives in
// the store package and is written transactionally; events here may be
// dropped under pressure and carry no correctness weight.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goAccess or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
