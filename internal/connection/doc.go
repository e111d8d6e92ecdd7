// Package connection maintains the WebSocket link to the gateway.
//
// The package splits into two layers:
//   - Client: one physical socket generation (dial, read loop, heartbeat,
//     write serialization)
//   - Supervisor: lifecycle across generations (fixed-delay bounded
//     reconnection, stable message/event channels for consumers)
package connection
