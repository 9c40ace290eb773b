// Package websocket provides real-time event streaming via WebSocket.
//
// Clients can connect to /api/v1/jobs/:id/ws to receive the job's lifecycle
// events as they are published on the message bus.
package websocket
