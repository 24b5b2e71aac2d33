// Package ws serves the event stream over WebSocket.
//
// Each connection is one broadcaster subscription. The server writes a
// "system" greeting, then every event as a JSON text frame. Clients may
// narrow the stream with ?environment=<id>. A ping is sent every
// PingInterval; a connection that misses its pong is closed.
package ws
