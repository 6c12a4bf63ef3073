// Package server implements the websocket transport of the takt relay.
//
// Each connection gets a Client with its own read and write pumps. The read
// pump hands every frame to the router in receipt order; the write pump drains
// the client's send buffer. The Hub tracks live clients and, when one goes
// away, removes its registry entry before releasing the rest of its state.
package server
