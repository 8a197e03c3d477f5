// Package devicelink implements the connection core shared by every device
// protocol client in the playout engine.
//
// A link owns exactly one TCP socket to one device. Protocol packages supply a
// Framer that knows how to wrap outbound commands and cut inbound bytes into
// response frames; Conn handles everything else:
//
//	                 Connect()                 dial ok
//	 ┌──────────────┐ ───────► ┌────────────┐ ───────► ┌───────────┐
//	 │ Disconnected │          │ Connecting │          │ Connected │
//	 └──────────────┘ ◄─────── └────────────┘          └───────────┘
//	        ▲          dial err                              │
//	        └────────────────────────────────────────────────┘
//	              socket lost (reconnect timer armed)
//
// # Request/Response
//
// Device protocols here are half-duplex: one command is outstanding per link
// and the next complete frame to arrive is its response. Conn keeps a single
// pending slot that is resolved by that frame, by the command timeout, or by
// connection loss. Concurrent SendCommand calls queue behind each other and
// never interleave on the wire.
//
// # Reconnection
//
// When an established socket drops, Conn arms one reconnect timer
// (ReconnectInterval, default 5s) and keeps retrying until Disconnect is
// called. Reconnects are silent; they only matter to the next command.
//
// # Pools
//
// Pool maps device IDs to links of one protocol variant. Links are created on
// first use without connecting; the first command connects them.
package devicelink
