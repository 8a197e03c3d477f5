// Package router implements the binary framed crosspoint-routing protocol.
//
// # Frame Format
//
//	┌─────┬─────────────┬──────────┬─────┬──────┐
//	│ SOM │ payload ... │ checksum │ EOM │ EOM2 │
//	│ 10  │             │ XOR(pl)  │ 10  │ 03   │
//	└─────┴─────────────┴──────────┴─────┴──────┘
//
// SOM and EOM share a value; EOM2 following EOM marks the true end.
//
// A route payload is seven bytes:
//
//	[opcode, matrix, level, destMSB, destLSB, srcMSB, srcLSB]
//
// where each address is split into 7-bit groups (MSB = v>>7 & 0x7F,
// LSB = v & 0x7F), limiting addresses to 0..16383.
//
// The matrix acknowledges with a frame of its own. Its content is not
// interpreted: receipt of any frame before the command timeout is success.
package router
