// Package graphics implements the line-oriented ASCII control protocol used
// by graphics playout devices.
//
// Commands and responses are single lines terminated by CRLF. The protocol is
// half-duplex: the next line received after a command is its response.
//
//	client := graphics.NewClient(devicelink.Config{
//	    Address: devicelink.Address{DeviceID: "gfx-1", Host: "10.0.10.20", Port: 5250},
//	})
//	result := client.Take(ctx, 7) // sends "TAKE 7\r\n"
//
// A response beginning with ERR or NAK is classified as a rejected take.
package graphics
