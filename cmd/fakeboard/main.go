// fakeboard streams synthetic scan packets to a serial port so the spool
// daemon can be exercised without the acquisition board.
package main

import (
	"flag"
	"log"
	"math"
	"time"

	"go.bug.st/serial"

	"sleepywoodpecker/rp-spool/internal/processing"
)

var STOP_SEQUENCE = []byte{'\r', '\n'}

func main() {
	portName := flag.String("port", "/dev/ttyUSB0", "serial port to write to")
	baudrate := flag.Int("baudrate", 460800, "serial baud rate")
	nChans := flag.Int("chans", 8, "channels per scan")
	rate := flag.Duration("period", time.Millisecond, "time between packets")
	flag.Parse()

	mode := &serial.Mode{
		BaudRate: *baudrate,
	}
	port, err := serial.Open(*portName, mode)
	if err != nil {
		log.Fatal(err)
	}
	defer port.Close()

	packet := processing.DataPacket{Readings: make([]int16, *nChans)}
	start := time.Now()
	for range time.Tick(*rate) {
		elapsed := time.Since(start).Seconds()
		for ch := range packet.Readings {
			// one sine per channel, each a little faster than the last
			packet.Readings[ch] = int16(8000 * math.Sin(2*math.Pi*float64(ch+1)*elapsed))
		}
		packet.Timestamp = uint32(time.Since(start).Microseconds())

		if _, err := port.Write(processing.EncodePacket(packet, STOP_SEQUENCE)); err != nil {
			log.Fatal(err)
		}
		packet.PacketNumber++
	}
}
