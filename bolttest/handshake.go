package bolttest

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
)

var magicPreamble = [4]byte{0x60, 0x60, 0xB0, 0x17}

// serverHandshake reads the client's magic preamble and four proposed
// versions, and always accepts version 1 - the only version this
// module's Packer/Unpacker speak.
func serverHandshake(conn net.Conn) error {
	var buf [20]byte
	if _, err := io.ReadFull(conn, buf[:]); err != nil {
		return err
	}
	if [4]byte(buf[:4]) != magicPreamble {
		return errors.New("bolttest: bad magic preamble")
	}

	var reply [4]byte
	binary.BigEndian.PutUint32(reply[:], 1)
	_, err := conn.Write(reply[:])
	return err
}
