package netdevice

import (
	"encoding/binary"
	"io"

	"github.com/wilbur-shi/bufcache/device"
)

// Wire protocol: a tiny length-prefixed request/response pair per
// operation, one TCP or UNIX connection carrying many of them in
// sequence. There is no pipelining — a client issues one request and
// reads its response before sending the next, matching the cache's
// own per-sector one-at-a-time contract.

const (
	opRead       byte = 1
	opWrite      byte = 2
	opSectorSize byte = 3
)

const (
	statusOK  byte = 0
	statusErr byte = 1
)

type request struct {
	op      byte
	sector  device.SectorID
	payload []byte // non-empty only for opWrite
}

// reqHeaderLen: 1 (op) + 4 (sector) + 4 (payload length).
const reqHeaderLen = 9

func writeRequest(w io.Writer, req request) error {
	var hdr [reqHeaderLen]byte
	hdr[0] = req.op
	binary.BigEndian.PutUint32(hdr[1:5], uint32(req.sector))
	binary.BigEndian.PutUint32(hdr[5:9], uint32(len(req.payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(req.payload) == 0 {
		return nil
	}
	_, err := w.Write(req.payload)
	return err
}

func readRequest(r io.Reader) (request, error) {
	var hdr [reqHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return request{}, err
	}
	req := request{
		op:     hdr[0],
		sector: device.SectorID(binary.BigEndian.Uint32(hdr[1:5])),
	}
	n := binary.BigEndian.Uint32(hdr[5:9])
	if n == 0 {
		return req, nil
	}
	req.payload = make([]byte, n)
	if _, err := io.ReadFull(r, req.payload); err != nil {
		return request{}, err
	}
	return req, nil
}

type response struct {
	status  byte
	errMsg  string
	payload []byte
}

// respHeaderLen: 1 (status) + 4 (error message length) + 4 (payload length).
const respHeaderLen = 9

func writeResponse(w io.Writer, resp response) error {
	errBytes := []byte(resp.errMsg)
	var hdr [respHeaderLen]byte
	hdr[0] = resp.status
	binary.BigEndian.PutUint32(hdr[1:5], uint32(len(errBytes)))
	binary.BigEndian.PutUint32(hdr[5:9], uint32(len(resp.payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(errBytes) > 0 {
		if _, err := w.Write(errBytes); err != nil {
			return err
		}
	}
	if len(resp.payload) == 0 {
		return nil
	}
	_, err := w.Write(resp.payload)
	return err
}

func readResponse(r io.Reader) (response, error) {
	var hdr [respHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return response{}, err
	}
	resp := response{status: hdr[0]}
	elen := binary.BigEndian.Uint32(hdr[1:5])
	plen := binary.BigEndian.Uint32(hdr[5:9])
	if elen > 0 {
		b := make([]byte, elen)
		if _, err := io.ReadFull(r, b); err != nil {
			return response{}, err
		}
		resp.errMsg = string(b)
	}
	if plen > 0 {
		resp.payload = make([]byte, plen)
		if _, err := io.ReadFull(r, resp.payload); err != nil {
			return response{}, err
		}
	}
	return resp, nil
}
