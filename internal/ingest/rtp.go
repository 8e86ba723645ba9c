package ingest

import "fmt"

// rtpVersion is the only RTP version this receiver accepts (RFC 3550 §5.1).
const rtpVersion = 2

// rtpHeaderLen is the fixed portion of the RTP header, before any CSRC
// identifiers or header extension.
const rtpHeaderLen = 12

// rtpPacket is a parsed RTP datagram: the fixed header fields needed to
// validate and sequence payloads, plus the payload itself. No RTP library
// exists among this project's real dependencies, so the 12-byte fixed
// header (RFC 3550 §5.1) is parsed by hand — everything past it (CSRC list,
// extension header) is skipped rather than interpreted, since the
// depacketizer only needs the payload bytes in arrival order.
type rtpPacket struct {
	payloadType    uint8
	sequenceNumber uint16
	payload        []byte
}

// parseRTP validates and parses the fixed RTP header. Malformed datagrams
// are reported as an error and dropped by the caller; RTP carries no
// delivery guarantee, so loss here is silent and expected.
func parseRTP(datagram []byte) (rtpPacket, error) {
	if len(datagram) < rtpHeaderLen {
		return rtpPacket{}, fmt.Errorf("datagram too short: %d bytes", len(datagram))
	}

	version := datagram[0] >> 6
	if version != rtpVersion {
		return rtpPacket{}, fmt.Errorf("unsupported RTP version %d", version)
	}

	hasPadding := datagram[0]&0x20 != 0
	hasExtension := datagram[0]&0x10 != 0
	csrcCount := int(datagram[0] & 0x0F)

	payloadType := datagram[1] & 0x7F
	sequenceNumber := uint16(datagram[2])<<8 | uint16(datagram[3])

	offset := rtpHeaderLen + csrcCount*4
	if offset > len(datagram) {
		return rtpPacket{}, fmt.Errorf("csrc count overruns datagram")
	}

	if hasExtension {
		if offset+4 > len(datagram) {
			return rtpPacket{}, fmt.Errorf("extension header overruns datagram")
		}
		extLen := int(datagram[offset+2])<<8 | int(datagram[offset+3])
		offset += 4 + extLen*4
		if offset > len(datagram) {
			return rtpPacket{}, fmt.Errorf("extension overruns datagram")
		}
	}

	end := len(datagram)
	if hasPadding {
		if end == offset {
			return rtpPacket{}, fmt.Errorf("padding flag set with empty payload")
		}
		padLen := int(datagram[end-1])
		end -= padLen
		if end < offset {
			return rtpPacket{}, fmt.Errorf("padding length overruns payload")
		}
	}

	return rtpPacket{
		payloadType:    payloadType,
		sequenceNumber: sequenceNumber,
		payload:        datagram[offset:end],
	}, nil
}
