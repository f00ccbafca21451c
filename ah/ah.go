// Package ah implements the per-packet authenticated tunnel of spec §4.6:
// encapsulating outgoing Ethernet frames into AH datagrams under an
// outbound SA, and verifying and stripping incoming AH datagrams against
// an inbound SA. No encryption is performed — only the Authentication
// Header's integrity/replay protection — per the HMAC-only SA model of
// C4.
package ah

import (
	"crypto/hmac"

	"github.com/msgboxio/log"

	"github.com/hipvpls/core/crypto"
	"github.com/hipvpls/core/protocol"
	"github.com/hipvpls/core/sadb"
)

// Encapsulate wraps frame in an AH datagram under the outbound SA out,
// exactly spec §4.6's four-step encapsulation algorithm.
func Encapsulate(db *sadb.SADB, out *sadb.SA, frame []byte) ([]byte, error) {
	seq, err := db.NextSeq(out)
	if err != nil {
		return nil, err
	}

	icvLen := out.HmacID.ICVLen()
	h := &protocol.AHHeader{
		NextHeader:  protocol.NextHeaderEthernet,
		PayloadLen:  protocol.AHPayloadLenWords(icvLen),
		SPI:         out.SPI,
		SequenceNum: seq,
		ICV:         make([]byte, icvLen),
	}
	icv := crypto.HMAC(out.HmacID, out.HmacKey, append(h.Encode(), frame...))
	h.ICV = icv

	db.Counters().AddTxBytes(uint64(len(frame)))
	return append(h.Encode(), frame...), nil
}

// Decapsulate authenticates and strips an AH datagram, returning the
// inner Ethernet frame. It follows spec §4.6's mandatory order: parse,
// SPI lookup, tentative replay precheck, ICV verify, replay commit,
// deliver. Any failure drops the datagram and increments the matching
// counter; it never triggers a retransmit.
func Decapsulate(db *sadb.SADB, datagram []byte) ([]byte, error) {
	spi, err := protocol.PeekAHSPI(datagram)
	if err != nil {
		log.Infof("ah: malformed datagram: %v", err)
		return nil, err
	}

	in, ok := db.LookupIn(spi)
	if !ok {
		db.Counters().IncUnknownSPIDrop()
		return nil, protocol.Errf(protocol.UnknownSPI, "spi %d", spi)
	}

	icvLen := in.HmacID.ICVLen()
	h, n, err := protocol.DecodeAHHeader(datagram, icvLen)
	if err != nil {
		log.Infof("ah: malformed datagram from spi %d: %v", spi, err)
		return nil, err
	}
	payload := datagram[n:]

	if !db.PrecheckReplay(in, h.SequenceNum) {
		db.Counters().IncReplayDrop()
		return nil, protocol.Errf(protocol.ReplayDetected, "spi %d seq %d", spi, h.SequenceNum)
	}

	zeroed := &protocol.AHHeader{
		NextHeader:  h.NextHeader,
		PayloadLen:  h.PayloadLen,
		SPI:         h.SPI,
		SequenceNum: h.SequenceNum,
		ICV:         make([]byte, icvLen),
	}
	expected := crypto.HMAC(in.HmacID, in.HmacKey, append(zeroed.Encode(), payload...))
	if !hmac.Equal(expected, h.ICV) {
		db.Counters().IncAuthFailure()
		log.Infof("ah: icv mismatch from spi %d seq %d", spi, h.SequenceNum)
		return nil, protocol.Errf(protocol.AuthFailure, "spi %d seq %d", spi, h.SequenceNum)
	}

	// Replay window only commits once authentication has actually
	// succeeded, per spec §4.6's "step 3 is tentative" note: a forged
	// packet with a valid-looking but unauthenticated sequence number
	// must never be able to burn a legitimate future sequence number.
	db.CommitReplay(in, h.SequenceNum)
	db.Counters().AddRxBytes(uint64(len(payload)))
	return payload, nil
}
