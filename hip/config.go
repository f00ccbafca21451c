package hip

import (
	"github.com/pkg/errors"

	"github.com/hipvpls/core/crypto"
)

// Config is the router's negotiable BEX configuration, exactly the role
// the teacher's Config plays for IKE proposals: a locally configured
// acceptable set checked against what a peer offers.
type Config struct {
	DHGroups    []crypto.GroupId
	HMACSuites  []crypto.HmacId
	EspSuites   []crypto.EspCipherId
	PuzzleK     uint8
	FrameQueueLen int
}

func DefaultConfig() *Config {
	return &Config{
		DHGroups:      []crypto.GroupId{crypto.GroupCurve25519, crypto.GroupModp2048},
		HMACSuites:    []crypto.HmacId{crypto.HMAC_SHA256_128, crypto.HMAC_SHA1_96},
		EspSuites:     []crypto.EspCipherId{crypto.EspCipherAES128, crypto.EspCipherCamellia},
		PuzzleK:       10,
		FrameQueueLen: 64,
	}
}

// SelectDHGroup picks the first of cfg's configured groups that also
// appears in the peer's offered list, preserving our own preference
// order the way the teacher's CheckProposals walks its own Transforms.
func (cfg *Config) SelectDHGroup(offered []uint16) (crypto.GroupId, error) {
	for _, want := range cfg.DHGroups {
		for _, have := range offered {
			if crypto.GroupId(have) == want {
				return want, nil
			}
		}
	}
	return 0, errors.New("hip: no acceptable DIFFIE_HELLMAN group offered")
}

// SelectHIPTransform picks the first mutually-acceptable HMAC suite id.
func (cfg *Config) SelectHIPTransform(offered []uint16) (crypto.HmacId, error) {
	for _, want := range cfg.HMACSuites {
		for _, have := range offered {
			if crypto.HmacId(have) == want {
				return want, nil
			}
		}
	}
	return 0, errors.New("hip: no acceptable HIP_TRANSFORM offered")
}

// OfferedDHGroups/OfferedHIPTransform/OfferedESPTransform render cfg's
// preference lists as the uint16 suite-id lists the wire parameters
// carry.
func (cfg *Config) OfferedDHGroups() []uint16 {
	out := make([]uint16, len(cfg.DHGroups))
	for i, g := range cfg.DHGroups {
		out[i] = uint16(g)
	}
	return out
}

func (cfg *Config) OfferedHIPTransform() []uint16 {
	out := make([]uint16, len(cfg.HMACSuites))
	for i, h := range cfg.HMACSuites {
		out[i] = uint16(h)
	}
	return out
}

func (cfg *Config) OfferedESPTransform() []uint16 {
	out := make([]uint16, len(cfg.EspSuites))
	for i, e := range cfg.EspSuites {
		out[i] = uint16(e)
	}
	return out
}
