package crypto

import (
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

// DirectionLabel distinguishes the two per-direction HMAC keys an
// established SA pair needs; HIP derives one key for initiator-to-
// responder traffic and one for the reverse direction.
type DirectionLabel string

const (
	LabelInitiatorToResponder DirectionLabel = "HIP-I2R"
	LabelResponderToInitiator DirectionLabel = "HIP-R2I"
)

// DeriveSAKeys expands the BEX shared secret into the pair of HMAC keys
// that seed the outbound and inbound SAs, per spec §4.1: "Keys are drawn
// from the DH shared secret via an HMAC-based KDF seeded with both HITs
// and a per-direction label."
func DeriveSAKeys(secret, nonceI, nonceR, hitI, hitR []byte, keyLen int) (keyI2R, keyR2I []byte, err error) {
	salt := append(append([]byte{}, nonceI...), nonceR...)
	extract := hkdf.Extract(sha256.New, secret, salt)

	keyI2R, err = expand(extract, hitI, hitR, LabelInitiatorToResponder, keyLen)
	if err != nil {
		return nil, nil, err
	}
	keyR2I, err = expand(extract, hitI, hitR, LabelResponderToInitiator, keyLen)
	if err != nil {
		return nil, nil, err
	}
	return keyI2R, keyR2I, nil
}

func expand(pseudoRandomKey, hitI, hitR []byte, label DirectionLabel, keyLen int) ([]byte, error) {
	info := append(append([]byte(label), hitI...), hitR...)
	reader := hkdf.Expand(sha256.New, pseudoRandomKey, info)
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, errors.Wrap(err, "hkdf expand")
	}
	return key, nil
}
