package committee

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"

	"github.com/mosaicnetworks/dagbft/src/common"
	"github.com/mosaicnetworks/dagbft/src/crypto/keys"
)

// AuthorityIndex is the position of an authority in the committee.
type AuthorityIndex uint32

// Stake is the voting power of an authority.
type Stake uint64

// String returns a one-letter name for the first 26 authorities, which is what
// most tests and logs deal with, and the raw index otherwise.
func (i AuthorityIndex) String() string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("[%d]", uint32(i))
}

// Authority is a member of the committee.
type Authority struct {
	Index     AuthorityIndex `json:"-"`
	Hostname  string         `json:"hostname"`
	Stake     Stake          `json:"stake"`
	PubKeyHex string         `json:"pub_key,omitempty"`

	keyOnce sync.Once
	pubKey  *ecdsa.PublicKey
	keyErr  error
}

// NewAuthority creates an Authority. The index is assigned when the authority
// is added to a Committee.
func NewAuthority(hostname string, stake Stake, pubKeyHex string) *Authority {
	return &Authority{
		Hostname:  hostname,
		Stake:     stake,
		PubKeyHex: normalizePubKeyHex(pubKeyHex),
	}
}

// PublicKey returns the parsed public key of the authority, or nil if it does
// not have one.
func (a *Authority) PublicKey() (*ecdsa.PublicKey, error) {
	if a.PubKeyHex == "" {
		return nil, nil
	}
	a.keyOnce.Do(func() {
		a.pubKey, a.keyErr = keys.PublicKeyFromHex(a.PubKeyHex)
		if a.keyErr != nil {
			a.keyErr = fmt.Errorf("authority %v: %w", a.Index, a.keyErr)
		}
	})
	if a.keyErr != nil {
		return nil, a.keyErr
	}
	return a.pubKey, nil
}

// PubKeyBytes returns the raw bytes of the public key.
func (a *Authority) PubKeyBytes() []byte {
	if a.PubKeyHex == "" {
		return nil
	}
	b, _ := common.DecodeFromString(a.PubKeyHex)
	return b
}

// normalizePubKeyHex standardises public key strings to match the format
// derived from a private key.
func normalizePubKeyHex(pubKeyHex string) string {
	if pubKeyHex == "" {
		return ""
	}
	return "0X" + strings.TrimPrefix(strings.ToUpper(pubKeyHex), "0X")
}
