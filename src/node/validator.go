package node

import (
	"crypto/ecdsa"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/crypto/keys"
)

//Validator struct holds information about the validator running a node
type Validator struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	pubHex string
}

//NewValidator is a factory method for a Validator
func NewValidator(key *ecdsa.PrivateKey, moniker string) *Validator {
	return &Validator{
		Key:     key,
		Moniker: moniker,
	}
}

//PublicKeyHex returns the validator's public key as a hex string
func (v *Validator) PublicKeyHex() string {
	if len(v.pubHex) == 0 {
		v.pubHex = keys.PublicKeyHex(&v.Key.PublicKey)
	}
	return v.pubHex
}

// Authority returns the validator's authority in the committee, if any. Nodes
// that are not part of the committee follow the commit sequence as observers.
func (v *Validator) Authority(c *committee.Committee) (*committee.Authority, bool) {
	return c.ByPubKey(v.PublicKeyHex())
}
