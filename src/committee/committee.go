package committee

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/mosaicnetworks/dagbft/src/common"
	"github.com/mosaicnetworks/dagbft/src/crypto"
)

//Committee is the epoch-fixed set of authorities and their stakes.
type Committee struct {
	Epoch       uint64       `json:"epoch"`
	Authorities []*Authority `json:"authorities"`

	byPubKey   map[string]*Authority
	totalStake Stake

	//cached values
	hash []byte
	hex  string
}

//NewCommittee creates a Committee. Authority indexes are assigned in the order
//of the slice.
func NewCommittee(epoch uint64, authorities []*Authority) (*Committee, error) {
	if len(authorities) == 0 {
		return nil, fmt.Errorf("committee must have at least one authority")
	}

	c := &Committee{
		Epoch:       epoch,
		Authorities: authorities,
		byPubKey:    make(map[string]*Authority),
	}

	for i, a := range authorities {
		if a.Stake == 0 {
			return nil, fmt.Errorf("authority %d (%s) has zero stake", i, a.Hostname)
		}
		a.Index = AuthorityIndex(i)
		a.PubKeyHex = normalizePubKeyHex(a.PubKeyHex)
		if a.PubKeyHex != "" {
			if _, ok := c.byPubKey[a.PubKeyHex]; ok {
				return nil, fmt.Errorf("duplicate public key %s", a.PubKeyHex)
			}
			c.byPubKey[a.PubKeyHex] = a
		}
		c.totalStake += a.Stake
	}

	return c, nil
}

//NewTestCommittee creates a committee with one authority per stake and no
//public keys. With no arguments it returns four authorities of stake 1.
func NewTestCommittee(stakes ...Stake) *Committee {
	if len(stakes) == 0 {
		stakes = []Stake{1, 1, 1, 1}
	}
	authorities := make([]*Authority, len(stakes))
	for i, s := range stakes {
		authorities[i] = NewAuthority(fmt.Sprintf("authority%d", i), s, "")
	}
	c, err := NewCommittee(0, authorities)
	if err != nil {
		panic(err)
	}
	return c
}

//Size returns the number of authorities.
func (c *Committee) Size() int {
	return len(c.Authorities)
}

//IsValidIndex returns true if i identifies an authority of the committee.
func (c *Committee) IsValidIndex(i AuthorityIndex) bool {
	return int(i) < len(c.Authorities)
}

//Authority returns the authority with index i, or nil.
func (c *Committee) Authority(i AuthorityIndex) *Authority {
	if !c.IsValidIndex(i) {
		return nil
	}
	return c.Authorities[i]
}

//ByPubKey looks up an authority by its public key hex.
func (c *Committee) ByPubKey(pubKeyHex string) (*Authority, bool) {
	a, ok := c.byPubKey[normalizePubKeyHex(pubKeyHex)]
	return a, ok
}

//Indexes returns the indexes of all the authorities, in order.
func (c *Committee) Indexes() []AuthorityIndex {
	res := make([]AuthorityIndex, len(c.Authorities))
	for i := range c.Authorities {
		res[i] = AuthorityIndex(i)
	}
	return res
}

//Stake returns the stake of authority i, or 0 if it is not in the committee.
func (c *Committee) Stake(i AuthorityIndex) Stake {
	if !c.IsValidIndex(i) {
		return 0
	}
	return c.Authorities[i].Stake
}

//TotalStake returns the sum of all stakes.
func (c *Committee) TotalStake() Stake {
	return c.totalStake
}

//QuorumThreshold is the smallest stake strictly greater than 2/3 of the total
//stake.
func (c *Committee) QuorumThreshold() Stake {
	return 2*c.totalStake/3 + 1
}

//ValidityThreshold is the smallest stake guaranteed to include at least one
//honest authority.
func (c *Committee) ValidityThreshold() Stake {
	return (c.totalStake + 2) / 3
}

//ReachedQuorum returns true if stake is a quorum.
func (c *Committee) ReachedQuorum(stake Stake) bool {
	return stake >= c.QuorumThreshold()
}

//ReachedValidity returns true if stake reaches the validity threshold.
func (c *Committee) ReachedValidity(stake Stake) bool {
	return stake >= c.ValidityThreshold()
}

// Hash uniquely identifies a Committee. It is computed by hashing (SHA256) the
// epoch, the stakes and the public keys together, one authority at a time.
func (c *Committee) Hash() []byte {
	if len(c.hash) == 0 {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, c.Epoch)
		hash := crypto.SHA256(buf)
		for _, a := range c.Authorities {
			binary.BigEndian.PutUint64(buf, uint64(a.Stake))
			hash = crypto.SimpleHashFromTwoHashes(hash, buf)
			hash = crypto.SimpleHashFromTwoHashes(hash, a.PubKeyBytes())
		}
		c.hash = hash
	}
	return c.hash
}

//Hex is the hexadecimal representation of Hash
func (c *Committee) Hex() string {
	if len(c.hex) == 0 {
		c.hex = common.EncodeToString(c.Hash())
	}
	return c.hex
}

//Marshal encodes the committee in JSON.
func (c *Committee) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "\t")
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

//Unmarshal decodes a committee produced by Marshal.
func Unmarshal(data []byte) (*Committee, error) {
	var c Committee
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return NewCommittee(c.Epoch, c.Authorities)
}
