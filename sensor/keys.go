package sensor

import (
	"encoding/hex"
	"strings"
)

// Key sizes and derivation constants.
const (
	IdentifierLen = 8
	AuthCodeLen   = 8
	SeedLen       = 16
	KeyLen        = 16

	seedMask     byte = 0x55
	deriveRounds      = 4
)

// Key type discriminators.
const (
	DiscriminatorEncrypt byte = 0x01
	DiscriminatorDecrypt byte = 0x02
)

// DeviceIdentifier is the 8-byte identifier returned by the tag interface.
type DeviceIdentifier [IdentifierLen]byte

// ParseIdentifier validates the length of raw and copies it.
func ParseIdentifier(raw []byte) (DeviceIdentifier, error) {
	var id DeviceIdentifier
	if len(raw) != IdentifierLen {
		return id, Errorf(ErrCodeInvalidIdentifier, "ParseIdentifier",
			"identifier must be %d bytes, got %d", IdentifierLen, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (id DeviceIdentifier) String() string {
	return strings.ToUpper(hex.EncodeToString(id[:]))
}

// AuthCode is the 8-byte message authentication code of an identifier.
type AuthCode [AuthCodeLen]byte

// Seed is the 16-byte input to key derivation.
type Seed [SeedLen]byte

// KeyPair holds the per-device keys for one session.
type KeyPair struct {
	Encryption [KeyLen]byte
	Decryption [KeyLen]byte
}

// Zero wipes both keys.
func (k *KeyPair) Zero() {
	for i := range k.Encryption {
		k.Encryption[i] = 0
		k.Decryption[i] = 0
	}
}

// KeyDeriver computes authentication codes and key pairs. The zero value is
// not usable; use DefaultKeyDeriver or NewKeyDeriver.
type KeyDeriver struct {
	table   [256]byte
	initial [AuthCodeLen]byte
}

// NewKeyDeriver builds a deriver from a full substitution table and the
// initial authentication state.
func NewKeyDeriver(table [256]byte, initial [AuthCodeLen]byte) *KeyDeriver {
	return &KeyDeriver{table: table, initial: initial}
}

// DefaultKeyDeriver uses the package substitution table and initial state.
var DefaultKeyDeriver = NewKeyDeriver(substitutionTable, authInitialState)

// DeriveKeys derives the key pair for raw using DefaultKeyDeriver.
func DeriveKeys(raw []byte) (KeyPair, error) {
	return DefaultKeyDeriver.DeriveKeys(raw)
}

// DeriveKeys validates raw and runs the full derivation pipeline.
func (d *KeyDeriver) DeriveKeys(raw []byte) (KeyPair, error) {
	id, err := ParseIdentifier(raw)
	if err != nil {
		return KeyPair{}, err
	}
	seed := d.Seed(id)
	return KeyPair{
		Encryption: deriveKey(seed, DiscriminatorEncrypt),
		Decryption: deriveKey(seed, DiscriminatorDecrypt),
	}, nil
}

// AuthCode computes the authentication code of id.
func (d *KeyDeriver) AuthCode(id DeviceIdentifier) AuthCode {
	state := AuthCode(d.initial)
	for i := range state {
		state[i] ^= id[IdentifierLen-1-i]
	}
	for i := range state {
		state[i] = d.table[state[i]]
	}
	// Sequential: state[7] mixes with the already updated state[0].
	for i := range state {
		state[i] += state[(i+1)%AuthCodeLen]
	}
	return state
}

// Seed mixes the authentication code of id with id itself.
func (d *KeyDeriver) Seed(id DeviceIdentifier) Seed {
	auth := d.AuthCode(id)
	var seed Seed
	copy(seed[:AuthCodeLen], auth[:])
	for i := 0; i < IdentifierLen; i++ {
		seed[AuthCodeLen+i] = id[i] ^ auth[i]
	}
	for i := range seed {
		seed[i] = (seed[i] ^ seedMask) + byte(i)
	}
	return seed
}

func deriveKey(seed Seed, discriminator byte) [KeyLen]byte {
	var key [KeyLen]byte
	for i := range key {
		key[i] = seed[i] ^ discriminator
	}
	for round := 0; round < deriveRounds; round++ {
		for i := range key {
			key[i] = (key[i] + seed[i%8]) ^ seed[8+i%8]
		}
		key = rotateLeft(key, round)
	}
	return key
}

func rotateLeft(key [KeyLen]byte, n int) [KeyLen]byte {
	var out [KeyLen]byte
	for i := range key {
		out[i] = key[(i+n)%KeyLen]
	}
	return out
}
