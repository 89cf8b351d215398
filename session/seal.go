package session

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	minMemoryKB       uint32 = 8 * 1024
	minTimeCost       uint32 = 1
	minParallelism    uint8  = 1
	minSaltLength     uint32 = 16
	minPassphraseSize        = 8

	sealMagic         = "SGSF"
	sealFormatVersion = 1
)

// SealConfig controls the argon2id derivation of the key that seals a persisted session.
type SealConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
}

// DefaultSealConfig returns interactive-grade argon2id parameters.
func DefaultSealConfig() SealConfig {
	return SealConfig{
		Memory:      64 * 1024,
		Time:        1,
		Parallelism: 2,
		SaltLength:  16,
	}
}

// Validate checks the parameters against the minimums the sealer accepts.
func (c SealConfig) Validate() error {
	if c.Memory < minMemoryKB {
		return errors.New("seal memory must be >= 8192 KB")
	}
	if c.Time < minTimeCost {
		return errors.New("seal time must be >= 1")
	}
	if c.Parallelism < minParallelism {
		return errors.New("seal parallelism must be >= 1")
	}
	if c.SaltLength < minSaltLength || c.SaltLength > 255 {
		return errors.New("seal salt length must be between 16 and 255")
	}
	return nil
}

type sealParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
}

func (p sealParams) equal(o sealParams) bool {
	return p.memory == o.memory &&
		p.time == o.time &&
		p.parallelism == o.parallelism &&
		bytes.Equal(p.salt, o.salt)
}

// sealer encrypts blobs with XChaCha20-Poly1305 under a passphrase-derived key.
// The derived key for the most recent salt is cached because argon2id is
// deliberately slow.
type sealer struct {
	config     SealConfig
	passphrase []byte

	mu          sync.Mutex
	cacheParams sealParams
	cacheKey    []byte
}

func newSealer(passphrase []byte, cfg SealConfig) (*sealer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(passphrase) < minPassphraseSize {
		return nil, errors.New("passphrase must be at least 8 bytes")
	}
	return &sealer{
		config:     cfg,
		passphrase: append([]byte(nil), passphrase...),
	}, nil
}

func (s *sealer) deriveKey(p sealParams) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cacheKey != nil && s.cacheParams.equal(p) {
		return s.cacheKey
	}
	key := argon2.IDKey(s.passphrase, p.salt, p.time, p.memory, p.parallelism, chacha20poly1305.KeySize)
	s.cacheParams = sealParams{
		memory:      p.memory,
		time:        p.time,
		parallelism: p.parallelism,
		salt:        append([]byte(nil), p.salt...),
	}
	s.cacheKey = key
	return key
}

func (s *sealer) currentParams() (sealParams, error) {
	s.mu.Lock()
	var salt []byte
	if s.cacheKey != nil &&
		s.cacheParams.memory == s.config.Memory &&
		s.cacheParams.time == s.config.Time &&
		s.cacheParams.parallelism == s.config.Parallelism {
		salt = s.cacheParams.salt
	}
	s.mu.Unlock()

	if salt == nil {
		salt = make([]byte, s.config.SaltLength)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return sealParams{}, err
		}
	}
	return sealParams{
		memory:      s.config.Memory,
		time:        s.config.Time,
		parallelism: s.config.Parallelism,
		salt:        salt,
	}, nil
}

func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	params, err := s.currentParams()
	if err != nil {
		return nil, err
	}

	var header bytes.Buffer
	header.WriteString(sealMagic)
	header.WriteByte(sealFormatVersion)
	if err := binary.Write(&header, binary.BigEndian, params.memory); err != nil {
		return nil, err
	}
	if err := binary.Write(&header, binary.BigEndian, params.time); err != nil {
		return nil, err
	}
	header.WriteByte(params.parallelism)
	header.WriteByte(byte(len(params.salt)))
	header.Write(params.salt)

	aead, err := chacha20poly1305.NewX(s.deriveKey(params))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ad := header.Bytes()
	out := make([]byte, 0, len(ad)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, ad...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, ad), nil
}

func (s *sealer) open(data []byte) ([]byte, error) {
	reader := bytes.NewReader(data)

	magic := make([]byte, len(sealMagic))
	if _, err := io.ReadFull(reader, magic); err != nil {
		return nil, err
	}
	if string(magic) != sealMagic {
		return nil, errors.New("invalid seal magic")
	}
	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sealFormatVersion {
		return nil, errors.New("unsupported seal version")
	}

	var p sealParams
	if err := binary.Read(reader, binary.BigEndian, &p.memory); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &p.time); err != nil {
		return nil, err
	}
	if p.parallelism, err = reader.ReadByte(); err != nil {
		return nil, err
	}
	if p.memory < minMemoryKB || p.time < minTimeCost || p.parallelism < minParallelism {
		return nil, errors.New("invalid seal parameters")
	}
	saltLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if uint32(saltLen) < minSaltLength {
		return nil, errors.New("invalid seal salt length")
	}
	p.salt = make([]byte, saltLen)
	if _, err := io.ReadFull(reader, p.salt); err != nil {
		return nil, err
	}

	headerLen := len(data) - reader.Len()
	ad := data[:headerLen]

	aead, err := chacha20poly1305.NewX(s.deriveKey(p))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(reader, nonce); err != nil {
		return nil, err
	}

	return aead.Open(nil, nonce, data[headerLen+len(nonce):], ad)
}
