package archive

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"filippo.io/age"
	"github.com/btcsuite/btcutil/bech32"
	"gopkg.in/yaml.v3"
)

// signatureContext prefixes every signed payload so a report archive
// signature can never be replayed as a signature over anything else.
const signatureContext = "agroguard report archive\x00"

var (
	ErrNoSigningKey  = errors.New("archive signer has no private key")
	ErrNoVerifyKey   = errors.New("no public key available to verify the archive")
	ErrUnexpectedKey = errors.New("archive signed by unexpected key")
	ErrBadSignature  = errors.New("archive signature does not match its manifest")
)

// Signer seals report archive manifests with an Ed25519 key derived from the
// seed of an age secret key, so an operator keeps a single secret for both
// archive encryption and archive provenance.
type Signer struct {
	seal      ed25519.PrivateKey
	trusted   ed25519.PublicKey
	recipient string
}

// NewSigner builds a Signer from an AGE-SECRET-KEY-1... string, a base64
// Ed25519 public key, or both. A public key alone can only check archives.
func NewSigner(secretKey, publicKey string) (*Signer, error) {
	secretKey, publicKey = strings.TrimSpace(secretKey), strings.TrimSpace(publicKey)
	if secretKey == "" && publicKey == "" {
		return nil, errors.New("AGE_SECRET_KEY or AGE_PUBLIC_KEY must be set")
	}

	var s Signer
	if secretKey != "" {
		seed, err := ageSeed(secretKey)
		if err != nil {
			return nil, fmt.Errorf("parse AGE_SECRET_KEY: %w", err)
		}
		s.seal = ed25519.NewKeyFromSeed(seed)
		s.trusted = s.seal.Public().(ed25519.PublicKey)
		if identity, err := age.ParseX25519Identity(secretKey); err == nil {
			s.recipient = identity.Recipient().String()
		}
	}
	if publicKey != "" {
		key, err := parsePublicKey(publicKey)
		if err != nil {
			return nil, fmt.Errorf("AGE_PUBLIC_KEY: %w", err)
		}
		if s.trusted != nil && !s.trusted.Equal(key) {
			return nil, errors.New("AGE_PUBLIC_KEY does not match AGE_SECRET_KEY")
		}
		s.trusted = key
	}
	return &s, nil
}

// Seal stamps the signer identity on m and signs it.
func (s *Signer) Seal(m *Manifest) error {
	if s == nil || len(s.seal) == 0 {
		return ErrNoSigningKey
	}
	m.Signer = s.recipient
	m.SigningPublicKey = s.PublicKeyBase64()
	payload, err := signedPayload(*m)
	if err != nil {
		return err
	}
	m.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(s.seal, payload))
	return nil
}

// Check verifies the signature of m. The key recorded in the manifest must
// match the trusted one; without a trusted key the recorded key is used.
func (s *Signer) Check(m Manifest) error {
	if s == nil {
		return ErrNoVerifyKey
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(m.Signature))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature length %d", len(sig))
	}

	key := s.trusted
	if m.SigningPublicKey != "" {
		recorded, err := parsePublicKey(m.SigningPublicKey)
		if err != nil {
			return fmt.Errorf("manifest signing key: %w", err)
		}
		switch {
		case key == nil:
			key = recorded
		case !key.Equal(recorded):
			return ErrUnexpectedKey
		}
	}
	if key == nil {
		return ErrNoVerifyKey
	}

	payload, err := signedPayload(m)
	if err != nil {
		return err
	}
	if !ed25519.Verify(key, payload, sig) {
		return ErrBadSignature
	}
	return nil
}

func (s *Signer) PublicKeyBase64() string {
	if s == nil || len(s.trusted) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(s.trusted)
}

// Recipient is the age recipient of the secret key, when one was given.
func (s *Signer) Recipient() string {
	if s == nil {
		return ""
	}
	return s.recipient
}

// signedPayload is the context tag, the owner line and the manifest YAML with
// the signature cleared.
func signedPayload(m Manifest) ([]byte, error) {
	m.Signature = ""
	body, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest for signing: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(signatureContext)
	buf.WriteString(m.Owner)
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes(), nil
}

func parsePublicKey(raw string) (ed25519.PublicKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("want %d bytes, got %d", ed25519.PublicKeySize, len(decoded))
	}
	return ed25519.PublicKey(decoded), nil
}

// ageSeed extracts the 32-byte X25519 scalar of an age identity, reused here
// as an Ed25519 seed.
func ageSeed(identity string) ([]byte, error) {
	hrp, data, err := bech32.Decode(identity)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(hrp, "age-secret-key-") {
		return nil, fmt.Errorf("unexpected hrp %q", hrp)
	}
	seed, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("unexpected seed length %d", len(seed))
	}
	return seed, nil
}
