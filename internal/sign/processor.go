package sign

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"errors"
	"fmt"
	"math/big"
	"os"
)

var (
	ErrKeyLoad = errors.New("sign: failed to load key material")
	ErrSigning = errors.New("sign: signing operation failed")
	ErrVerify  = errors.New("sign: signature mismatch")
)

// Processor signs and verifies SHA-1 digests with RSA PKCS #1 v1.5, the
// scheme the Pasargad gateway expects. Key material is loaded once and is
// read-only afterwards, so one Processor is safe for concurrent use.
type Processor struct {
	priv *rsa.PrivateKey
}

func NewProcessor(priv *rsa.PrivateKey) *Processor {
	return &Processor{priv: priv}
}

// LoadProcessor reads an RSA private key from path. Both PEM (PKCS #1 or
// PKCS #8) and the .NET RSAKeyValue XML format distributed by Pasargad are
// accepted.
func LoadProcessor(path string) (*Processor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
	}

	if block, _ := pem.Decode(raw); block != nil {
		priv, err := parsePEMKey(block)
		if err != nil {
			return nil, err
		}
		return &Processor{priv: priv}, nil
	}

	priv, err := parseXMLKey(raw)
	if err != nil {
		return nil, err
	}
	return &Processor{priv: priv}, nil
}

// Sign produces raw RSA signature bytes over a SHA-1 digest. The caller
// base64-encodes the result before transport.
func (p *Processor) Sign(digest []byte) ([]byte, error) {
	sig, err := rsa.SignPKCS1v15(rand.Reader, p.priv, crypto.SHA1, digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return sig, nil
}

// Verify checks a signature over a SHA-1 digest against the processor's
// public key.
func (p *Processor) Verify(digest, sig []byte) error {
	if err := rsa.VerifyPKCS1v15(&p.priv.PublicKey, crypto.SHA1, digest, sig); err != nil {
		return fmt.Errorf("%w: %v", ErrVerify, err)
	}
	return nil
}

func (p *Processor) Public() *rsa.PublicKey {
	return &p.priv.PublicKey
}

func parsePEMKey(block *pem.Block) (*rsa.PrivateKey, error) {
	if priv, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return priv, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrKeyLoad)
	}
	return priv, nil
}

// rsaKeyValue mirrors the .NET RSAKeyValue XML layout.
type rsaKeyValue struct {
	XMLName  xml.Name `xml:"RSAKeyValue"`
	Modulus  string   `xml:"Modulus"`
	Exponent string   `xml:"Exponent"`
	P        string   `xml:"P"`
	Q        string   `xml:"Q"`
	DP       string   `xml:"DP"`
	DQ       string   `xml:"DQ"`
	InverseQ string   `xml:"InverseQ"`
	D        string   `xml:"D"`
}

func parseXMLKey(raw []byte) (*rsa.PrivateKey, error) {
	var kv rsaKeyValue
	if err := xml.Unmarshal(raw, &kv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
	}
	if kv.Modulus == "" || kv.Exponent == "" || kv.D == "" {
		return nil, fmt.Errorf("%w: incomplete RSAKeyValue element", ErrKeyLoad)
	}

	n, err := b64Int(kv.Modulus)
	if err != nil {
		return nil, err
	}
	e, err := b64Int(kv.Exponent)
	if err != nil {
		return nil, err
	}
	d, err := b64Int(kv.D)
	if err != nil {
		return nil, err
	}

	priv := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: int(e.Int64())},
		D:         d,
	}

	if kv.P != "" && kv.Q != "" {
		p, err := b64Int(kv.P)
		if err != nil {
			return nil, err
		}
		q, err := b64Int(kv.Q)
		if err != nil {
			return nil, err
		}
		priv.Primes = []*big.Int{p, q}

		if err := priv.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
		}
		priv.Precompute()
	}

	return priv, nil
}

func b64Int(s string) (*big.Int, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
	}
	return new(big.Int).SetBytes(b), nil
}
