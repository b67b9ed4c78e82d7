package manifest

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jose "gopkg.in/square/go-jose.v2"

	"example.com/dot11gate/internal/common"
)

var (
	ErrNoPEM       = errors.New("manifest: no pem block")
	ErrNotRSA      = errors.New("manifest: key is not RSA")
	ErrUnsigned    = errors.New("manifest: no signature recorded")
	ErrKeyMismatch = errors.New("manifest: signature key id does not match")
)

// SignatureExt is appended to the manifest path to name the detached JWS.
const SignatureExt = ".jws"

// SignAndSave records signature metadata in m, writes the manifest to out and
// a detached RS256 compact JWS over the written bytes to out+SignatureExt.
func SignAndSave(m Manifest, out string, privateKeyPEM []byte) (Manifest, error) {
	priv, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return m, err
	}
	kid, err := KeyID(&priv.PublicKey)
	if err != nil {
		return m, err
	}
	sigPath := out + SignatureExt
	m.Signature = &Signature{
		Type:          "JWS",
		Algorithm:     string(jose.RS256),
		KeyID:         kid,
		SignatureFile: filepath.Base(sigPath),
	}
	payload, err := Marshal(m)
	if err != nil {
		return m, err
	}
	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.RS256,
		Key:       jose.JSONWebKey{Key: priv, KeyID: kid},
	}, nil)
	if err != nil {
		return m, fmt.Errorf("signer: %w", err)
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return m, fmt.Errorf("sign manifest: %w", err)
	}
	compact, err := obj.DetachedCompactSerialize()
	if err != nil {
		return m, err
	}
	if err := common.WriteFileAtomic(out, payload, 0o644); err != nil {
		return m, err
	}
	if err := common.WriteFileAtomic(sigPath, []byte(compact+"\n"), 0o644); err != nil {
		return m, err
	}
	return m, nil
}

// VerifyFile checks the detached signature of the manifest stored at path.
// The key may be a public key or the signing private key.
func VerifyFile(path string, keyPEM []byte) (Manifest, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	m, err := Load(path)
	if err != nil {
		return m, err
	}
	if m.Signature == nil || m.Signature.SignatureFile == "" {
		return m, ErrUnsigned
	}
	pub, err := ParsePublicKey(keyPEM)
	if err != nil {
		return m, err
	}
	kid, err := KeyID(pub)
	if err != nil {
		return m, err
	}
	if m.Signature.KeyID != "" && m.Signature.KeyID != kid {
		return m, ErrKeyMismatch
	}
	raw, err := os.ReadFile(filepath.Join(filepath.Dir(path), m.Signature.SignatureFile))
	if err != nil {
		return m, err
	}
	obj, err := jose.ParseSigned(strings.TrimSpace(string(raw)))
	if err != nil {
		return m, fmt.Errorf("parse signature: %w", err)
	}
	if err := obj.DetachedVerify(payload, pub); err != nil {
		return m, fmt.Errorf("verify signature: %w", err)
	}
	return m, nil
}

// KeyID is the first 16 hex digits of the sha256 of the PKIX public key.
func KeyID(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:8]), nil
}

// ParsePrivateKey accepts PKCS#1 and PKCS#8 RSA keys.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrNoPEM
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrNotRSA
	}
	return rsaKey, nil
}

func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrNoPEM
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, ErrNotRSA
		}
		return pub, nil
	}
	priv, err := ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	return &priv.PublicKey, nil
}
