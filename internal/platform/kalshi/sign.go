package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

// Signer signs requests with Kalshi's RSA-PSS scheme. The signed
// message is timestamp + method + path, without the query string.
type Signer struct {
	apiKeyID   string
	privateKey *rsa.PrivateKey
}

// NewSigner parses a PEM-encoded RSA private key and returns a signer
// for the given API key ID.
func NewSigner(apiKeyID string, pemKey []byte) (*Signer, error) {
	if apiKeyID == "" {
		return nil, fmt.Errorf("kalshi: api key id: %w", domain.ErrConfigMissing)
	}
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("kalshi: decode private key PEM")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		rsaKey, rsaErr := x509.ParsePKCS1PrivateKey(block.Bytes)
		if rsaErr != nil {
			return nil, fmt.Errorf("kalshi: parse private key: %w", err)
		}
		return &Signer{apiKeyID: apiKeyID, privateKey: rsaKey}, nil
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("kalshi: private key is not RSA")
	}
	return &Signer{apiKeyID: apiKeyID, privateKey: rsaKey}, nil
}

// Sign adds the Kalshi auth headers to a request.
func (s *Signer) Sign(req *http.Request) error {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	msg := ts + req.Method + req.URL.Path

	hash := sha256.Sum256([]byte(msg))
	sig, err := rsa.SignPSS(rand.Reader, s.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("kalshi: sign request: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", s.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(sig))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}
