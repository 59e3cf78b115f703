package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrKeyUnwrap reports that the wrapped AES key could not be decrypted with
// the configured private key, usually a key rotation mismatch. The Flow
// endpoint answers it with HTTP 421 so the client refreshes its public key.
var ErrKeyUnwrap = errors.New("flow aes key unwrap failed")

// FlowCryptoService implements the hybrid-encryption contract of the
// WhatsApp Flows data channel: RSA-OAEP unwraps a per-request AES key, the
// payload is AES-GCM with the 16-byte tag appended, and the response is
// sealed under the same key with every bit of the IV flipped.
type FlowCryptoService struct {
	privateKey *rsa.PrivateKey
}

// NewFlowCryptoService creates a new flow crypto service
func NewFlowCryptoService(privateKey *rsa.PrivateKey) *FlowCryptoService {
	return &FlowCryptoService{privateKey: privateKey}
}

// FlowDataExchange is the encrypted request body of the Flow data endpoint.
type FlowDataExchange struct {
	EncryptedFlowData string `json:"encrypted_flow_data"`
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	InitialVector     string `json:"initial_vector"`
}

// FlowRequest is the decrypted data-exchange payload.
type FlowRequest struct {
	Version   string                 `json:"version"`
	Action    string                 `json:"action"`
	Screen    string                 `json:"screen"`
	FlowToken string                 `json:"flow_token"`
	Data      map[string]interface{} `json:"data"`
}

// FlowCryptoContext carries the per-request AES key and IV between decrypt
// and encrypt. It is never persisted.
type FlowCryptoContext struct {
	aesKey []byte
	iv     []byte
}

// Decrypt unwraps the AES key with the tenant private key and opens the
// flow-data ciphertext. Any failure returns an error with no partial output.
func (f *FlowCryptoService) Decrypt(exchange *FlowDataExchange) (*FlowRequest, *FlowCryptoContext, error) {
	if f.privateKey == nil {
		return nil, nil, fmt.Errorf("flow private key is not configured")
	}

	wrappedKey, err := base64.StdEncoding.DecodeString(exchange.EncryptedAESKey)
	if err != nil {
		return nil, nil, fmt.Errorf("decode encrypted_aes_key: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(exchange.EncryptedFlowData)
	if err != nil {
		return nil, nil, fmt.Errorf("decode encrypted_flow_data: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(exchange.InitialVector)
	if err != nil {
		return nil, nil, fmt.Errorf("decode initial_vector: %w", err)
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, f.privateKey, wrappedKey, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrKeyUnwrap, err)
	}

	plaintext, err := openGCM(aesKey, iv, ciphertext)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt flow data: %w", err)
	}

	var request FlowRequest
	if err := json.Unmarshal(plaintext, &request); err != nil {
		return nil, nil, fmt.Errorf("parse flow data: %w", err)
	}

	return &request, &FlowCryptoContext{aesKey: aesKey, iv: iv}, nil
}

// Encrypt seals a response payload for the Flow client. The response IV is
// the request IV with every byte XORed with 0xFF; the result is the base64
// string Meta expects as the raw HTTP body.
func (f *FlowCryptoService) Encrypt(response interface{}, cryptoCtx *FlowCryptoContext) (string, error) {
	plaintext, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("marshal flow response: %w", err)
	}

	sealed, err := sealGCM(cryptoCtx.aesKey, FlipIV(cryptoCtx.iv), plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt flow response: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// FlipIV returns a copy of iv with every bit inverted.
func FlipIV(iv []byte) []byte {
	flipped := make([]byte, len(iv))
	for i, b := range iv {
		flipped[i] = b ^ 0xFF
	}
	return flipped
}

// openGCM decrypts ciphertext with the 16-byte auth tag appended, which is
// the combined layout gcm.Open expects.
func openGCM(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, iv, ciphertext, nil)
}

func sealGCM(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, iv, plaintext, nil), nil
}
