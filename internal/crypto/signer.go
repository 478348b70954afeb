package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// outcomeTypeHash is the pre-computed keccak256 of the canonical type string
// for an oracle outcome attestation.
var outcomeTypeHash = ethcrypto.Keccak256(
	[]byte("OracleOutcome(string marketId,string outcome,uint256 confidence,uint256 timestamp)"),
)

// OutcomeSigner signs outcome attestations submitted to the resolver relay.
// The relay recovers the oracle address from the signature before
// constructing the on-chain transaction.
type OutcomeSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
}

// NewOutcomeSigner creates an OutcomeSigner from a hex-encoded secp256k1
// private key (with or without a 0x prefix).
func NewOutcomeSigner(privateKeyHex string, chainID int) (*OutcomeSigner, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")

	key, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse private key: %w", err)
	}

	return &OutcomeSigner{
		privateKey: key,
		address:    ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:    chainID,
	}, nil
}

// Address returns the oracle's signing address.
func (s *OutcomeSigner) Address() common.Address {
	return s.address
}

// SignOutcome hashes the attestation fields and signs the digest. Confidence
// is expressed 0-100 and truncated to an integer for hashing; timestamp is
// Unix seconds. The returned signature is hex-encoded with a 0x prefix.
func (s *OutcomeSigner) SignOutcome(marketID, outcome string, confidence float64, unixTS int64) (string, error) {
	digest := s.outcomeDigest(marketID, outcome, confidence, unixTS)

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: sign outcome %s: %w", marketID, err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// outcomeDigest computes keccak256 over the type hash, chain id, and the
// attestation fields. Strings are hashed first so field lengths cannot
// collide.
func (s *OutcomeSigner) outcomeDigest(marketID, outcome string, confidence float64, unixTS int64) []byte {
	conf := new(big.Int).SetInt64(int64(confidence))
	ts := new(big.Int).SetInt64(unixTS)
	chain := new(big.Int).SetInt64(int64(s.chainID))

	return ethcrypto.Keccak256(
		outcomeTypeHash,
		common.LeftPadBytes(chain.Bytes(), 32),
		ethcrypto.Keccak256([]byte(marketID)),
		ethcrypto.Keccak256([]byte(outcome)),
		common.LeftPadBytes(conf.Bytes(), 32),
		common.LeftPadBytes(ts.Bytes(), 32),
	)
}
