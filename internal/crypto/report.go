package crypto

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// reportMessage builds the canonical byte string an oracle signs when
// reporting an outcome. The market ID binds the signature to one market so a
// report cannot be replayed elsewhere.
func reportMessage(marketID, outcome string) []byte {
	return []byte("aegis-report/v1:" + marketID + ":" + outcome)
}

// reportDigest hashes the report message with the Ethereum personal-sign
// prefix, matching what wallet tooling produces for eth_sign/personal_sign.
func reportDigest(marketID, outcome string) []byte {
	msg := reportMessage(marketID, outcome)
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	return ethcrypto.Keccak256([]byte(prefixed))
}

// SignReport signs an outcome report for a market with the given hex-encoded
// private key and returns the 65-byte signature as a 0x-prefixed hex string.
// Used by the report CLI tooling and by tests; production oracles typically
// sign with their own wallet.
func SignReport(privateKeyHex, marketID, outcome string) (string, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("crypto: invalid private key: %w", err)
	}

	sig, err := ethcrypto.Sign(reportDigest(marketID, outcome), pk)
	if err != nil {
		return "", fmt.Errorf("crypto: signing report: %w", err)
	}

	// Shift V to the Ethereum convention (27/28).
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// RecoverReporter recovers the address that signed an outcome report. The
// caller compares the result against the market's oracle field.
func RecoverReporter(marketID, outcome, signatureHex string) (common.Address, error) {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: invalid signature hex: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto: expected 65-byte signature, got %d", len(sig))
	}

	// Accept both raw (0/1) and Ethereum (27/28) recovery IDs.
	recovery := make([]byte, 65)
	copy(recovery, sig)
	if recovery[64] >= 27 {
		recovery[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(reportDigest(marketID, outcome), recovery)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recovering reporter: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
