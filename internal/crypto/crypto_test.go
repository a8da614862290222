package crypto

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptKeyRoundTrip(t *testing.T) {
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(ethcrypto.FromECDSA(pk))

	blob, err := EncryptKey("0x"+keyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)

	_, err = DecryptKey(blob, "wrong-password")
	assert.Error(t, err)
}

func TestEncryptKeyRejectsBadInput(t *testing.T) {
	_, err := EncryptKey("not hex", "pw")
	assert.Error(t, err)

	_, err = EncryptKey("abcd", "pw") // too short
	assert.Error(t, err)

	_, err = EncryptKey(hex.EncodeToString(make([]byte, 32)), "")
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(ethcrypto.FromECDSA(pk))

	t.Run("raw key wins", func(t *testing.T) {
		got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + keyHex})
		require.NoError(t, err)
		assert.Equal(t, keyHex, got)
	})

	t.Run("encrypted file", func(t *testing.T) {
		blob, err := EncryptKey(keyHex, "s3cret")
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "operator.key.json")
		require.NoError(t, os.WriteFile(path, blob, 0o600))

		got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "s3cret"})
		require.NoError(t, err)
		assert.Equal(t, keyHex, got)
	})

	t.Run("no source", func(t *testing.T) {
		_, err := LoadKey(KeyConfig{})
		assert.Error(t, err)
	})
}

func TestSignAndRecoverReport(t *testing.T) {
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)
	pkHex := hex.EncodeToString(ethcrypto.FromECDSA(pk))

	sig, err := SignReport(pkHex, "mkt-1", "yes")
	require.NoError(t, err)

	got, err := RecoverReporter("mkt-1", "yes", sig)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	// A signature over one market must not verify for another.
	other, err := RecoverReporter("mkt-2", "yes", sig)
	require.NoError(t, err)
	assert.NotEqual(t, addr, other)

	// Nor for a different outcome.
	flipped, err := RecoverReporter("mkt-1", "no", sig)
	require.NoError(t, err)
	assert.NotEqual(t, addr, flipped)
}

func TestRecoverReporterRejectsMalformedSignature(t *testing.T) {
	_, err := RecoverReporter("mkt-1", "yes", "not-hex")
	assert.Error(t, err)

	_, err = RecoverReporter("mkt-1", "yes", "0x0102")
	assert.Error(t, err)
}
