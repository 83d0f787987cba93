package chain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// NewKeypair генерирует новый ключ.
func NewKeypair() (solana.PrivateKey, error) {
	return solana.NewRandomPrivateKey()
}

// ParsePrivateKey разбирает base58 приватный ключ.
func ParsePrivateKey(s string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// ParsePublicKey разбирает base58 адрес.
func ParsePublicKey(s string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("parse public key %q: %w", s, err)
	}
	return key, nil
}

// TransferTx собирает неподписанный перевод SOL.
func TransferTx(from, to solana.PublicKey, lamports uint64, blockhash solana.Hash) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, from, to).Build(),
		},
		blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return nil, fmt.Errorf("build transfer: %w", err)
	}
	return tx, nil
}

// DecodeTransaction разбирает base64 транзакцию, полученную от роутера.
func DecodeTransaction(b64 string) (*solana.Transaction, error) {
	tx, err := solana.TransactionFromBase64(b64)
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// Sign переподписывает tx на blockhash указанными ключами.
// Предыдущие подписи сбрасываются.
func Sign(tx *solana.Transaction, blockhash solana.Hash, signers ...solana.PrivateKey) (solana.Signature, error) {
	tx.Message.RecentBlockhash = blockhash
	tx.Signatures = nil

	keys := make(map[solana.PublicKey]*solana.PrivateKey, len(signers))
	for i := range signers {
		keys[signers[i].PublicKey()] = &signers[i]
	}

	sigs, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		return keys[pub]
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}
	if len(sigs) == 0 {
		return solana.Signature{}, fmt.Errorf("sign transaction: no signatures")
	}
	return sigs[0], nil
}
