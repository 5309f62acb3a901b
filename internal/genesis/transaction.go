package genesis

import (
	"crypto/ed25519"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/zeebo/blake3"

	"BandwidthBazaar/internal/types"
)

// Instruction names carried in Transaction.instruction.
const (
	InstrInitialize   = "initialize"
	InstrRegisterUser = "register_user"
	InstrContribute   = "contribute_bandwidth"
	InstrClaim        = "claim_rewards"
)

// BuildSignedTx creates a signed transaction and returns its bytes and hash.
// The hash is blake3 of the unsigned transaction; the signature covers the hash.
func BuildSignedTx(privKey ed25519.PrivateKey, instruction string, args []byte, nonce uint64) ([]byte, [32]byte) {
	pubKey := privKey.Public().(ed25519.PublicKey)

	unsignedBytes := UnsignedTxBytes(pubKey, instruction, args, nonce)
	hash := blake3.Sum256(unsignedBytes)
	sig := ed25519.Sign(privKey, hash[:])

	builder := flatbuffers.NewBuilder(512)

	hashVec := builder.CreateByteVector(hash[:])
	sigVec := builder.CreateByteVector(sig)
	argsVec := builder.CreateByteVector(args)
	senderVec := builder.CreateByteVector(pubKey)
	instrOff := builder.CreateString(instruction)

	types.TransactionStart(builder)
	types.TransactionAddHash(builder, hashVec)
	types.TransactionAddSender(builder, senderVec)
	types.TransactionAddSignature(builder, sigVec)
	types.TransactionAddInstruction(builder, instrOff)
	types.TransactionAddArgs(builder, argsVec)
	types.TransactionAddNonce(builder, nonce)
	txOff := types.TransactionEnd(builder)

	builder.Finish(txOff)

	return builder.FinishedBytes(), hash
}

// UnsignedTxBytes builds the transaction without hash and signature.
// Signers and verifiers must both hash exactly these bytes.
func UnsignedTxBytes(sender []byte, instruction string, args []byte, nonce uint64) []byte {
	builder := flatbuffers.NewBuilder(256)

	argsVec := builder.CreateByteVector(args)
	senderVec := builder.CreateByteVector(sender)
	instrOff := builder.CreateString(instruction)

	types.TransactionStart(builder)
	types.TransactionAddSender(builder, senderVec)
	types.TransactionAddInstruction(builder, instrOff)
	types.TransactionAddArgs(builder, argsVec)
	types.TransactionAddNonce(builder, nonce)
	txOff := types.TransactionEnd(builder)

	builder.Finish(txOff)

	return builder.FinishedBytes()
}
