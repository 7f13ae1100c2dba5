// Package sign is the Ethereum wallet signing capability the layer-2 code
// depends on.
//
// A Signer signs 32-byte digests and never exposes its private key. On top of
// it the package builds the three wallet operations a layer-2 client needs:
//
//   - SignMessage: EIP-191 personal_sign, used to derive layer-2 keys
//   - SignTypedData: EIP-712, used to authorize account updates
//   - RecoverAddress: checking a 65-byte signature against a digest
//
// Usage
//
//	signer, err := sign.NewEthereumSigner(privateKeyHex)
//	if err != nil {
//		return err
//	}
//	sig, err := sign.SignMessage(signer, []byte("hello"))
//
// MessageSigner adapts a Signer to the context-aware interface used by key
// derivation. MockSigner is a deterministic test double.
package sign
