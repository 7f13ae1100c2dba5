// Package loopring implements the layer2 provider and wallet backend for the
// Loopring exchange.
//
// The REST Client covers account lookup, key registration, token listing and
// off-chain transfers and withdrawals. Deposits are layer-1 calls on the
// exchange contract made through go-ethereum. Requests that need the account's
// layer-2 key are signed with Baby Jubjub EdDSA; key registration is
// authorized with an EIP-712 signature from the Ethereum wallet.
//
//	provider, _ := loopring.NewProvider(layer2.NetworkGoerli)
//	wallet, _ := provider.Wallet(ctx, signer)
//	result, err := layer2.NewExecutor(wallet).Execute(ctx, op)
package loopring
