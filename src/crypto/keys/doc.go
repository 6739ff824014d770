// Package keys implements the public key cryptography used to identify
// committee authorities and to sign the blocks they produce.
//
// Authorities own an ECDSA key-pair on the secp256k1 curve. The public key is
// published in the committee file so that any participant can check that a
// block was produced by the authority it claims.
package keys
