// Package license implements the node-locked offline licensing core:
// signed token encoding, runtime verification against the machine
// fingerprint, scattered integrity guards, and the operator-side issuer
// with its audit history.
//
// The trust model is deliberately modest. The private key never ships;
// tokens are ed25519-signed and bound to a hardware fingerprint; and
// verification is repeated from many call sites via Guard so no single
// patch disables it. None of that stops a determined attacker with a
// binary patcher - the goal is to make casual copying not worth the
// effort.
package license
