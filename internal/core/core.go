package core

// Package core contains the account-model data structures for the
// chain — Transaction, Receipt, Block, and the block assembler — along
// with the cryptographic utilities they share.
