// Package contracts holds the ABI of the on-chain funding contract. The
// bytecode is deployed and verified by external tooling; this service only
// needs the call surface.
package contracts

// FundingABI covers the entry points the settlement core uses: the owner-only
// balance sweep, the deposit entry point and the read-only views the contract
// exposes for its own accounting.
const FundingABI = `[
  {"type":"function","name":"fund","stateMutability":"payable","inputs":[],"outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"getBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getLatestPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"int256"}]}
]`
