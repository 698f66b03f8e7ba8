// Package contracts is the contract repository: it owns every mutation of a
// contract record.
//
// Mutations run through WithContract, which serializes callers per contract
// id, applies the operation to a private copy, and commits the new record
// together with exactly one audit event. Distinct contracts proceed in
// parallel.
//
// Auditing:
//   - Successful transitions emit exactly one audit event, sequenced per contract.
//   - Rejected transitions leave the contract and its audit trail unchanged.
//   - Capability checks are recorded under details["authorization"].
package contracts
