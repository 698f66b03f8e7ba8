// Package lifecycle is the contract state machine.
//
// States:
//   - draft -> pending_review -> under_review -> approved_by_parties -> active
//   - approved_by_parties | active -> suspended -> active
//   - active -> completed | terminated | expired
//   - draft | pending_review | under_review | approved_by_parties -> draft (amend_terms)
//
// Apply is pure apart from mutating the working copy it is handed, and only
// does so when the transition is accepted. Authorization is not evaluated
// here; each rule declares the capability the caller must hold and the
// contract service checks it before calling Apply.
package lifecycle
