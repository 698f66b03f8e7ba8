package domain

// Capability names a permission checked before a transition is applied.
type Capability string

const (
	CapSubmit    Capability = "contract.submit"
	CapReview    Capability = "contract.review"
	CapApprove   Capability = "contract.approve"
	CapSuspend   Capability = "contract.suspend"
	CapResume    Capability = "contract.resume"
	CapTerminate Capability = "contract.terminate"
	CapExpire    Capability = "contract.expire"
	CapComplete  Capability = "contract.complete"
	CapAmend     Capability = "contract.amend"
	CapCreate    Capability = "contract.create"
)

// Capabilities lists every known capability.
func Capabilities() []Capability {
	return []Capability{
		CapCreate,
		CapSubmit,
		CapReview,
		CapApprove,
		CapSuspend,
		CapResume,
		CapTerminate,
		CapExpire,
		CapComplete,
		CapAmend,
	}
}

func (c Capability) Valid() bool {
	for _, candidate := range Capabilities() {
		if c == candidate {
			return true
		}
	}
	return false
}
