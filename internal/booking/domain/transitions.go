package domain

// Evidence names the proof a transition requires beyond the actor's role.
type Evidence string

const (
	EvidenceNone          Evidence = ""
	EvidenceOTPStart      Evidence = "otp_job_start"
	EvidenceOTPCompletion Evidence = "otp_job_completion"
	EvidenceCancelReason  Evidence = "cancel_reason"
)

// Rule describes one legal (from, to) pair: which roles may request it and
// what evidence they must present. Pairs absent from the table are rejected.
type Rule struct {
	Roles    []Role
	Evidence Evidence
}

func (r Rule) Allows(role Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

var transitions = map[Status]map[Status]Rule{
	StatusPending: {
		StatusPendingPayment: {Roles: []Role{RoleCustomer, RoleSystem}},
		StatusCancelled:      {Roles: []Role{RoleCustomer, RoleAdmin}, Evidence: EvidenceCancelReason},
	},
	StatusPendingPayment: {
		// The gateway reconciler confirms on capture; a technician may also
		// confirm directly for pay-on-site bookings.
		StatusConfirmed: {Roles: []Role{RoleTechnician, RoleSystem}},
		StatusCancelled: {Roles: []Role{RoleCustomer, RoleAdmin}, Evidence: EvidenceCancelReason},
	},
	StatusConfirmed: {
		StatusTechnicianEnRoute: {Roles: []Role{RoleTechnician}, Evidence: EvidenceOTPStart},
		StatusDisputed:          {Roles: []Role{RoleCustomer, RoleAdmin}},
		StatusCancelled:         {Roles: []Role{RoleCustomer, RoleTechnician, RoleAdmin, RoleSystem}, Evidence: EvidenceCancelReason},
	},
	StatusTechnicianEnRoute: {
		StatusInProgress: {Roles: []Role{RoleTechnician}},
		StatusDisputed:   {Roles: []Role{RoleCustomer, RoleAdmin}},
		StatusCancelled:  {Roles: []Role{RoleCustomer, RoleAdmin, RoleSystem}, Evidence: EvidenceCancelReason},
	},
	StatusInProgress: {
		StatusAwaitingCustomerConfirm: {Roles: []Role{RoleTechnician}, Evidence: EvidenceOTPCompletion},
		StatusDisputed:                {Roles: []Role{RoleCustomer, RoleAdmin}},
	},
	StatusAwaitingCustomerConfirm: {
		StatusCompleted: {Roles: []Role{RoleCustomer, RoleAdmin}},
		StatusDisputed:  {Roles: []Role{RoleCustomer, RoleAdmin}},
	},
	StatusDisputed: {
		StatusCompleted: {Roles: []Role{RoleAdmin}},
		StatusCancelled: {Roles: []Role{RoleAdmin}, Evidence: EvidenceCancelReason},
	},
}

// RuleFor looks up the transition table. The second result is false when the
// (from, to) pair is not a legal transition.
func RuleFor(from, to Status) (Rule, bool) {
	byTarget, ok := transitions[from]
	if !ok {
		return Rule{}, false
	}
	rule, ok := byTarget[to]
	return rule, ok
}
