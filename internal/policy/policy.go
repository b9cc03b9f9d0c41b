package policy

// Caller is the authenticated principal as resolved on this request. The
// admin flag always comes from the caller's stored profile.
type Caller struct {
	IdentityID string
	ProfileID  int64
	HasProfile bool
	IsAdmin    bool
}

type Action string

const (
	ActionView           Action = "view"
	ActionEdit           Action = "edit"
	ActionCreate         Action = "create"
	ActionDelete         Action = "delete"
	ActionManageIdentity Action = "manage_identity"
)

type Reason string

const (
	ReasonAdmin   Reason = "admin"
	ReasonOwnData Reason = "own_data"
)

type Decision struct {
	Allowed bool
	Reason  Reason
}

var deny = Decision{}

// Can decides whether caller may perform action on the profile targetID.
// Admins may do anything; other callers may only view or edit their own
// profile.
func Can(caller *Caller, action Action, targetID int64) Decision {
	if caller == nil {
		return deny
	}
	if caller.IsAdmin {
		return Decision{Allowed: true, Reason: ReasonAdmin}
	}
	switch action {
	case ActionView, ActionEdit:
		if caller.HasProfile && caller.ProfileID == targetID {
			return Decision{Allowed: true, Reason: ReasonOwnData}
		}
	}
	return deny
}

func CanEdit(caller *Caller, targetID int64) Decision {
	return Can(caller, ActionEdit, targetID)
}

// RequireAdmin guards the identity-management operations. Owning the
// target profile is not enough for them.
func RequireAdmin(caller *Caller) bool {
	return Can(caller, ActionManageIdentity, 0).Allowed
}

// LinkState is the identity-link state of a profile.
type LinkState string

const (
	Unlinked LinkState = "unlinked"
	Linked   LinkState = "linked"
)

func StateOf(identityID *string) LinkState {
	if identityID == nil || *identityID == "" {
		return Unlinked
	}
	return Linked
}

// CanChangeCredentials reports whether email or password changes are
// possible; they act on the linked identity, so one must exist.
func CanChangeCredentials(state LinkState) bool {
	return state == Linked
}
