package validation

// Identity is an already-resolved caller identity supplied by the directory
// collaborator. The orchestrator never verifies credentials; it only consumes
// the id and the opaque role set.
type Identity struct {
	ID     string
	Name   string
	Groups []string
}

// Role memberships the authorization gate tests for.
const (
	RoleCreators   = "creators"
	RoleValidators = "validators"
	RoleAdmins     = "admins"
)

// Action enumerates the guarded operations of the workflow.
type Action int

const (
	// ActionCreateTask covers task creation (which also dispatches the diff
	// generation job).
	ActionCreateTask Action = iota

	// ActionValidate covers uploading a validated file and triggering
	// integration.
	ActionValidate

	// ActionRead covers all read operations.
	ActionRead
)

// Allowed is the pure authorization predicate: it maps an identity's role set
// and a requested action to an allow/deny decision, with no side effects.
// Reads are open to any authenticated identity.
func Allowed(id Identity, action Action) bool {
	switch action {
	case ActionCreateTask:
		return hasAnyGroup(id.Groups, RoleCreators, RoleAdmins)
	case ActionValidate:
		return hasAnyGroup(id.Groups, RoleValidators, RoleAdmins)
	case ActionRead:
		return id.ID != ""
	default:
		return false
	}
}

func hasAnyGroup(groups []string, wanted ...string) bool {
	for _, g := range groups {
		for _, w := range wanted {
			if g == w {
				return true
			}
		}
	}
	return false
}
