package state

// a bitmap representing a set of party capabilities
type Permission uint64

const (
	PermPartyChat Permission = 1 << iota
	PermInvite               // 2
	PermKick                 // 4
	PermPromote              // 8
)

func (p Permission) Has(flag Permission) bool {
	return p&flag == flag
}

// RoleCapabilities derives what a member may do. Leaders can promote, managers can
// invite and kick, everyone can chat.
func RoleCapabilities(role Role, isLeader bool) Permission {
	switch {
	case isLeader:
		return PermPartyChat | PermInvite | PermKick | PermPromote
	case role == RoleManager:
		return PermPartyChat | PermInvite | PermKick
	default:
		return PermPartyChat
	}
}
