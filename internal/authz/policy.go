// Package authz centralizes every authorization decision of the messaging
// core in one policy keyed by the closed Role enum, so the rules are testable
// without HTTP or a database.
package authz

import (
	"time"

	"sophia/internal/models"

	"github.com/google/uuid"
)

// EditWindow is how long a sender may edit their own message. Channel admins
// are not bound by it.
const EditWindow = 15 * time.Minute

// Actor is the resolved identity of a caller: global role plus tenant facts
// from the directory. It carries everything a decision needs so the policy
// itself stays free of I/O.
type Actor struct {
	UserID              uuid.UUID
	Role                models.Role
	SchoolIDs           []uuid.UUID
	CoordinatedClassIDs []uuid.UUID
}

// MemberOfSchool reports whether the actor belongs to the given school.
func (a Actor) MemberOfSchool(schoolID uuid.UUID) bool {
	for _, id := range a.SchoolIDs {
		if id == schoolID {
			return true
		}
	}
	return false
}

// CoordinatesClass reports whether the actor coordinates the given class.
func (a Actor) CoordinatesClass(classID uuid.UUID) bool {
	for _, id := range a.CoordinatedClassIDs {
		if id == classID {
			return true
		}
	}
	return false
}

// Policy holds the decision tables for channel and message operations.
type Policy struct{}

// NewPolicy returns the authorization policy.
func NewPolicy() *Policy { return &Policy{} }

// CanViewChannel implements the visibility table:
//
//	superuser          -> any channel
//	manager            -> channels in their schools
//	coordinator        -> coordination-visible channels of coordinated
//	                      classes, or channels they actively participate in
//	teacher/guardian/
//	student            -> only channels with an active participant row
//
// The channel must have Participants preloaded.
func (p *Policy) CanViewChannel(actor Actor, ch *models.Channel) bool {
	switch actor.Role {
	case models.RoleSuperuser:
		return true
	case models.RoleManager:
		return actor.MemberOfSchool(ch.SchoolID)
	case models.RoleCoordinator:
		if ch.VisibleToCoordination && ch.ClassID != nil && actor.CoordinatesClass(*ch.ClassID) {
			return true
		}
		return ch.ActiveParticipant(actor.UserID) != nil
	default:
		return ch.ActiveParticipant(actor.UserID) != nil
	}
}

// CanSendMessage gates message creation. A blocked channel rejects everyone,
// admins included.
func (p *Policy) CanSendMessage(actor Actor, ch *models.Channel) bool {
	if ch.Status == models.ChannelBlocked {
		return false
	}
	if ch.IsAdmin(actor.UserID) {
		return true
	}
	switch actor.Role {
	case models.RoleSuperuser, models.RoleManager, models.RoleCoordinator:
		if p.CanViewChannel(actor, ch) {
			return true
		}
	}
	part := ch.ActiveParticipant(actor.UserID)
	return part != nil && part.CanSend
}

// CanManageParticipants gates adding/removing participants: channel admins
// and the coordinator-and-above roles.
func (p *Policy) CanManageParticipants(actor Actor, ch *models.Channel) bool {
	if ch.IsAdmin(actor.UserID) {
		return true
	}
	switch actor.Role {
	case models.RoleSuperuser, models.RoleManager, models.RoleCoordinator:
		return true
	}
	return false
}

// CanEditMessage allows the sender within the edit window, or a channel
// admin at any time.
func (p *Policy) CanEditMessage(actor Actor, ch *models.Channel, msg *models.Message, now time.Time) bool {
	if ch.IsAdmin(actor.UserID) {
		return true
	}
	if msg.SenderID == nil || *msg.SenderID != actor.UserID {
		return false
	}
	return now.Sub(msg.SentAt) < EditWindow
}

// CanDeleteMessage allows the sender, superusers and managers, coordinators
// who can view the channel, and channel admins. Deletion is always soft.
func (p *Policy) CanDeleteMessage(actor Actor, ch *models.Channel, msg *models.Message) bool {
	if msg.SenderID != nil && *msg.SenderID == actor.UserID {
		return true
	}
	switch actor.Role {
	case models.RoleSuperuser, models.RoleManager:
		return true
	case models.RoleCoordinator:
		if p.CanViewChannel(actor, ch) {
			return true
		}
	}
	return ch.IsAdmin(actor.UserID)
}

// CanEscalate gates conversation-ownership takeover.
func (p *Policy) CanEscalate(actor Actor) bool {
	switch actor.Role {
	case models.RoleSuperuser, models.RoleManager, models.RoleCoordinator:
		return true
	}
	return false
}

// CanQueryAudit restricts the audit trail to superusers and managers.
func (p *Policy) CanQueryAudit(actor Actor) bool {
	return actor.Role == models.RoleSuperuser || actor.Role == models.RoleManager
}

// ChannelScope describes which channels a role may list; the repository
// translates it into a query.
type ChannelScope struct {
	// All grants every channel (superuser).
	All bool
	// SchoolIDs grants every channel in the given schools (manager).
	SchoolIDs []uuid.UUID
	// CoordinatedClassIDs grants coordination-visible channels of those
	// classes, in addition to participant channels (coordinator).
	CoordinatedClassIDs []uuid.UUID
	// Participant grants channels holding an active participant row for the
	// actor. Set for every non-manager role.
	Participant bool
}

// VisibleChannelScope returns the listing scope for the actor per the
// visibility table.
func (p *Policy) VisibleChannelScope(actor Actor) ChannelScope {
	switch actor.Role {
	case models.RoleSuperuser:
		return ChannelScope{All: true}
	case models.RoleManager:
		return ChannelScope{SchoolIDs: actor.SchoolIDs}
	case models.RoleCoordinator:
		return ChannelScope{CoordinatedClassIDs: actor.CoordinatedClassIDs, Participant: true}
	default:
		return ChannelScope{Participant: true}
	}
}
