package state

import (
	"fmt"
	"time"
)

// Code is the machine readable reason sent to clients in an error event.
type Code string

const (
	CodeAuthRequired Code = "AUTH_REQUIRED"

	CodeInvalidPayload         Code = "INVALID_PAYLOAD"
	CodeEmptyMessage           Code = "EMPTY_MESSAGE"
	CodeInvalidPlayerState     Code = "INVALID_PLAYER_STATE"
	CodeInvalidInviteTarget    Code = "INVALID_INVITE_TARGET"
	CodeInvalidInviteID        Code = "INVALID_INVITE_ID"
	CodeInvalidKickTarget      Code = "INVALID_KICK_TARGET"
	CodeInvalidPromotionTarget Code = "INVALID_PROMOTION_TARGET"
	CodeInvalidSignalPayload   Code = "INVALID_SIGNAL_PAYLOAD"

	CodeNotPartyManagerOrLeader Code = "NOT_PARTY_MANAGER_OR_LEADER"
	CodeNotPartyLeader          Code = "NOT_PARTY_LEADER"
	CodeCannotKickLeader        Code = "CANNOT_KICK_LEADER"
	CodePartyMediaRestricted    Code = "PARTY_MEDIA_RESTRICTED"
	CodeInviteSelfNotAllowed    Code = "INVITE_SELF_NOT_ALLOWED"

	CodeTargetAlreadyInParty Code = "TARGET_ALREADY_IN_PARTY"
	CodeTargetAlreadyManager Code = "TARGET_ALREADY_MANAGER"
	CodeNotInParty           Code = "NOT_IN_PARTY"
	CodeTargetNotInParty     Code = "TARGET_NOT_IN_PARTY"
	CodePartyNotFound        Code = "PARTY_NOT_FOUND"

	CodeTargetOffline        Code = "TARGET_OFFLINE"
	CodeTargetNotFound       Code = "TARGET_NOT_FOUND"
	CodeSignalTargetNotFound Code = "SIGNAL_TARGET_NOT_FOUND"
	CodeInviteCooldown       Code = "INVITE_COOLDOWN"
	CodeInviteExpired        Code = "INVITE_EXPIRED"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Rejection is an expected, client-facing failure of an operation. Coordinators return
// it as an error; the dispatch loop turns it into an error event.
type Rejection struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
}

func Reject(code Code, message string) *Rejection {
	return &Rejection{Code: code, Message: message}
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return string(r.Code)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Is matches rejections by code so callers can use errors.Is(err, state.Reject(code, "")).
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Code == r.Code
}
