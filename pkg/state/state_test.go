package state_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/RadEZorack/augmego-core/pkg/transport/transporttest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRoleCapabilities(t *testing.T) {
	tests := []struct {
		name    string
		m       *state.Membership
		invite  bool
		kick    bool
		promote bool
		effRole state.Role
	}{
		{"leader", &state.Membership{UserID: "a", LeaderID: "a", Role: state.RoleMember}, true, true, true, state.RoleLeader},
		{"manager", &state.Membership{UserID: "b", LeaderID: "a", Role: state.RoleManager}, true, true, false, state.RoleManager},
		{"member", &state.Membership{UserID: "c", LeaderID: "a", Role: state.RoleMember}, false, false, false, state.RoleMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := tt.m.Capabilities()
			assert.True(t, caps.Has(state.PermPartyChat))
			assert.Equal(t, tt.invite, caps.Has(state.PermInvite))
			assert.Equal(t, tt.invite, tt.m.CanManage())
			assert.Equal(t, tt.kick, caps.Has(state.PermKick))
			assert.Equal(t, tt.promote, caps.Has(state.PermPromote))
			assert.Equal(t, tt.effRole, tt.m.EffectiveRole())
		})
	}

	var none *state.Membership
	assert.Equal(t, state.Permission(0), none.Capabilities())
	assert.False(t, none.IsLeader())
}

func TestRoleValid(t *testing.T) {
	assert.True(t, state.RoleMember.Valid())
	assert.True(t, state.RoleManager.Valid())
	assert.False(t, state.RoleLeader.Valid())
	assert.False(t, state.Role("OWNER").Valid())
}

func TestRejectionMatchesByCode(t *testing.T) {
	rej := state.Reject(state.CodeInviteCooldown, "wait")
	wrapped := errors.Wrap(rej, "invite")

	assert.True(t, errors.Is(wrapped, state.Reject(state.CodeInviteCooldown, "")))
	assert.False(t, errors.Is(wrapped, state.Reject(state.CodeInviteExpired, "")))

	var got *state.Rejection
	assert.True(t, errors.As(fmt.Errorf("dispatch: %w", rej), &got))
	assert.Equal(t, "INVITE_COOLDOWN: wait", got.Error())
	assert.Equal(t, "NOT_IN_PARTY", state.Reject(state.CodeNotInParty, "").Error())
}

func TestInviteExpired(t *testing.T) {
	now := time.Now()
	inv := &state.Invite{CreatedAt: now, ExpiresAt: now.Add(time.Second)}
	assert.False(t, inv.Expired(now))
	assert.True(t, inv.Expired(now.Add(time.Second)))
}

func TestConnectionPartyCache(t *testing.T) {
	rec := transporttest.NewRecorder()
	conn := state.NewConnection(rec, "127.0.0.1", nil, "")
	assert.Equal(t, rec.ID(), conn.ID)
	assert.False(t, conn.Authenticated())
	assert.Empty(t, conn.UserID())

	assert.True(t, conn.SetPartyID("p1"))
	assert.False(t, conn.SetPartyID("p1"))
	assert.Equal(t, "p1", conn.PartyID())
	assert.True(t, conn.SetPartyID(""))
}
