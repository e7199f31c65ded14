package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

func TestCanAccessConversationIsMembership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, eve := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "eve")
	conv := e.conversation(t, alice, bob)

	ops := []service.Operation{service.OpRead, service.OpCreate, service.OpUpdate, service.OpDelete}
	for _, op := range ops {
		for _, tc := range []struct {
			principal *domain.User
			want      bool
		}{
			{alice, true},
			{bob, true},
			{eve, false},
			{nil, false},
		} {
			got, err := e.access.CanAccess(ctx, tc.principal, op, service.ConversationTarget{Conversation: conv})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got, "op=%s principal=%v", op, tc.principal)
		}
	}
}

func TestCanAccessNewMessage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, eve := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "eve")
	conv := e.conversation(t, alice, bob)

	ok, err := e.access.CanAccess(ctx, alice, service.OpCreate, service.NewMessageTarget{ConversationID: &conv.ID})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.access.CanAccess(ctx, eve, service.OpCreate, service.NewMessageTarget{ConversationID: &conv.ID})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.access.CanAccess(ctx, alice, service.OpCreate, service.NewMessageTarget{})
	require.NoError(t, err)
	assert.False(t, ok, "missing conversation id fails closed")

	ok, err = e.access.CanAccess(ctx, alice, service.OpCreate, service.NewMessageTarget{ConversationID: ptr(uuid.New())})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanAccessMessage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, carol := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "carol")
	conv := e.conversation(t, alice, bob, carol)

	inConv := e.post(t, alice, conv, "hello", nil)
	dm := e.direct(t, alice, bob, "psst")

	cases := []struct {
		name      string
		principal *domain.User
		msg       *domain.Message
		want      bool
	}{
		{"conversation member who is not the sender", carol, inConv, true},
		{"direct sender", alice, dm, true},
		{"direct receiver", bob, dm, true},
		{"third party on direct message", carol, dm, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, op := range []service.Operation{service.OpRead, service.OpDelete} {
				got, err := e.access.CanAccess(ctx, tc.principal, op, service.MessageTarget{Message: tc.msg})
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
			}
		})
	}

	// Membership is evaluated against the current participant set.
	_, err := e.convs.UpdateParticipants(ctx, alice, conv.ID, []uuid.UUID{alice.ID, bob.ID})
	require.NoError(t, err)
	ok, err := e.access.CanAccess(ctx, carol, service.OpRead, service.MessageTarget{Message: inConv})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeMapsDenials(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, eve := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "eve")
	conv := e.conversation(t, alice, bob)
	target := service.ConversationTarget{Conversation: conv}

	assert.NoError(t, e.access.Authorize(ctx, alice, service.OpRead, target))
	assert.ErrorIs(t, e.access.Authorize(ctx, eve, service.OpRead, target), domain.ErrForbidden)
	assert.ErrorIs(t, e.access.Authorize(ctx, nil, service.OpRead, target), domain.ErrUnauthorized)

	expected := `
# HELP chatcore_access_decisions_total Access control decisions by operation and outcome
# TYPE chatcore_access_decisions_total counter
chatcore_access_decisions_total{decision="allow",operation="read"} 1
chatcore_access_decisions_total{decision="deny",operation="read"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(e.reg, strings.NewReader(expected), "chatcore_access_decisions_total"))
}
