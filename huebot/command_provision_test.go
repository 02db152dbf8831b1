package huebot

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleProvisionCommand(t *testing.T) {
	t.Parallel()

	tasks := testTasks(6)
	session := newMockSessionHandler(
		&discordgo.Role{ID: "pre-existing", Name: tasks[0].Name},
	)
	h, _ := newTestBot(t, session, tasks)
	h.config.Provision.CreateInterval = 0

	i := commandInteraction("guild-1", DiscordSlashCommandProvision)
	i.Member.Permissions = discordgo.PermissionManageRoles

	h.handleProvisionCommand(context.Background(), i)

	// deferred ack, then an edit with the summary
	resp := session.lastResponse()
	require.NotNil(t, resp)
	assert.Equal(
		t,
		discordgo.InteractionResponseDeferredChannelMessageWithSource,
		resp.Type,
	)

	require.Len(t, session.edits, 1)
	require.NotNil(t, session.edits[0].Content)
	assert.Equal(
		t,
		"6 color roles available (5 created, 1 already existed, 0 failed)",
		*session.edits[0].Content,
	)

	// all palette roles now exist in the guild
	roles, err := session.GuildRoles("guild-1")
	require.NoError(t, err)
	assert.Len(t, roles, 6)

	lastRun := h.LastProvision()
	require.NotNil(t, lastRun)
	assert.Equal(t, int64(5), lastRun.Created)
}

func TestHandleProvisionCommandDenied(t *testing.T) {
	t.Parallel()

	session := newMockSessionHandler()
	h, _ := newTestBot(t, session, testTasks(3))

	i := commandInteraction("guild-1", DiscordSlashCommandProvision)
	i.Member.Permissions = discordgo.PermissionSendMessages

	h.handleProvisionCommand(context.Background(), i)

	resp := session.lastResponse()
	require.NotNil(t, resp)
	assert.Equal(t, provisionDeniedMessage, resp.Data.Content)
	assert.Empty(t, session.edits)

	roles, err := session.GuildRoles("guild-1")
	require.NoError(t, err)
	assert.Empty(t, roles, "no roles should be created")
}

func TestHandleProvisionCommandOutsideGuild(t *testing.T) {
	t.Parallel()

	session := newMockSessionHandler()
	h, _ := newTestBot(t, session, testTasks(3))

	i := commandInteraction("", DiscordSlashCommandProvision)
	i.User = i.Member.User
	i.Member = nil

	h.handleProvisionCommand(context.Background(), i)

	resp := session.lastResponse()
	require.NotNil(t, resp)
	assert.Contains(t, resp.Data.Content, "only works in a server")
}
