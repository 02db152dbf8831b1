package huebot

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleChangeString(t *testing.T) {
	t.Parallel()

	added := RoleChange{
		Username: "somebody",
		RoleName: "Crimson",
		Action:   RoleChangeAdd,
	}
	assert.Equal(t, "somebody is now **Crimson**", added.String())

	removed := RoleChange{
		Username: "somebody",
		RoleName: "Crimson",
		Action:   RoleChangeRemove,
	}
	assert.Equal(t, "somebody is no longer **Crimson**", removed.String())
}

func TestRecordRoleChangeChangelogChannel(t *testing.T) {
	t.Parallel()

	tasks := testTasks(2)
	session := newMockSessionHandler(paletteRoles(tasks)...)
	h, db := newTestBot(t, session, tasks)
	h.config.Discord.ChangelogChannelID = "channel-1"

	user := &discordgo.User{ID: "user-1", Username: "somebody"}
	role := &discordgo.Role{ID: "role-0", Name: tasks[0].Name}
	h.recordRoleChange(
		context.Background(),
		newRoleChange("guild-1", user, role, RoleChangeAdd, RoleChangeSourceCommand),
	)

	require.Len(t, db.roleChanges(), 1)
	require.Len(t, session.sentMessages, 1)
	assert.Contains(t, session.sentMessages[0], tasks[0].Name)
}

func TestHandleGuildMemberUpdate(t *testing.T) {
	t.Parallel()

	tasks := testTasks(3)
	roles := paletteRoles(tasks)
	session := newMockSessionHandler(roles...)
	h, db := newTestBot(t, session, tasks)

	user := &discordgo.User{ID: "user-1", Username: "somebody"}
	update := &discordgo.GuildMemberUpdate{
		Member: &discordgo.Member{
			GuildID: "guild-1",
			User:    user,
			// picked up roles[1], dropped roles[0], kept an unrelated role
			Roles: []string{"unrelated", roles[1].ID},
		},
		BeforeUpdate: &discordgo.Member{
			GuildID: "guild-1",
			User:    user,
			Roles:   []string{"unrelated", roles[0].ID},
		},
	}

	h.handleGuildMemberUpdate(context.Background(), update)

	changes := db.roleChanges()
	require.Len(t, changes, 2)

	byAction := map[RoleChangeAction]RoleChange{}
	for _, change := range changes {
		assert.Equal(t, RoleChangeSourceGateway, change.Source)
		byAction[change.Action] = change
	}
	assert.Equal(t, roles[1].Name, byAction[RoleChangeAdd].RoleName)
	assert.Equal(t, roles[0].Name, byAction[RoleChangeRemove].RoleName)
}

func TestHandleGuildMemberUpdateNoBeforeState(t *testing.T) {
	t.Parallel()

	tasks := testTasks(3)
	session := newMockSessionHandler(paletteRoles(tasks)...)
	h, db := newTestBot(t, session, tasks)

	update := &discordgo.GuildMemberUpdate{
		Member: &discordgo.Member{
			GuildID: "guild-1",
			User:    &discordgo.User{ID: "user-1"},
			Roles:   []string{"role-0"},
		},
	}
	h.handleGuildMemberUpdate(context.Background(), update)
	assert.Empty(t, db.roleChanges())
}
