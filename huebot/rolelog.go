package huebot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	columnUserID         = "user_id"
	columnRoleChangeRole = "role_name"
)

// RoleChangeAction describes what happened to a role assignment.
type RoleChangeAction string

const (
	RoleChangeAdd    RoleChangeAction = "add"
	RoleChangeRemove RoleChangeAction = "remove"
)

// RoleChangeSource identifies where a role change originated.
type RoleChangeSource string

const (
	// RoleChangeSourceCommand is a change made by the bot in response to
	// a /color selection
	RoleChangeSourceCommand RoleChangeSource = "command"

	// RoleChangeSourceGateway is a change observed via the
	// GuildMemberUpdate gateway event, made by someone else
	RoleChangeSourceGateway RoleChangeSource = "gateway"
)

// RoleChange is a DB model recording one role add/remove for a member.
//
//nolint:lll // struct tags can't be split
type RoleChange struct {
	ModelUintID
	ModelUnixTime
	GuildID  string           `json:"guild_id" gorm:"index;not null"`
	UserID   string           `json:"user_id" gorm:"index;not null"`
	Username string           `json:"username" gorm:"type:string"`
	RoleID   string           `json:"role_id" gorm:"type:string"`
	RoleName string           `json:"role_name" gorm:"type:string"`
	Action   RoleChangeAction `json:"action" gorm:"type:string"`
	Source   RoleChangeSource `json:"source" gorm:"type:string"`
}

func (r RoleChange) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("guild_id", r.GuildID),
		slog.String(columnUserID, r.UserID),
		slog.String("username", r.Username),
		slog.String("role_id", r.RoleID),
		slog.String(columnRoleChangeRole, r.RoleName),
		slog.String("action", string(r.Action)),
		slog.String("source", string(r.Source)),
	)
}

func (r RoleChange) String() string {
	switch r.Action {
	case RoleChangeAdd:
		return fmt.Sprintf("%s is now **%s**", r.Username, r.RoleName)
	default:
		return fmt.Sprintf("%s is no longer **%s**", r.Username, r.RoleName)
	}
}

func newRoleChange(
	guildID string,
	user *discordgo.User,
	role *discordgo.Role,
	action RoleChangeAction,
	source RoleChangeSource,
) RoleChange {
	rc := RoleChange{
		GuildID:  guildID,
		RoleID:   role.ID,
		RoleName: role.Name,
		Action:   action,
		Source:   source,
	}
	if user != nil {
		rc.UserID = user.ID
		rc.Username = user.Username
	}
	return rc
}

// recordRoleChange persists the given change, and posts it to the
// changelog channel when one is configured.
func (h *Huebot) recordRoleChange(ctx context.Context, change RoleChange) {
	ctx, logger := h.getLogger(ctx)

	if _, err := h.writeDB.Create(ctx, &change); err != nil {
		logger.ErrorContext(
			ctx,
			"error saving role change",
			tint.Err(err),
			"role_change", change,
		)
	} else {
		logger.InfoContext(ctx, "recorded role change", "role_change", change)
	}

	channelID := h.config.Discord.ChangelogChannelID
	if channelID == "" {
		return
	}
	if err := h.discord.channelMessageSend(
		channelID,
		change.String(),
		discordgo.WithRetryOnRatelimit(false),
		discordgo.WithRestRetries(1),
	); err != nil {
		logger.ErrorContext(
			ctx,
			"error sending role change notification",
			tint.Err(err),
		)
	}
}

// handleGuildMemberUpdate logs palette-role changes made outside the bot
// (via the server settings UI, or another bot). Requires the member state
// cache for the before-update diff; events without it are skipped.
func (h *Huebot) handleGuildMemberUpdate(
	ctx context.Context,
	m *discordgo.GuildMemberUpdate,
) {
	ctx, logger := h.getLogger(ctx)

	if m.BeforeUpdate == nil {
		logger.DebugContext(
			ctx,
			"no before-update state, skipping member update",
			columnUserID, m.User.ID,
		)
		return
	}

	colorRoles := h.paletteRolesByID(m.GuildID)
	if len(colorRoles) == 0 {
		return
	}

	before := make(map[string]bool, len(m.BeforeUpdate.Roles))
	for _, roleID := range m.BeforeUpdate.Roles {
		before[roleID] = true
	}
	after := make(map[string]bool, len(m.Roles))
	for _, roleID := range m.Roles {
		after[roleID] = true
	}

	for roleID, role := range colorRoles {
		var action RoleChangeAction
		switch {
		case after[roleID] && !before[roleID]:
			action = RoleChangeAdd
		case before[roleID] && !after[roleID]:
			action = RoleChangeRemove
		default:
			continue
		}
		h.recordRoleChange(
			ctx,
			newRoleChange(
				m.GuildID,
				m.User,
				role,
				action,
				RoleChangeSourceGateway,
			),
		)
	}
}

// paletteRolesByID returns the guild's current roles whose names appear
// in the palette, keyed by role ID.
func (h *Huebot) paletteRolesByID(guildID string) map[string]*discordgo.Role {
	guildRoles, err := h.discord.session.GuildRoles(guildID)
	if err != nil {
		h.logger.Error("error fetching guild roles", tint.Err(err))
		return nil
	}
	names := paletteNames(h.palette)
	roles := make(map[string]*discordgo.Role)
	for _, role := range guildRoles {
		if names[role.Name] {
			roles[role.ID] = role
		}
	}
	return roles
}
