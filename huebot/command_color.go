package huebot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// colorSelectMenus builds the dropdown component rows for the given
// color roles. Discord allows at most 25 options per select menu, one
// menu per action row and 5 action rows per message, so large palettes
// are split across rows and anything past the fifth row is dropped.
// The first menu carries the "clear" option.
func colorSelectMenus(roles []*discordgo.Role) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent

	clearOption := discordgo.SelectMenuOption{
		Label:       "None",
		Value:       colorSelectClearValue,
		Description: "Remove your current color",
		Emoji:       &discordgo.ComponentEmoji{Name: "🚫"},
	}

	chunkSize := discordMaxSelectOptions - 1
	if maxRoles := discordMaxActionRows * chunkSize; len(roles) > maxRoles {
		roles = roles[:maxRoles]
	}
	for menuIndex, chunk := range chunkItems(chunkSize, roles...) {
		options := make([]discordgo.SelectMenuOption, 0, len(chunk)+1)
		if menuIndex == 0 {
			options = append(options, clearOption)
		}
		for _, role := range chunk {
			options = append(
				options, discordgo.SelectMenuOption{
					Label:       role.Name,
					Value:       role.ID,
					Description: fmt.Sprintf("#%06X", role.Color),
				},
			)
		}
		placeholder := "Pick a color"
		if menuIndex > 0 {
			placeholder = "More colors"
		}
		rows = append(
			rows, discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.SelectMenu{
						MenuType:    discordgo.StringSelectMenu,
						CustomID:    fmt.Sprintf("%s:%d", colorSelectCustomID, menuIndex),
						Placeholder: placeholder,
						Options:     options,
					},
				},
			},
		)
	}
	return rows
}

// isColorSelect reports whether the component custom ID belongs to one
// of the color dropdown menus.
func isColorSelect(customID string) bool {
	return customID == colorSelectCustomID ||
		strings.HasPrefix(customID, colorSelectCustomID+":")
}

// handleColorCommand responds to /color with an ephemeral message
// containing the color dropdown, built from the palette roles that
// currently exist in the guild.
func (h *Huebot) handleColorCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	ctx, logger := h.getLogger(ctx)

	if i.GuildID == "" {
		h.respondEphemeral(ctx, i, "This command only works in a server.")
		return
	}

	colorRoles := h.paletteRolesInOrder(i.GuildID)
	if len(colorRoles) == 0 {
		h.respondEphemeral(
			ctx,
			i,
			fmt.Sprintf(
				"No color roles exist here yet - ask an admin to run `/%s`.",
				DiscordSlashCommandProvision,
			),
		)
		return
	}

	err := h.discord.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    "Pick your color:",
				Flags:      discordgo.MessageFlagsEphemeral,
				Components: colorSelectMenus(colorRoles),
			},
		},
	)
	if err != nil {
		logger.ErrorContext(ctx, "error sending color menu", tint.Err(err))
	}
}

// handleColorSelect applies a dropdown selection: the chosen palette role
// is added, and any other palette roles the member holds are removed.
// Selecting the clear option removes all palette roles.
func (h *Huebot) handleColorSelect(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	ctx, logger := h.getLogger(ctx)

	data := i.MessageComponentData()
	if len(data.Values) == 0 {
		logger.WarnContext(ctx, "color selection with no values")
		return
	}
	selected := data.Values[0]

	user := getDiscordUser(i)
	if user == nil || i.Member == nil {
		logger.WarnContext(ctx, "couldn't find member for color selection")
		return
	}
	logger = logger.With(slog.Group("user", discordUserLogAttrs(*user)...))
	ctx = WithLogger(ctx, logger)

	colorRoles := h.paletteRolesByID(i.GuildID)
	if selected != colorSelectClearValue && colorRoles[selected] == nil {
		logger.WarnContext(
			ctx,
			"selected role is not a palette role",
			"selected", selected,
		)
		h.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}

	var failed bool

	// drop any other color roles first, so the member never holds two
	for _, roleID := range i.Member.Roles {
		role, isColor := colorRoles[roleID]
		if !isColor || roleID == selected {
			continue
		}
		if err := h.discord.session.GuildMemberRoleRemove(
			i.GuildID, user.ID, roleID,
		); err != nil {
			failed = true
			logger.ErrorContext(
				ctx,
				"error removing role",
				"role_id", roleID,
				tint.Err(err),
			)
			continue
		}
		h.recordRoleChange(
			ctx,
			newRoleChange(
				i.GuildID, user, role, RoleChangeRemove, RoleChangeSourceCommand,
			),
		)
	}

	if selected == colorSelectClearValue {
		if failed {
			h.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
			return
		}
		h.respondEphemeral(ctx, i, "Your color has been cleared.")
		return
	}

	role := colorRoles[selected]
	if !memberHasRole(i.Member, selected) {
		if err := h.discord.session.GuildMemberRoleAdd(
			i.GuildID, user.ID, selected,
		); err != nil {
			logger.ErrorContext(
				ctx,
				"error adding role",
				"role_id", selected,
				tint.Err(err),
			)
			h.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
			return
		}
		h.recordRoleChange(
			ctx,
			newRoleChange(
				i.GuildID, user, role, RoleChangeAdd, RoleChangeSourceCommand,
			),
		)
	}

	h.respondEphemeral(
		ctx,
		i,
		fmt.Sprintf("You're now **%s**!", role.Name),
	)
}

func memberHasRole(m *discordgo.Member, roleID string) bool {
	for _, id := range m.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

// paletteRolesInOrder returns the guild's current palette roles, in
// palette-file order.
func (h *Huebot) paletteRolesInOrder(guildID string) []*discordgo.Role {
	guildRoles, err := h.discord.session.GuildRoles(guildID)
	if err != nil {
		h.logger.Error("error fetching guild roles", tint.Err(err))
		return nil
	}
	byName := make(map[string]*discordgo.Role, len(guildRoles))
	for _, role := range guildRoles {
		byName[role.Name] = role
	}

	var ordered []*discordgo.Role
	for _, task := range h.palette {
		if role, found := byName[task.Name]; found {
			ordered = append(ordered, role)
		}
	}
	return ordered
}

// respondEphemeral sends a simple ephemeral text response to the given
// interaction.
func (h *Huebot) respondEphemeral(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	content string,
) {
	_, logger := h.getLogger(ctx)
	err := h.discord.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: truncate(content, discordMaxMessageLength),
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		},
	)
	if err != nil {
		logger.ErrorContext(ctx, "error sending interaction response", tint.Err(err))
	}
}
