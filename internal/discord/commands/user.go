package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/olclarke/hermes/internal/discord"
	"github.com/olclarke/hermes/internal/store"
)

// UserCommands handles management of the users quotes can be attributed to.
type UserCommands struct {
	repo store.Repository
}

// NewUserCommands creates a UserCommands handler.
func NewUserCommands(repo store.Repository) *UserCommands {
	return &UserCommands{repo: repo}
}

// Register registers the user command tree with the router.
func (uc *UserCommands) Register(router *discord.CommandRouter) {
	nameOption := &discordgo.ApplicationCommandOption{
		Name:        "name",
		Description: "Name of the user",
		Type:        discordgo.ApplicationCommandOptionString,
		Required:    true,
	}

	router.RegisterCommand("user", &discordgo.ApplicationCommand{
		Name:        "user",
		Description: "Manage the users quotes can be attributed to",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "add",
				Description: "Register a new user",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     []*discordgo.ApplicationCommandOption{nameOption},
			},
			{
				Name:        "remove",
				Description: "Remove a user, keeping their quotes",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     []*discordgo.ApplicationCommandOption{nameOption},
			},
			{
				Name:        "list",
				Description: "List registered users",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
		},
	}, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand, e.g. `/user list`.")
	})
	router.RegisterHandler("user/add", uc.handleAdd)
	router.RegisterHandler("user/remove", uc.handleRemove)
	router.RegisterHandler("user/list", uc.handleList)
}

func (uc *UserCommands) handleAdd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := optionMap(subOptions(i.ApplicationCommandData()))["name"].StringValue()
	if _, err := uc.repo.AddUser(context.Background(), i.GuildID, name); err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondPublic(s, i, fmt.Sprintf("User `%s` registered.", name))
}

func (uc *UserCommands) handleRemove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	name := optionMap(subOptions(i.ApplicationCommandData()))["name"].StringValue()

	user, err := uc.repo.FindUser(ctx, i.GuildID, name)
	if errors.Is(err, store.ErrNotFound) {
		discord.RespondEphemeral(s, i, fmt.Sprintf("No user named `%s` is registered.", name))
		return
	}
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	if err := uc.repo.RemoveUser(ctx, i.GuildID, user.ID); err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondPublic(s, i, fmt.Sprintf("User `%s` removed. Their quotes are kept.", user.Username))
}

func (uc *UserCommands) handleList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	users, err := uc.repo.Users(context.Background(), i.GuildID)
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}
	if len(users) == 0 {
		discord.RespondEphemeral(s, i, "No users registered yet.")
		return
	}

	names := make([]string, len(users))
	for n, u := range users {
		names[n] = u.Username
	}
	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "Users",
		Description: strings.Join(names, "\n"),
	})
}
