package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/olclarke/hermes/internal/discord"
	"github.com/olclarke/hermes/internal/player"
	"github.com/olclarke/hermes/internal/speech"
	"github.com/olclarke/hermes/internal/store"
)

// quoteListLimit caps how many quotes /quote list shows per reply.
const quoteListLimit = 20

// QuoteCommands handles the quote management and narration slash commands.
type QuoteCommands struct {
	repo        store.Repository
	worker      *speech.Worker
	registry    *player.Registry
	artifactDir string
}

// NewQuoteCommands creates a QuoteCommands handler. artifactDir is where the
// speech worker writes narration files.
func NewQuoteCommands(repo store.Repository, worker *speech.Worker, registry *player.Registry, artifactDir string) *QuoteCommands {
	return &QuoteCommands{repo: repo, worker: worker, registry: registry, artifactDir: artifactDir}
}

// Register registers the quote command tree with the router.
func (qc *QuoteCommands) Register(router *discord.CommandRouter) {
	userOption := func(required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Name:        "user",
			Description: "Name of the quoted user",
			Type:        discordgo.ApplicationCommandOptionString,
			Required:    required,
		}
	}

	router.RegisterCommand("quote", &discordgo.ApplicationCommand{
		Name:        "quote",
		Description: "Manage and play back quotes",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "add",
				Description: "Record a new quote",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					userOption(true),
					{
						Name:        "text",
						Description: "What was said",
						Type:        discordgo.ApplicationCommandOptionString,
						Required:    true,
					},
				},
			},
			{
				Name:        "remove",
				Description: "Delete a quote by its number",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "id",
						Description: "Quote number",
						Type:        discordgo.ApplicationCommandOptionInteger,
						Required:    true,
					},
				},
			},
			{
				Name:        "say",
				Description: "Play a quote narration in your voice channel",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					userOption(false),
					{
						Name:        "id",
						Description: "Quote number, random when omitted",
						Type:        discordgo.ApplicationCommandOptionInteger,
					},
				},
			},
			{
				Name:        "list",
				Description: "List recorded quotes",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     []*discordgo.ApplicationCommandOption{userOption(false)},
			},
		},
	}, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand, e.g. `/quote say`.")
	})
	router.RegisterHandler("quote/add", qc.handleAdd)
	router.RegisterHandler("quote/remove", qc.handleRemove)
	router.RegisterHandler("quote/say", qc.handleSay)
	router.RegisterHandler("quote/list", qc.handleList)
}

func (qc *QuoteCommands) handleAdd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	opts := optionMap(subOptions(i.ApplicationCommandData()))
	name := opts["user"].StringValue()
	text := opts["text"].StringValue()

	user, err := qc.repo.FindUser(ctx, i.GuildID, name)
	if errors.Is(err, store.ErrNotFound) {
		discord.RespondEphemeral(s, i,
			fmt.Sprintf("No user named `%s` is registered. Add them first with `/user add`.", name))
		return
	}
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	id, err := qc.repo.AddQuote(ctx, i.GuildID, user.ID, text)
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	// Narration is produced in the background; the quote is usable
	// from /quote say as soon as the file lands.
	job := speech.NewJob(store.Quote{ID: id, GuildID: i.GuildID, UserID: user.ID, Body: text})
	if err := qc.worker.Submit(ctx, job); err != nil {
		discord.RespondEphemeral(s, i,
			fmt.Sprintf("Quote #%d saved, but narration could not be scheduled: %v", id, err))
		return
	}
	discord.RespondPublic(s, i,
		fmt.Sprintf("Quote #%d by `%s` saved: %s", id, user.Username, text))
}

func (qc *QuoteCommands) handleRemove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	id := optionMap(subOptions(i.ApplicationCommandData()))["id"].IntValue()
	err := qc.repo.RemoveQuote(context.Background(), i.GuildID, id)
	if errors.Is(err, store.ErrNotFound) {
		discord.RespondEphemeral(s, i, fmt.Sprintf("There is no quote #%d.", id))
		return
	}
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Quote #%d removed.", id))
}

func (qc *QuoteCommands) handleSay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	org, err := origin(s, i)
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	ctx := context.Background()
	opts := optionMap(subOptions(i.ApplicationCommandData()))
	quote, err := qc.pickQuote(ctx, i.GuildID, opts)
	if errors.Is(err, store.ErrNotFound) {
		discord.RespondEphemeral(s, i, "No matching quote found.")
		return
	}
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	fileName, err := qc.repo.TTSFile(ctx, quote.ID)
	if errors.Is(err, store.ErrNotFound) {
		discord.RespondEphemeral(s, i,
			fmt.Sprintf("The narration for quote #%d is not ready yet, try again shortly.", quote.ID))
		return
	}
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	path := filepath.Join(qc.artifactDir, fileName+".mp3")
	title := fmt.Sprintf("Quote #%d", quote.ID)
	if err := qc.registry.PlayFile(ctx, i.GuildID, org, path, title); err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondPublic(s, i, fmt.Sprintf("Playing quote #%d: %s", quote.ID, quote.Body))
}

// pickQuote resolves the quote to narrate from the say options. An explicit
// id wins; otherwise a random quote, scoped to the named user when given.
func (qc *QuoteCommands) pickQuote(ctx context.Context, guildID string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (store.Quote, error) {
	if o, ok := opts["id"]; ok {
		return qc.repo.Quote(ctx, guildID, o.IntValue())
	}

	if o, ok := opts["user"]; ok {
		user, err := qc.repo.FindUser(ctx, guildID, o.StringValue())
		if err != nil {
			return store.Quote{}, err
		}
		quotes, err := qc.repo.QuotesByUser(ctx, guildID, user.ID)
		if err != nil {
			return store.Quote{}, err
		}
		if len(quotes) == 0 {
			return store.Quote{}, store.ErrNotFound
		}
		return quotes[rand.IntN(len(quotes))], nil
	}
	return qc.repo.RandomQuote(ctx, guildID)
}

func (qc *QuoteCommands) handleList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	opts := optionMap(subOptions(i.ApplicationCommandData()))

	var (
		quotes []store.Quote
		err    error
		title  = "Quotes"
	)
	if o, ok := opts["user"]; ok {
		var user store.User
		user, err = qc.repo.FindUser(ctx, i.GuildID, o.StringValue())
		if errors.Is(err, store.ErrNotFound) {
			discord.RespondEphemeral(s, i, fmt.Sprintf("No user named `%s` is registered.", o.StringValue()))
			return
		}
		if err == nil {
			title = fmt.Sprintf("Quotes by %s", user.Username)
			quotes, err = qc.repo.QuotesByUser(ctx, i.GuildID, user.ID)
		}
	} else {
		quotes, err = qc.repo.Quotes(ctx, i.GuildID)
	}
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}
	if len(quotes) == 0 {
		discord.RespondEphemeral(s, i, "No quotes recorded yet.")
		return
	}

	var b strings.Builder
	for n, q := range quotes {
		if n == quoteListLimit {
			fmt.Fprintf(&b, "... and %d more", len(quotes)-quoteListLimit)
			break
		}
		fmt.Fprintf(&b, "#%d %s\n", q.ID, q.Body)
	}
	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       title,
		Description: b.String(),
	})
}
