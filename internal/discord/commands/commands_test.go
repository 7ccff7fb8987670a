package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/olclarke/hermes/internal/discord"
	"github.com/olclarke/hermes/internal/store"
	storemock "github.com/olclarke/hermes/internal/store/mock"
)

func registeredNames(router *discord.CommandRouter) map[string]bool {
	names := make(map[string]bool)
	for _, cmd := range router.ApplicationCommands() {
		names[cmd.Name] = true
	}
	return names
}

func subcommandNames(cmd *discordgo.ApplicationCommand) []string {
	var names []string
	for _, opt := range cmd.Options {
		if opt.Type == discordgo.ApplicationCommandOptionSubCommand {
			names = append(names, opt.Name)
		}
	}
	return names
}

func findCommand(t *testing.T, router *discord.CommandRouter, name string) *discordgo.ApplicationCommand {
	t.Helper()
	for _, cmd := range router.ApplicationCommands() {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not registered", name)
	return nil
}

func TestPlaybackRegister(t *testing.T) {
	t.Parallel()

	router := discord.NewCommandRouter()
	NewPlaybackCommands(nil, nil).Register(router)

	names := registeredNames(router)
	for _, want := range []string{
		"play", "pause", "resume", "skip", "shuffle",
		"clear", "queue", "nowplaying", "volume", "disconnect",
	} {
		if !names[want] {
			t.Errorf("command %q not registered", want)
		}
	}
}

func TestPlayDefinition(t *testing.T) {
	t.Parallel()

	router := discord.NewCommandRouter()
	NewPlaybackCommands(nil, nil).Register(router)
	play := findCommand(t, router, "play")

	if len(play.Options) != 2 {
		t.Fatalf("option count = %d, want 2", len(play.Options))
	}
	if play.Options[0].Name != "query" || !play.Options[0].Required {
		t.Errorf("first option = %q (required %v), want required %q",
			play.Options[0].Name, play.Options[0].Required, "query")
	}
	if play.Options[1].Name != "next" || play.Options[1].Required {
		t.Errorf("second option = %q (required %v), want optional %q",
			play.Options[1].Name, play.Options[1].Required, "next")
	}
}

func TestVolumeDefinitionSubcommands(t *testing.T) {
	t.Parallel()

	router := discord.NewCommandRouter()
	NewPlaybackCommands(nil, nil).Register(router)
	volume := findCommand(t, router, "volume")

	subs := subcommandNames(volume)
	want := []string{"music", "quote"}
	if len(subs) != len(want) {
		t.Fatalf("subcommands = %v, want %v", subs, want)
	}
	for i, name := range want {
		if subs[i] != name {
			t.Errorf("subcommand[%d] = %q, want %q", i, subs[i], name)
		}
		opt := volume.Options[i].Options[0]
		if opt.Name != "value" || !opt.Required {
			t.Errorf("%s option = %q (required %v), want required %q",
				name, opt.Name, opt.Required, "value")
		}
	}
}

func TestQuoteDefinitionSubcommands(t *testing.T) {
	t.Parallel()

	router := discord.NewCommandRouter()
	NewQuoteCommands(storemock.NewStore(), nil, nil, t.TempDir()).Register(router)
	quote := findCommand(t, router, "quote")

	subs := subcommandNames(quote)
	want := []string{"add", "remove", "say", "list"}
	if len(subs) != len(want) {
		t.Fatalf("subcommands = %v, want %v", subs, want)
	}
	for i, name := range want {
		if subs[i] != name {
			t.Errorf("subcommand[%d] = %q, want %q", i, subs[i], name)
		}
	}
}

func TestUserDefinitionSubcommands(t *testing.T) {
	t.Parallel()

	router := discord.NewCommandRouter()
	NewUserCommands(storemock.NewStore()).Register(router)
	user := findCommand(t, router, "user")

	subs := subcommandNames(user)
	want := []string{"add", "remove", "list"}
	if len(subs) != len(want) {
		t.Fatalf("subcommands = %v, want %v", subs, want)
	}
	for i, name := range want {
		if subs[i] != name {
			t.Errorf("subcommand[%d] = %q, want %q", i, subs[i], name)
		}
	}
}

func TestOptionMap(t *testing.T) {
	t.Parallel()

	opts := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "query", Type: discordgo.ApplicationCommandOptionString, Value: "some song"},
		{Name: "next", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
	}

	m := optionMap(opts)
	if got := m["query"].StringValue(); got != "some song" {
		t.Errorf("query = %q, want %q", got, "some song")
	}
	if !m["next"].BoolValue() {
		t.Error("next = false, want true")
	}
	if _, ok := m["missing"]; ok {
		t.Error("unexpected entry for missing option")
	}
}

func TestSubOptionsNested(t *testing.T) {
	t.Parallel()

	data := discordgo.ApplicationCommandInteractionData{
		Name: "volume",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{
				Name: "music",
				Type: discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "value", Type: discordgo.ApplicationCommandOptionNumber, Value: 0.5},
				},
			},
		},
	}

	opts := subOptions(data)
	if len(opts) != 1 || opts[0].Name != "value" {
		t.Fatalf("subOptions = %v, want the nested value option", opts)
	}
}

func TestSubOptionsTopLevel(t *testing.T) {
	t.Parallel()

	data := discordgo.ApplicationCommandInteractionData{
		Name: "play",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "query", Type: discordgo.ApplicationCommandOptionString, Value: "url"},
		},
	}

	opts := subOptions(data)
	if len(opts) != 1 || opts[0].Name != "query" {
		t.Fatalf("subOptions = %v, want the top-level query option", opts)
	}
}

func TestRequester(t *testing.T) {
	t.Parallel()

	i := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Member: &discordgo.Member{User: &discordgo.User{Username: "olivia"}},
		},
	}
	if got := requester(i); got != "olivia" {
		t.Errorf("requester = %q, want %q", got, "olivia")
	}

	empty := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}
	if got := requester(empty); got != "unknown" {
		t.Errorf("requester = %q, want %q", got, "unknown")
	}
}

func TestPickQuoteByID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := storemock.NewStore()
	userID, err := repo.AddUser(ctx, "guild-1", "alice")
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	quoteID, err := repo.AddQuote(ctx, "guild-1", userID, "first")
	if err != nil {
		t.Fatalf("AddQuote: %v", err)
	}
	if _, err := repo.AddQuote(ctx, "guild-1", userID, "second"); err != nil {
		t.Fatalf("AddQuote: %v", err)
	}

	qc := NewQuoteCommands(repo, nil, nil, t.TempDir())
	opts := optionMap([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "id", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(quoteID)},
	})

	got, err := qc.pickQuote(ctx, "guild-1", opts)
	if err != nil {
		t.Fatalf("pickQuote: %v", err)
	}
	if got.ID != quoteID || got.Body != "first" {
		t.Errorf("pickQuote = #%d %q, want #%d %q", got.ID, got.Body, quoteID, "first")
	}
}

func TestPickQuoteRandomByUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := storemock.NewStore()
	aliceID, err := repo.AddUser(ctx, "guild-1", "alice")
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	bobID, err := repo.AddUser(ctx, "guild-1", "bob")
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if _, err := repo.AddQuote(ctx, "guild-1", aliceID, "by alice"); err != nil {
		t.Fatalf("AddQuote: %v", err)
	}
	if _, err := repo.AddQuote(ctx, "guild-1", bobID, "by bob"); err != nil {
		t.Fatalf("AddQuote: %v", err)
	}

	qc := NewQuoteCommands(repo, nil, nil, t.TempDir())
	opts := optionMap([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "user", Type: discordgo.ApplicationCommandOptionString, Value: "alice"},
	})

	got, err := qc.pickQuote(ctx, "guild-1", opts)
	if err != nil {
		t.Fatalf("pickQuote: %v", err)
	}
	if got.UserID != aliceID {
		t.Errorf("picked quote by user %d, want %d", got.UserID, aliceID)
	}
}

func TestPickQuoteNothingRecorded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := storemock.NewStore()
	if _, err := repo.AddUser(ctx, "guild-1", "alice"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	qc := NewQuoteCommands(repo, nil, nil, t.TempDir())
	opts := optionMap([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "user", Type: discordgo.ApplicationCommandOptionString, Value: "alice"},
	})

	if _, err := qc.pickQuote(ctx, "guild-1", opts); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("pickQuote error = %v, want %v", err, store.ErrNotFound)
	}
}
