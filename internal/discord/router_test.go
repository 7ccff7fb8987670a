package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestRouterDispatchesToRegisteredHandler(t *testing.T) {
	t.Parallel()

	router := NewCommandRouter()
	var handled string
	router.RegisterCommand("play", &discordgo.ApplicationCommand{Name: "play"},
		func(_ *discordgo.Session, _ *discordgo.InteractionCreate) { handled = "play" })

	router.Handle(nil, &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{Name: "play"},
		},
	})

	if handled != "play" {
		t.Errorf("handled = %q, want %q", handled, "play")
	}
}

func TestRouterDispatchesSubcommand(t *testing.T) {
	t.Parallel()

	router := NewCommandRouter()
	var handled string
	router.RegisterCommand("quote", &discordgo.ApplicationCommand{Name: "quote"},
		func(_ *discordgo.Session, _ *discordgo.InteractionCreate) { handled = "quote" })
	router.RegisterHandler("quote/add",
		func(_ *discordgo.Session, _ *discordgo.InteractionCreate) { handled = "quote/add" })

	router.Handle(nil, &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{
				Name: "quote",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "add", Type: discordgo.ApplicationCommandOptionSubCommand},
				},
			},
		},
	})

	if handled != "quote/add" {
		t.Errorf("handled = %q, want %q", handled, "quote/add")
	}
}

func TestApplicationCommandsDeduplicates(t *testing.T) {
	t.Parallel()

	router := NewCommandRouter()
	def := &discordgo.ApplicationCommand{Name: "volume"}
	noop := func(_ *discordgo.Session, _ *discordgo.InteractionCreate) {}
	router.RegisterCommand("volume", def, noop)
	router.RegisterCommand("volume/music", def, noop)
	router.RegisterHandler("volume/quote", noop)

	cmds := router.ApplicationCommands()
	if len(cmds) != 1 {
		t.Fatalf("command count = %d, want 1", len(cmds))
	}
	if cmds[0].Name != "volume" {
		t.Errorf("command name = %q, want %q", cmds[0].Name, "volume")
	}
}

func TestInteractionKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data discordgo.ApplicationCommandInteractionData
		want string
	}{
		{
			name: "top level",
			data: discordgo.ApplicationCommandInteractionData{Name: "skip"},
			want: "skip",
		},
		{
			name: "subcommand",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "user",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "list", Type: discordgo.ApplicationCommandOptionSubCommand},
				},
			},
			want: "user/list",
		},
		{
			name: "plain option is not a subcommand",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "play",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "query", Type: discordgo.ApplicationCommandOptionString},
				},
			},
			want: "play",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := interactionKey(tt.data); got != tt.want {
				t.Errorf("interactionKey = %q, want %q", got, tt.want)
			}
		})
	}
}
