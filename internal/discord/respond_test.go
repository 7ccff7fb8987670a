package discord_test

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/olclarke/hermes/internal/discord"
	"github.com/olclarke/hermes/internal/discord/mock"
)

func testInteraction() *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{ID: "i-1"}}
}

func TestRespondEphemeral(t *testing.T) {
	t.Parallel()

	m := &mock.InteractionResponder{}
	discord.RespondEphemeral(m, testInteraction(), "hello")

	resp := m.LastResponse()
	if resp == nil {
		t.Fatal("no response recorded")
	}
	if resp.Type != discordgo.InteractionResponseChannelMessageWithSource {
		t.Errorf("response type = %v", resp.Type)
	}
	if resp.Data.Content != "hello" {
		t.Errorf("content = %q, want %q", resp.Data.Content, "hello")
	}
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("response should be ephemeral")
	}
}

func TestRespondPublicIsNotEphemeral(t *testing.T) {
	t.Parallel()

	m := &mock.InteractionResponder{}
	discord.RespondPublic(m, testInteraction(), "everyone sees this")

	resp := m.LastResponse()
	if resp == nil {
		t.Fatal("no response recorded")
	}
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral != 0 {
		t.Error("response should not be ephemeral")
	}
}

func TestRespondError(t *testing.T) {
	t.Parallel()

	m := &mock.InteractionResponder{}
	discord.RespondError(m, testInteraction(), errors.New("boom"))

	resp := m.LastResponse()
	if resp == nil {
		t.Fatal("no response recorded")
	}
	if resp.Data.Content != "Error: boom" {
		t.Errorf("content = %q, want %q", resp.Data.Content, "Error: boom")
	}
}

func TestDeferReplyThenFollowUp(t *testing.T) {
	t.Parallel()

	m := &mock.InteractionResponder{}
	i := testInteraction()

	discord.DeferReply(m, i)
	resp := m.LastResponse()
	if resp == nil {
		t.Fatal("no response recorded")
	}
	if resp.Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("response type = %v, want deferred", resp.Type)
	}

	discord.FollowUp(m, i, "done")
	fu := m.LastFollowUp()
	if fu == nil {
		t.Fatal("no follow-up recorded")
	}
	if fu.Content != "done" {
		t.Errorf("follow-up content = %q, want %q", fu.Content, "done")
	}
}

func TestRespondSwallowsTransportErrors(t *testing.T) {
	t.Parallel()

	m := &mock.InteractionResponder{Err: errors.New("api down")}
	// Must not panic; failures are logged and dropped.
	discord.RespondEphemeral(m, testInteraction(), "hello")
	discord.FollowUp(m, testInteraction(), "later")
}
