package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/developingchet/guild-counter-sync/internal/counter"
	"github.com/developingchet/guild-counter-sync/internal/permission"
)

// Definitions returns the slash commands handled by the dispatcher.
func Definitions() []*discordgo.ApplicationCommand {
	noDM := false

	setupOpts := []*discordgo.ApplicationCommandOption{{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         OptCategory,
		Description:  "Category that holds the counter channels",
		Required:     true,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildCategory},
	}}
	labelDescriptions := [counter.MaxCounters]string{
		"Label for the member count",
		"Label for the online member count",
		"Label for the in-voice member count",
		"Label for the boost count",
	}
	for i, desc := range labelDescriptions {
		setupOpts = append(setupOpts, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        LabelOption(i),
			Description: desc + " (leave empty to disable)",
			MaxLength:   counter.MaxLabelLength,
		})
	}

	rankChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, int(permission.MaxRank))
	for r := permission.RankHelper; r <= permission.MaxRank; r++ {
		rankChoices = append(rankChoices, &discordgo.ApplicationCommandOptionChoice{
			Name:  fmt.Sprintf("%d (%s)", r, r),
			Value: strconv.Itoa(int(r)),
		})
	}
	rankOpt := &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionString, Name: OptRank,
		Description: "Permission rank", Required: true, Choices: rankChoices,
	}
	roleOpt := &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionRole, Name: OptRole,
		Description: "Role", Required: true,
	}

	actionChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(permission.AllActions()))
	for _, a := range permission.AllActions() {
		actionChoices = append(actionChoices, &discordgo.ApplicationCommandOptionChoice{Name: string(a), Value: string(a)})
	}
	overrideRank := &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionString, Name: OptRank,
		Description: "Required rank, or default",
		Required:    true,
		Choices: append(append([]*discordgo.ApplicationCommandOptionChoice{}, rankChoices...),
			&discordgo.ApplicationCommandOptionChoice{Name: "default", Value: "default"}),
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:         string(permission.ActionSetup),
			Description:  "Create the counter channels (no labels removes them)",
			DMPermission: &noDM,
			Options:      setupOpts,
		},
		{
			Name:         string(permission.ActionSync),
			Description:  "Refresh the counters of this server now",
			DMPermission: &noDM,
		},
		{
			Name:         string(permission.ActionStats),
			Description:  "Show the current member statistics",
			DMPermission: &noDM,
		},
		{
			Name:         "perm",
			Description:  "Manage command permissions",
			DMPermission: &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("add", "Grant a rank to a role", rankOpt, roleOpt),
				subcommand("remove", "Revoke a rank from a role", rankOpt, roleOpt),
				subcommand("reset", "Remove every permission of this server"),
				subcommand("list", "List the roles per rank"),
				subcommand("command", "Change the rank a command requires",
					&discordgo.ApplicationCommandOption{
						Type: discordgo.ApplicationCommandOptionString, Name: OptAction,
						Description: "Command", Required: true, Choices: actionChoices,
					},
					overrideRank),
			},
		},
		{
			Name:         "config",
			Description:  "Export or import this server's configuration",
			DMPermission: &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("export", "Download the configuration as JSON"),
				subcommand("import", "Load a configuration file",
					&discordgo.ApplicationCommandOption{
						Type: discordgo.ApplicationCommandOptionAttachment, Name: OptFile,
						Description: "Exported JSON file", Required: true,
					}),
			},
		},
	}
}

func subcommand(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: desc,
		Options:     opts,
	}
}

// Invocation is a parsed slash command.
type Invocation struct {
	Action        permission.Action
	Args          map[string]string
	AttachmentURL string // set for config_import
}

// ParseCommand maps slash command data onto an action and its arguments.
// Subcommands join their parent with an underscore (perm add -> perm_add).
func ParseCommand(data discordgo.ApplicationCommandInteractionData) (Invocation, error) {
	inv := Invocation{Args: make(map[string]string)}
	name := data.Name
	opts := data.Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		name += "_" + opts[0].Name
		opts = opts[0].Options
	}
	inv.Action = permission.Action(name)
	if !permission.Known(inv.Action) {
		return Invocation{}, fmt.Errorf("unknown command %q", name)
	}

	for _, o := range opts {
		v, err := optionValue(o)
		if err != nil {
			return Invocation{}, err
		}
		inv.Args[o.Name] = strings.TrimSpace(v)
	}

	if id, ok := inv.Args[OptFile]; ok && data.Resolved != nil {
		if att, ok := data.Resolved.Attachments[id]; ok && att != nil {
			inv.AttachmentURL = att.URL
		}
	}
	return inv, nil
}

func optionValue(o *discordgo.ApplicationCommandInteractionDataOption) (string, error) {
	switch v := o.Value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("option %s: unsupported value %T", o.Name, o.Value)
}
