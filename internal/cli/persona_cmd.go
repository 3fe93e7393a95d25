package cli

import (
	"fmt"

	"github.com/oremus-labs/ol-cvi-coach/internal/persona"
	"github.com/spf13/cobra"
)

var (
	scenarioKey  string
	profileName  string
	profileRole  string
	profileTopic string
	replicaID    string
)

func addPersonaFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&scenarioKey, "scenario", persona.DefaultScenarioKey, "Scenario key")
	cmd.Flags().StringVar(&profileName, "name", "", "Participant name for the prompt preamble")
	cmd.Flags().StringVar(&profileRole, "role", "", "Participant role for the prompt preamble")
	cmd.Flags().StringVar(&profileTopic, "topic", "", "Conversation topic for the prompt preamble")
}

// profileFromFlags returns nil when no profile flag was given, which renders
// the bare scenario prompt.
func profileFromFlags() *persona.UserProfile {
	if profileName == "" && profileRole == "" && profileTopic == "" {
		return nil
	}
	return &persona.UserProfile{Name: profileName, Role: profileRole, Topic: profileTopic}
}

func buildPayload() (persona.Payload, error) {
	catalog, err := loadCatalog()
	if err != nil {
		return persona.Payload{}, err
	}
	scenario, err := catalog.Get(scenarioKey)
	if err != nil {
		return persona.Payload{}, err
	}
	return persona.BuildPayload(scenario, persona.BuildSystemPrompt(scenario, profileFromFlags())), nil
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List coaching scenarios",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		list := catalog.List()
		table, err := writeOutput(cmd.OutOrStdout(), list)
		if err != nil || !table {
			return err
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintf(tw, "KEY\tLABEL\tEMPLOYEE\n")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Key, s.Label, truncate(s.EmployeeType, 60))
		}
		flushTable(tw)
		return nil
	},
}

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the persona system prompt for a scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		scenario, err := catalog.Get(scenarioKey)
		if err != nil {
			return err
		}
		prompt := persona.BuildSystemPrompt(scenario, profileFromFlags())
		table, err := writeOutput(cmd.OutOrStdout(), map[string]string{
			"scenario":    scenario.Key,
			"prompt":      prompt,
			"prompt_hash": persona.PromptHash(prompt),
		})
		if err != nil || !table {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), prompt)
		return nil
	},
}

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Build or create the manager persona",
}

var personaPayloadCmd = &cobra.Command{
	Use:   "payload",
	Short: "Print the persona creation payload as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := buildPayload()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), payload)
	},
}

var personaCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the persona on Tavus",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := buildPayload()
		if err != nil {
			return err
		}
		resp, err := tavusClient().CreatePersona(cmd.Context(), payload)
		if err != nil {
			return err
		}
		table, err := writeOutput(cmd.OutOrStdout(), resp)
		if err != nil || !table {
			return err
		}
		printKV(cmd.OutOrStdout(), "Persona ID", resp.PersonaID, "Name", resp.PersonaName)
		return nil
	},
}

var conversationCmd = &cobra.Command{
	Use:   "conversation",
	Short: "Manage Tavus conversations",
}

var conversationPersonaID string

var conversationCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a conversation with an existing persona",
	RunE: func(cmd *cobra.Command, args []string) error {
		if conversationPersonaID == "" {
			return fmt.Errorf("--persona-id is required")
		}
		resp, err := tavusClient().CreateConversation(cmd.Context(), conversationPersonaID, resolvedReplicaID())
		if err != nil {
			return err
		}
		table, err := writeOutput(cmd.OutOrStdout(), resp)
		if err != nil || !table {
			return err
		}
		printKV(cmd.OutOrStdout(), "Conversation ID", resp.ConversationID, "Join URL", resp.ConversationURL)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Create the persona and open a conversation with it",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := buildPayload()
		if err != nil {
			return err
		}
		client := tavusClient()
		p, err := client.CreatePersona(cmd.Context(), payload)
		if err != nil {
			return err
		}
		conv, err := client.CreateConversation(cmd.Context(), p.PersonaID, resolvedReplicaID())
		if err != nil {
			return fmt.Errorf("persona %s created but conversation failed: %w", p.PersonaID, err)
		}
		result := map[string]string{
			"persona_id":       p.PersonaID,
			"conversation_id":  conv.ConversationID,
			"conversation_url": conv.ConversationURL,
		}
		table, err := writeOutput(cmd.OutOrStdout(), result)
		if err != nil || !table {
			return err
		}
		printKV(cmd.OutOrStdout(),
			"Persona ID", p.PersonaID,
			"Conversation ID", conv.ConversationID,
			"Join URL", conv.ConversationURL,
		)
		return nil
	},
}

func resolvedReplicaID() string {
	if replicaID != "" {
		return replicaID
	}
	return appConfig.TavusReplicaID
}

func init() {
	addPersonaFlags(promptCmd)
	addPersonaFlags(personaPayloadCmd)
	addPersonaFlags(personaCreateCmd)
	addPersonaFlags(startCmd)

	conversationCreateCmd.Flags().StringVar(&conversationPersonaID, "persona-id", "", "Persona to talk to")
	conversationCreateCmd.Flags().StringVar(&replicaID, "replica-id", "", "Replica override (defaults to TAVUS_REPLICA_ID, then the persona default)")
	startCmd.Flags().StringVar(&replicaID, "replica-id", "", "Replica override (defaults to TAVUS_REPLICA_ID, then the persona default)")

	personaCmd.AddCommand(personaPayloadCmd)
	personaCmd.AddCommand(personaCreateCmd)
	conversationCmd.AddCommand(conversationCreateCmd)
}
