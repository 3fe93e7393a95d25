package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oremus-labs/ol-cvi-coach/internal/feedback"
	"github.com/oremus-labs/ol-cvi-coach/internal/session"
	"github.com/oremus-labs/ol-cvi-coach/internal/store"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Drive a coaching session through the session API",
}

var (
	signupName     string
	signupRole     string
	signupTopic    string
	signupEmail    string
	signupScenario string
	transcriptPath string
)

var sessionSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Open a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		var sess session.Session
		err := apiClient().PostJSON(cmd.Context(), "/signup", map[string]string{
			"name":     signupName,
			"role":     signupRole,
			"topic":    signupTopic,
			"email":    signupEmail,
			"scenario": signupScenario,
		}, &sess)
		if err != nil {
			return err
		}
		return renderSession(cmd, &sess)
	},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sess session.Session
		if err := apiClient().GetJSON(cmd.Context(), "/sessions/"+args[0], &sess); err != nil {
			return err
		}
		return renderSession(cmd, &sess)
	},
}

var sessionCallCmd = &cobra.Command{
	Use:   "call <id>",
	Short: "Start the video call for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			SessionID       string `json:"session_id"`
			PersonaID       string `json:"persona_id"`
			ConversationID  string `json:"conversation_id"`
			ConversationURL string `json:"conversation_url"`
		}
		if err := apiClient().PostJSON(cmd.Context(), "/sessions/"+args[0]+"/call", nil, &resp); err != nil {
			return err
		}
		table, err := writeOutput(cmd.OutOrStdout(), resp)
		if err != nil || !table {
			return err
		}
		printKV(cmd.OutOrStdout(),
			"Session", resp.SessionID,
			"Persona ID", resp.PersonaID,
			"Conversation ID", resp.ConversationID,
			"Join URL", resp.ConversationURL,
		)
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <id>",
	Short: "Mark the call ended",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := transcriptBody()
		if err != nil {
			return err
		}
		var sess session.Session
		if err := apiClient().PostJSON(cmd.Context(), "/sessions/"+args[0]+"/end", body, &sess); err != nil {
			return err
		}
		return renderSession(cmd, &sess)
	},
}

var sessionFeedbackCmd = &cobra.Command{
	Use:   "feedback <id>",
	Short: "Generate coaching tips for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := transcriptBody()
		if err != nil {
			return err
		}
		var result session.FeedbackResult
		if err := apiClient().PostJSON(cmd.Context(), "/sessions/"+args[0]+"/feedback", body, &result); err != nil {
			return err
		}
		table, err := writeOutput(cmd.OutOrStdout(), result)
		if err != nil || !table {
			return err
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintf(tw, "CATEGORY\tTITLE\tDESCRIPTION\n")
		for _, tip := range result.Tips {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", tip.Category, tip.Title, truncate(tip.Description, 80))
		}
		flushTable(tw)
		fmt.Fprintf(cmd.OutOrStdout(), "Email sent: %t\n", result.EmailSent)
		return nil
	},
}

// transcriptBody reads --transcript as a JSON array of {role, text}
// messages. Without the flag no body is sent.
func transcriptBody() (interface{}, error) {
	if transcriptPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var messages []feedback.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return map[string]interface{}{"transcript": messages}, nil
}

func renderSession(cmd *cobra.Command, sess *session.Session) error {
	table, err := writeOutput(cmd.OutOrStdout(), sess)
	if err != nil || !table {
		return err
	}
	printKV(cmd.OutOrStdout(),
		"ID", sess.ID,
		"Status", string(sess.Status),
		"Scenario", sess.ScenarioKey,
		"Name", sess.Profile.Name,
		"Conversation", sess.ConversationID,
		"Join URL", sess.ConversationURL,
		"Transcript turns", strconv.Itoa(len(sess.Transcript)),
		"Updated", formatTimestamp(sess.UpdatedAt),
	)
	return nil
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent session activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			History []store.HistoryEntry `json:"history"`
		}
		path := "/history"
		if historyLimit > 0 {
			path += "?limit=" + strconv.Itoa(historyLimit)
		}
		if err := apiClient().GetJSON(cmd.Context(), path, &resp); err != nil {
			return err
		}
		table, err := writeOutput(cmd.OutOrStdout(), resp.History)
		if err != nil || !table {
			return err
		}
		if len(resp.History) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No history entries found.")
			return nil
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintf(tw, "TIME\tEVENT\tSESSION\tDETAILS\n")
		for _, e := range resp.History {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", formatTimestamp(e.CreatedAt), e.Event, valueOrDash(e.SessionID), e.Metadata)
		}
		flushTable(tw)
		return nil
	},
}

var (
	eventsFilter string
	eventsCount  int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream session lifecycle events",
	RunE: func(cmd *cobra.Command, args []string) error {
		seen := 0
		return apiClient().StreamEvents(cmd.Context(), func(evt EventEnvelope) bool {
			if eventsFilter != "" && !strings.HasPrefix(evt.Type, eventsFilter) {
				return true
			}
			if strings.ToLower(outputFormat) == "json" {
				_ = printJSON(cmd.OutOrStdout(), evt)
			} else {
				ts := evt.Timestamp
				if ts.IsZero() {
					ts = time.Now()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s %s\n", ts.Local().Format("15:04:05"), evt.Type, string(evt.Data))
			}
			seen++
			return eventsCount <= 0 || seen < eventsCount
		})
	},
}

func init() {
	sessionSignupCmd.Flags().StringVar(&signupName, "name", "", "Participant name")
	sessionSignupCmd.Flags().StringVar(&signupRole, "role", "", "Participant role")
	sessionSignupCmd.Flags().StringVar(&signupTopic, "topic", "", "Conversation topic")
	sessionSignupCmd.Flags().StringVar(&signupEmail, "email", "", "Email for the feedback")
	sessionSignupCmd.Flags().StringVar(&signupScenario, "scenario", "", "Scenario key (server default when empty)")

	sessionEndCmd.Flags().StringVar(&transcriptPath, "transcript", "", "JSON file with [{role, text}] messages")
	sessionFeedbackCmd.Flags().StringVar(&transcriptPath, "transcript", "", "JSON file with [{role, text}] messages")

	sessionCmd.AddCommand(sessionSignupCmd)
	sessionCmd.AddCommand(sessionGetCmd)
	sessionCmd.AddCommand(sessionCallCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionFeedbackCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum entries to return")

	eventsCmd.Flags().StringVar(&eventsFilter, "type", "", "Only show events whose type starts with this prefix")
	eventsCmd.Flags().IntVar(&eventsCount, "count", 0, "Stop after this many events (0 streams until interrupted)")
}
