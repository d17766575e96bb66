package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hearthd/hearth/internal/store"
)

var purgeFlags struct {
	contexts     bool
	facts        bool
	knowledge    bool
	keys         bool
	conversation string
	allMessages  bool
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete stored data by category",
	Long: "Deletes stored data for the selected categories. With no flags nothing\n" +
		"is deleted. --conversation removes one channel's messages;\n" +
		"--all-messages removes the whole ledger.",
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeFlags.contexts, "contexts", false, "delete context summaries")
	purgeCmd.Flags().BoolVar(&purgeFlags.facts, "facts", false, "delete all facts, including history")
	purgeCmd.Flags().BoolVar(&purgeFlags.knowledge, "knowledge", false, "delete events and pending topics")
	purgeCmd.Flags().BoolVar(&purgeFlags.keys, "keys", false, "delete replay nonces")
	purgeCmd.Flags().StringVar(&purgeFlags.conversation, "conversation", "", "delete messages for one channel")
	purgeCmd.Flags().BoolVar(&purgeFlags.allMessages, "all-messages", false, "delete every ledger message")
}

func runPurge(cmd *cobra.Command, args []string) error {
	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := db.Purge(store.PurgeOptions{
		Contexts:     purgeFlags.contexts,
		Facts:        purgeFlags.facts,
		Knowledge:    purgeFlags.knowledge,
		Keys:         purgeFlags.keys,
		Conversation: purgeFlags.conversation,
		AllMessages:  purgeFlags.allMessages,
	})
	if err != nil {
		return err
	}

	fmt.Printf("purged: %d summaries, %d facts, %d events, %d topics, %d nonces, %d messages\n",
		res.Summaries, res.Facts, res.Events, res.Topics, res.Nonces, res.Messages)
	return nil
}
