package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rewrapCmd = &cobra.Command{
	Use:   "rewrap",
	Short: "Re-encrypt the store under a new master key",
	Long: "Re-encrypts every protected column under the key in\n" +
		"HEARTH_NEW_MASTER_KEY. The store stays readable throughout; after a\n" +
		"successful rewrap the old key no longer opens it.",
	RunE: runRewrap,
}

func runRewrap(cmd *cobra.Command, args []string) error {
	newKey := os.Getenv("HEARTH_NEW_MASTER_KEY")
	if newKey == "" {
		return fmt.Errorf("set HEARTH_NEW_MASTER_KEY to the replacement key")
	}

	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.Rewrap(newKey)
	if err != nil {
		return err
	}
	fmt.Printf("re-encrypted %d rows; update HEARTH_MASTER_KEY before the next start\n", n)
	return nil
}
