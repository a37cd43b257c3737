package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/paywatch/internal/core/registry"
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List the supported networks and their defaults",
	Run:   runNetworks,
}

func init() {
	rootCmd.AddCommand(networksCmd)
}

func runNetworks(cmd *cobra.Command, args []string) {
	reg := registry.New()
	names := reg.Names()
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "NETWORK\tSYMBOL\tFAMILY\tPUSH\tPOLL\tCONFIRMATIONS")

	for _, name := range names {
		n, err := reg.Lookup(name)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%d\n",
			n.Name, n.Symbol, n.Family, n.SupportsPush, n.DefaultPollInterval, n.DefaultConfirmations)
	}
	_ = w.Flush()
}
