package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/permission"
	"github.com/spf13/cobra"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect permission policies",
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <policy.yaml>",
	Short: "Evaluate a policy offline for one caller and action",
	Example: `  softbus policy check policy.yaml --uid 1000 --pkg com.demo \
    --session com.demo.chat --action open`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := permission.Load(args[0])
		if err != nil {
			return err
		}
		uid, _ := cmd.Flags().GetInt32("uid")
		pkgName, _ := cmd.Flags().GetString("pkg")
		sessionName, _ := cmd.Flags().GetString("session")
		actionName, _ := cmd.Flags().GetString("action")

		action, ok := domain.ParseAction(actionName)
		if !ok {
			return fmt.Errorf("unknown action %q (want create, open or send)", actionName)
		}

		origin := domain.Origin{UID: uid, PID: -1}
		decision, index := policy.Explain(origin, pkgName, sessionName, action)
		writeDecision(cmd.OutOrStdout(), newPalette(cmd.OutOrStdout()), decision, index)
		if decision == domain.Deny {
			return domain.ErrPermissionDenied
		}
		return nil
	},
}

func writeDecision(w io.Writer, p palette, decision domain.Decision, index int) {
	var verdict string
	if decision == domain.Allow {
		verdict = p.ok("ALLOW").String()
	} else {
		verdict = p.bad("DENY").String()
	}
	source := "default"
	if index >= 0 {
		source = fmt.Sprintf("rule #%d", index)
	}
	fmt.Fprintf(w, "%s %s\n", verdict, p.dim("("+strings.TrimSpace(source)+")"))
}

func init() {
	policyCheckCmd.Flags().Int32("uid", -1, "Caller uid")
	policyCheckCmd.Flags().String("pkg", "", "Package name")
	policyCheckCmd.Flags().String("session", "", "Session name")
	policyCheckCmd.Flags().String("action", "open", "Action: create, open or send")
	policyCmd.AddCommand(policyCheckCmd)
	rootCmd.AddCommand(policyCmd)
}
