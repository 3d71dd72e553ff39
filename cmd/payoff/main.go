// Command payoff prints debt payoff schedules for a TOML file of debts.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
