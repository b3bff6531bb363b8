// Command entitlectl inspects and edits entitlement state: the subscription
// tier and today's usage ledger.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
