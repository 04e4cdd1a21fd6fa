// The main package for the channelharvest executable.
package main

import (
	"errors"
	"os"

	"github.com/kestreldata/channelharvest/cmd"
	"github.com/kestreldata/channelharvest/internal/harvest"
)

// Exit codes. Quota exhaustion is not a failure of the run itself: completed
// work is checkpointed and the crawl resumes on the next invocation, so it
// gets its own documented code.
const (
	exitOK             = 0
	exitError          = 1
	exitQuotaExhausted = 3
)

func main() {
	err := cmd.Execute()
	switch {
	case err == nil:
		os.Exit(exitOK)
	case errors.Is(err, harvest.ErrCredentialsExhausted):
		os.Exit(exitQuotaExhausted)
	default:
		os.Exit(exitError)
	}
}
