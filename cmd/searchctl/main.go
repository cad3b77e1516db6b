// Command searchctl builds and queries a segment directory from the shell
// without running the search service.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/facet-search/cmd/searchctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
