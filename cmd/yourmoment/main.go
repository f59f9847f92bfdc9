// yourmoment is the platform server: HTTP API, pipeline workers, and the
// periodic scheduler, selected via subcommands.
package main

import "os"

func main() {
	os.Exit(Execute())
}
