// The main package for the sitemd executable.
package main

import (
	"github.com/sitemd/sitemd/cmd"
)

func main() {
	cmd.Execute()
}
