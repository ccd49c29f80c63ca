// file: meshd/main.go
package main

import (
	"log"

	"github.com/rskv-p/meshd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
