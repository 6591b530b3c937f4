package main

import (
	"log"

	"civicsync-admin/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatal(err)
	}
}
