package main

import (
	"os"

	"github.com/HephreePersonal/EJSupervision-Importer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
