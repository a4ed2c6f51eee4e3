package main

import (
	"os"

	"horse.fit/bookimport/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
