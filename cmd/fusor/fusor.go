package main

import (
	"os"

	"Fusor/cmd/fusor/app"
)

func main() {
	app.New(os.Args[0]).Run()
}
