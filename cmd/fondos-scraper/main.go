package main

import "github.com/mauriciolorca/fondos-scraper/internal/cli"

func main() {
	cli.Execute()
}
