package main

import "flight-deal-alerts/internal/cli"

func main() {
	cli.Execute()
}
