package main

import "github.com/StinkyLord/gh-sbom-export/cmd"

func main() {
	cmd.Execute()
}
