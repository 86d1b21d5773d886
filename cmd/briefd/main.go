package main

import "github.com/JakeFAU/seo-brief-automator/cmd"

func main() {
	cmd.Execute()
}
