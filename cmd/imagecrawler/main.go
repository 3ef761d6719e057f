// Command imagecrawler collects images for a search query from the
// configured web sources. See the cmd package for subcommands.
package main

import "github.com/JakeFAU/image-crawler/cmd"

func main() {
	cmd.Execute()
}
