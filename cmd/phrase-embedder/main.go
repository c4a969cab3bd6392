// Command phrase-embedder computes vector embeddings for phrases that lack one
// and stores them next to the phrases.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
