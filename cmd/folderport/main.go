package main

import (
	"os"

	"github.com/ZerkerEOD/folderport/pkg/console"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		console.Error("%v", err)
		os.Exit(1)
	}
}
