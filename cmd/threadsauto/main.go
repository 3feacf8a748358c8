package main

import (
	"fmt"
	"os"

	"github.com/dthanhvu03/threadsauto-sub000/cmd"
	"github.com/dthanhvu03/threadsauto-sub000/internal/colors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		colors.Error(fmt.Sprintf("%v", err))
		os.Exit(1)
	}
}
