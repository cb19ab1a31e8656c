// cmd/eldrive/main.go
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("eldrive failed")
		os.Exit(1)
	}
}
