package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"github.com/QuickFix-Capstone/quickfix-messaging/internal/app"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides QMSG_PROFILE)")
	flag.Parse()

	// A .env next to the binary is a convenience for development; the
	// token normally comes from the real environment.
	_ = godotenv.Load()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fx.New(
		app.Module(app.Params{ProfileName: profileName}),
	).Run()
}
