// Command tinyagent is an interactive chat shell over a local Ollama
// model.
//
// Usage:
//
//	tinyagent -m llama3.2 --context ./docs --stream
//
// Settings can also come from a config file passed with -c. A .env file in
// the working directory is loaded into the environment first.
package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("tinyagent"),
		kong.Description("Chat with a local model."),
		kong.UsageOnError(),
		kong.Vars{"intro": DefaultIntro},
	)

	err := cli.Run(context.Background(), os.Stdin, os.Stdout, os.Stderr)
	kctx.FatalIfErrorf(err)
}
