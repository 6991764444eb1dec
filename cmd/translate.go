/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

func translateCmd() *cli.Command {
	return &cli.Command{
		Name:      "translate",
		Usage:     "Translate text through the configured providers and cache",
		ArgsUsage: "[text...]",
		Description: `Translates the arguments, or stdin when no arguments are given, exactly
the way relayed posts are translated. Useful to check provider settings.`,
		Flags: relayFlags(),
		Action: func(ctx *cli.Context) error {
			s, err := loadSettings(ctx)
			if err != nil {
				return err
			}

			text := strings.Join(ctx.Args().Slice(), " ")
			if text == "" {
				data, err := io.ReadAll(bufio.NewReader(os.Stdin))
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = string(data)
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("nothing to translate")
			}

			fmt.Println(buildTranslator(s).Translate(ctx.Context, text))
			return nil
		},
	}
}
