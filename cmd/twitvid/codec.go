package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ytget/twitvid/shortcode"
)

func newCodec(c *cli.Context) (*shortcode.Codec, error) {
	return shortcode.New(appConfig(c).Codec.Key)
}

func encodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "encode",
		Usage:     "Encode a token into a URL-safe short code",
		ArgsUsage: "<token>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("encode requires exactly one token", 2)
			}
			codec, err := newCodec(c)
			if err != nil {
				return err
			}
			code, err := codec.Encode(c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			_, _ = fmt.Fprintln(c.App.Writer, code)
			return nil
		},
	}
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode a short code back into its token",
		ArgsUsage: "<code>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("decode requires exactly one code", 2)
			}
			codec, err := newCodec(c)
			if err != nil {
				return err
			}
			token, err := codec.Decode(c.Args().First())
			if err != nil {
				return cli.Exit("link not found", 1)
			}
			_, _ = fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Print a fresh random token",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "encode", Aliases: []string{"e"}, Usage: "Also print the encoded short code"},
		},
		Action: func(c *cli.Context) error {
			token, err := shortcode.NewToken()
			if err != nil {
				return err
			}
			if !c.Bool("encode") {
				_, _ = fmt.Fprintln(c.App.Writer, token)
				return nil
			}
			codec, err := newCodec(c)
			if err != nil {
				return err
			}
			code, err := codec.Encode(token)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.App.Writer, "%s %s\n", token, code)
			return nil
		},
	}
}
