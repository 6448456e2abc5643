package main

import (
	"fmt"
	"strings"
	"time"

	"dash-proxy/internal/wbi"

	"github.com/spf13/cobra"
)

func newSignCommand(ctx *commandContext) *cobra.Command {
	var imgKey, subKey string
	var wts int64

	cmd := &cobra.Command{
		Use:   "sign key=value...",
		Short: "Print a WBI-signed query string",
		Long: "Signs the given parameters. Without --img-key and --sub-key the keys are\n" +
			"fetched from the nav endpoint. --wts pins the timestamp for reproducible output.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make(wbi.Params, len(args))
			for _, arg := range args {
				k, v, ok := strings.Cut(arg, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid parameter %q: want key=value", arg)
				}
				params[k] = v
			}

			keys := wbi.KeyPair{ImgKey: imgKey, SubKey: subKey}
			if keys.ImgKey == "" || keys.SubKey == "" {
				fetched, err := wbi.NewKeyFetcher(ctx.client()).Fetch(cmd.Context(), ctx.credential)
				if err != nil {
					return err
				}
				keys = fetched
			}

			signer := wbi.Signer{}
			if wts > 0 {
				signer.Now = func() time.Time { return time.Unix(wts, 0) }
			}
			fmt.Fprintln(cmd.OutOrStdout(), wbi.CanonicalQuery(signer.Signed(params, keys)))
			return nil
		},
	}
	cmd.Flags().StringVar(&imgKey, "img-key", "", "Image key (skips the nav fetch when set with --sub-key)")
	cmd.Flags().StringVar(&subKey, "sub-key", "", "Sub key")
	cmd.Flags().Int64Var(&wts, "wts", 0, "Unix timestamp to sign with (default: now)")
	return cmd
}
