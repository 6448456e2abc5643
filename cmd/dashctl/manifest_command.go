package main

import (
	"encoding/json"
	"fmt"

	"dash-proxy/internal/playurl"
	"dash-proxy/internal/videoproxy"

	"github.com/spf13/cobra"
)

func newManifestCommand(ctx *commandContext) *cobra.Command {
	var cid int64
	var variant string
	var index int

	cmd := &cobra.Command{
		Use:   "manifest <id>",
		Short: "Resolve a video and print its DASH manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := videoproxy.MPDRequest{
				Request: playurl.Request{ID: args[0], CID: cid, Credential: ctx.credential},
				Variant: variant,
			}
			if cmd.Flags().Changed("index") {
				req.Index = &index
			}
			svc := videoproxy.NewService(ctx.resolver(), nil)
			out, err := svc.GetMPD(cmd.Context(), req, ctx.proxyBase)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().Int64Var(&cid, "cid", 0, "Page content id (default: the title's first page)")
	cmd.Flags().StringVar(&variant, "variant", videoproxy.VariantLegacy, "Manifest variant: legacy or unified")
	cmd.Flags().IntVar(&index, "index", 0, "Pick the video stream at this position (legacy only)")
	return cmd
}

func newFormatsCommand(ctx *commandContext) *cobra.Command {
	var cid int64

	cmd := &cobra.Command{
		Use:   "formats <id>",
		Short: "Print the quality list and pages of a video as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := videoproxy.NewService(ctx.resolver(), nil)
			m, err := svc.GetManifest(cmd.Context(), playurl.Request{ID: args[0], CID: cid, Credential: ctx.credential}, ctx.proxyBase)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				ID      string `json:"bvid"`
				CID     int64  `json:"cid"`
				Formats any    `json:"formatList"`
				Pages   any    `json:"pages"`
			}{m.ID, m.CID, m.FormatList, m.Pages})
		},
	}
	cmd.Flags().Int64Var(&cid, "cid", 0, "Page content id (default: the title's first page)")
	return cmd
}
