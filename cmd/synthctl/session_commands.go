// cmd/synthctl/session_commands.go
package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	errordefs "github.com/VidSynth/vidsynth-studio-go/internal/errors"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
	"github.com/VidSynth/vidsynth-studio-go/internal/session"
)

// newSubmitCommand stages a session from the given filenames, uploads it, and
// starts generation. With --watch it also follows progress to completion.
func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		referenceFlag string
		tagsFlag      []string
		watchFlag     bool
	)

	cmd := &cobra.Command{
		Use:   "submit --reference <filename> <material>...",
		Short: "Upload a session and start generation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.gatewayClient()
			if err != nil {
				return err
			}

			now := time.Now().Unix()
			reference := model.Asset{
				Kind:      model.AssetKindReference,
				Filename:  filepath.Base(referenceFlag),
				CreatedAt: now,
			}
			materials := make([]model.Asset, 0, len(args))
			for _, arg := range args {
				materials = append(materials, model.Asset{
					Kind:      model.AssetKindClip,
					Filename:  filepath.Base(arg),
					CreatedAt: now,
					Tags:      tagsFlag,
				})
			}

			orch := session.NewOrchestrator(client, ctx.logger)
			if err := orch.Stage(reference, materials); err != nil {
				return err
			}
			if err := orch.Submit(cmd.Context()); err != nil {
				return err
			}

			sess, _ := orch.Session()
			fmt.Fprintf(cmd.OutOrStdout(), "session %s is %s\n", sess.ID, sess.State)

			if !watchFlag {
				return nil
			}

			ch, err := orch.Observe(cmd.Context())
			if err != nil {
				return err
			}
			if err := printProgress(cmd, ch); err != nil {
				return err
			}

			sess, _ = orch.Session()
			fmt.Fprintf(cmd.OutOrStdout(), "session %s finished as %s\n", sess.ID, sess.State)
			if sess.State == model.SessionError {
				return fmt.Errorf("generation failed: %s", sess.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&referenceFlag, "reference", "", "Reference video filename")
	cmd.Flags().StringSliceVar(&tagsFlag, "tag", nil, "Tags to attach to every material clip")
	cmd.Flags().BoolVar(&watchFlag, "watch", false, "Follow progress until the job finishes")
	_ = cmd.MarkFlagRequired("reference")

	return cmd
}

// newWatchCommand follows the progress stream of an already running session.
func newWatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Follow progress events for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.gatewayClient()
			if err != nil {
				return err
			}

			stream, err := client.SubscribeProgress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer stream.Close()

			var last model.ProgressEvent
			for ev := range stream.Events() {
				printEvent(cmd, ev)
				last = ev
			}
			if err := stream.Err(); err != nil {
				if errordefs.IsCode(err, errordefs.SYN_CHANNEL_INTERRUPTED) {
					return fmt.Errorf("progress stream interrupted; the job may still be running: %w", err)
				}
				return err
			}
			if last.Status == model.ProgressError {
				return fmt.Errorf("generation failed: %s", last.Message)
			}
			return nil
		},
	}

	return cmd
}

// printProgress drains an orchestrator progress channel to stdout.
func printProgress(cmd *cobra.Command, ch *session.ProgressChannel) error {
	for ev := range ch.Events() {
		printEvent(cmd, ev)
	}
	return ch.Err()
}

func printEvent(cmd *cobra.Command, ev model.ProgressEvent) {
	bar := renderProgressBar(ev.Progress, 20)
	fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s %5.1f%%  %s\n", ev.Status, bar, ev.Progress*100, ev.Message)
}

// renderProgressBar draws a fixed-width ASCII progress bar.
func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}
