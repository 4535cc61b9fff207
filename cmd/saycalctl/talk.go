package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/paul-bouzian/saycal/internal/client/apiclient"
	"github.com/paul-bouzian/saycal/internal/client/panel"
	"github.com/paul-bouzian/saycal/internal/client/recorder"
	"github.com/paul-bouzian/saycal/internal/client/recorder/mic"
)

func init() {
	var tz, lang string
	var maxDur time.Duration
	talkCmd := &cobra.Command{
		Use:   "talk",
		Short: "Drive the voice panel from the microphone",
		Long: "Press Enter to start recording and Enter again to send. " +
			"After an answer, Enter records a follow-up; 'q' closes the panel.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []apiclient.Option{apiclient.WithLanguage(lang)}
			if tz != "" {
				opts = append(opts, apiclient.WithTimezone(tz))
			}
			client, err := apiclient.New(apiFlag, tokenFlag, opts...)
			if err != nil {
				return err
			}
			dev, err := mic.New()
			if err != nil {
				return err
			}
			defer dev.Close()

			rec := recorder.New(dev, recorder.WithMaxDuration(maxDur))
			return runTalk(cmd.Context(), rec, client, os.Stdin, os.Stdout, panel.WithLanguage(lang))
		},
	}
	talkCmd.Flags().StringVar(&tz, "tz", os.Getenv("TZ"), "IANA time zone sent with each command (server default when empty)")
	talkCmd.Flags().StringVar(&lang, "lang", "fr", "Language of server messages (fr or en)")
	talkCmd.Flags().DurationVar(&maxDur, "max-duration", recorder.DefaultMaxDuration, "Hard stop of one recording")
	rootCmd.AddCommand(talkCmd)
}

// runTalk maps input lines to panel actions until 'q', EOF or ctx ends.
func runTalk(ctx context.Context, rec panel.Recorder, sub panel.Submitter, in io.Reader, out io.Writer, opts ...panel.Option) error {
	opts = append([]panel.Option{panel.WithOnChange(func(s panel.State) { render(out, s) })}, opts...)
	p := panel.New(rec, sub, opts...)
	defer p.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
	}()

	_, _ = fmt.Fprintln(out, "Enter: record / send, q: quit")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || line == "q" {
				p.Wait()
				return nil
			}
			if err := step(ctx, p); err != nil {
				_, _ = fmt.Fprintf(out, "! %v\n", err)
			}
		}
	}
}

func step(ctx context.Context, p *panel.Panel) error {
	switch p.State().Kind {
	case panel.KindIdle:
		return p.Start(ctx)
	case panel.KindRecording:
		return p.Stop()
	case panel.KindResponse, panel.KindError:
		return p.NewCommand(ctx, true)
	default:
		return panel.ErrBusy
	}
}

func render(out io.Writer, s panel.State) {
	switch s.Kind {
	case panel.KindRecording:
		_, _ = fmt.Fprintln(out, "● recording")
	case panel.KindProcessing:
		_, _ = fmt.Fprintf(out, "… %s\n", s.Stage)
	case panel.KindResponse:
		_, _ = fmt.Fprintf(out, "> %s\n%s\n", s.Transcript, s.Message.Text)
		for _, e := range s.Message.Events {
			_, _ = fmt.Fprintf(out, "  - %s %s %s\n", e.Date, e.Time, e.Title)
		}
	case panel.KindError:
		_, _ = fmt.Fprintf(out, "✗ %s\n", s.Error)
	case panel.KindIdle:
		_, _ = fmt.Fprintln(out, "(idle)")
	}
}
