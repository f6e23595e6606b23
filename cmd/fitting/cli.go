package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/virtual-fitting/internal/bootstrap"
	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/usecase"
)

const usage = `usage: fitting <command> [flags]

commands:
  garments                     list the garment catalog
  check                        report missing capture features
  try -garment ID [-image F]   record a clip (or use a photo), submit it and wait for the video
  status JOB_ID                print the current status of a job
`

type cli struct {
	app    *bootstrap.App
	stdout io.Writer
	stderr io.Writer
}

func newCLI(app *bootstrap.App, stdout, stderr io.Writer) *cli {
	return &cli{app: app, stdout: stdout, stderr: stderr}
}

func (c *cli) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(c.stderr, usage)
		return 2
	}
	var err error
	switch args[0] {
	case "garments":
		err = c.garments()
	case "check":
		err = c.check(ctx)
	case "try":
		err = c.try(ctx, args[1:])
	case "status":
		err = c.status(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(c.stdout, usage)
		return 0
	default:
		fmt.Fprintf(c.stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err != nil {
		c.report(err)
		return 1
	}
	return 0
}

func (c *cli) garments() error {
	for _, g := range c.app.Catalog.List() {
		fmt.Fprintf(c.stdout, "%-10s %-20s %s\n", g.ID, g.Name, g.Description)
	}
	return nil
}

func (c *cli) check(ctx context.Context) error {
	compat := usecase.CheckCompatibility(ctx, c.app.Prober, c.app.Encoder)
	if compat.Compatible {
		fmt.Fprintln(c.stdout, "all capture features available")
		return nil
	}
	fmt.Fprintf(c.stdout, "missing: %s\n", strings.Join(compat.Missing, ", "))
	fmt.Fprintln(c.stdout, "photo upload (-image) still works")
	return nil
}

func (c *cli) try(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("try", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	garmentID := fs.String("garment", "", "garment id from the catalog")
	imagePath := fs.String("image", "", "use a photo instead of recording")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *garmentID == "" {
		return errors.New("-garment is required")
	}

	garment, err := c.app.Selection.SelectGarment(*garmentID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "garment: %s\n", garment.Name)

	var job domain.GenerationJob
	if *imagePath != "" {
		src, err := readSourceImage(*imagePath)
		if err != nil {
			return err
		}
		img, err := c.app.Selection.LoadImage(ctx, src)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "photo ready: %dx%d %s\n", img.Width, img.Height, img.MIMEType)
		job, err = c.app.Submit.SubmitImage(ctx, c.progress("generating"))
		if err != nil {
			return err
		}
	} else {
		c.app.Capture.OnTimeline(c.timeline)
		clip, err := c.app.Capture.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "recorded %s, %d frames, %dx%d\n", clip.Duration, clip.Frames, clip.Width, clip.Height)
		job, err = c.app.Submit.SubmitClip(ctx, c.progress("uploading"))
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(c.stdout, "job %s: %s\n", job.ID, job.Status)

	status, err := c.app.Poll.Await(ctx, job.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "result: %s\n", status.ResultURL)
	return nil
}

func (c *cli) status(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("status needs exactly one job id")
	}
	status, err := c.app.Service.PollStatus(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s %s\n", status.Status, status.ResultURL)
	if status.Error != "" {
		fmt.Fprintf(c.stdout, "error: %s\n", status.Error)
	}
	return nil
}

func (c *cli) timeline(s usecase.TimelineSnapshot) {
	switch s.State {
	case usecase.TimelineAwaitingDevice:
		fmt.Fprintln(c.stdout, "starting camera...")
	case usecase.TimelineCountdown:
		fmt.Fprintf(c.stdout, "get ready: %d\n", s.Remaining)
	case usecase.TimelineRecording:
		fmt.Fprintf(c.stdout, "recording: %ds left\n", s.Remaining)
	case usecase.TimelineDone:
		fmt.Fprintln(c.stdout, "recording done")
	}
}

func (c *cli) progress(label string) func(float64) {
	last := -1
	return func(p float64) {
		pct := int(p)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(c.stdout, "%s: %d%%\n", label, pct)
	}
}

func (c *cli) report(err error) {
	if appErr, ok := domain.AsAppError(err); ok {
		msg := appErr.UserMessage
		if msg == "" {
			msg = appErr.Error()
		}
		fmt.Fprintf(c.stderr, "error: %s\n", msg)
		if appErr.Retryable {
			fmt.Fprintln(c.stderr, "you can run the command again to retry")
		}
		return
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(c.stderr, "cancelled")
		return
	}
	fmt.Fprintf(c.stderr, "error: %v\n", err)
}

func readSourceImage(path string) (domain.SourceImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.SourceImage{}, domain.WrapError(domain.ErrInvalidInput, "read image", err)
	}
	return domain.SourceImage{
		Name:     filepath.Base(path),
		MIMEType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Data:     data,
	}, nil
}
