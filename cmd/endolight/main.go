package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"

	"github.com/calvinmclean/endolight/controller"
	"github.com/calvinmclean/endolight/ui"
)

func main() {
	cfg := controller.ConfigFromEnv()

	flag.StringVar(&cfg.SessionName, "session", cfg.SessionName, "Session name for the log files and TWChart")
	flag.StringVar(&cfg.ProbesInput, "probes", cfg.ProbesInput, "Set photodiode mapping in format \"1=Name,2=Name,...\"")
	flag.StringVar(&cfg.Mask, "mask", cfg.Mask, "Circular region used for exposure in format \"x,y,radius\"")
	flag.StringVar(&cfg.FrameSource, "frames", cfg.FrameSource, "Raw BGR24 frame stream, - for stdin")
	flag.StringVar(&cfg.FrameSize, "frame-size", cfg.FrameSize, "Frame size in format \"WIDTHxHEIGHT\"")
	flag.BoolVar(&cfg.Simulate, "simulate", cfg.Simulate, "Simulate the light source and camera")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if os.Getenv("ENABLE_UI") == "true" {
		runUI(ctx, cfg)
		return
	}

	runCLI(ctx, cfg)
}

func runUI(ctx context.Context, cfg controller.Config) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	application := app.NewWithID("com.github.calvinmclean.endolight")

	configWindow := ui.NewConfigWindow(application)
	configWindow.OnSubmit = func() {
		r, err := controller.NewFromConfig(cfg)
		if err != nil {
			log.Printf("error starting: %v", err)
			application.Quit()
			return
		}

		in, w := io.Pipe()

		// read from Stdin also
		go func() {
			_, _ = io.Copy(w, menuInput(cfg))
		}()

		lightUI := ui.NewLightSourceUI(application, r.Status)
		lightUI.Show(ctx, w)

		go func() {
			defer fyne.Do(application.Quit)
			defer r.Close()
			// unblock button presses once the menu stops reading
			defer in.Close()

			err := r.Run(ctx, in, io.MultiWriter(os.Stdout, lightUI))
			if err != nil {
				log.Printf("error running: %v", err)
			}
		}()
	}
	configWindow.Show(&cfg)

	go func() {
		<-ctx.Done()
		fyne.Do(application.Quit)
	}()

	application.Run()
}

func runCLI(ctx context.Context, cfg controller.Config) {
	r, err := controller.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("error starting: %v", err)
	}
	defer r.Close()

	err = r.Run(ctx, menuInput(cfg), os.Stdout)
	if err != nil {
		log.Printf("error running: %v", err)
	}
}

// menuInput returns stdin unless it carries the frames
func menuInput(cfg controller.Config) io.Reader {
	if cfg.FrameSource == "-" && !cfg.Simulate {
		return strings.NewReader("")
	}
	return os.Stdin
}
