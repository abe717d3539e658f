package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/codeinsight/internal/app"
	"github.com/nhle/codeinsight/internal/explain"
	"github.com/nhle/codeinsight/internal/logging"
	"github.com/nhle/codeinsight/internal/modestate"
	"github.com/nhle/codeinsight/internal/ui/render"
)

var renderFlag bool

// explainCmd explains code without the interface.
var explainCmd = &cobra.Command{
	Use:   "explain [file]",
	Short: "Stream an explanation of a file or stdin to stdout",
	Long: `Explains the code in the file argument, or on stdin when it is piped,
and streams the explanation to stdout as it arrives.

With --render the explanation is printed once, rendered as markdown.
The result is saved to history like an explanation made in the interface.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExplain,
}

func runExplain(cmd *cobra.Command, args []string) error {
	code, err := readInput(args, os.Stdin)
	if err != nil {
		return err
	}
	code = strings.TrimRight(code, "\n")
	if strings.TrimSpace(code) == "" {
		return errors.New("nothing to explain: pass a file or pipe code on stdin")
	}

	svc := app.NewExplainService(*cfg, app.Deps{
		Creds:  credentials(),
		Cache:  app.NewCache(*cfg),
		Logger: logging.Module("explain"),
	})

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	var live io.Writer = out
	if renderFlag {
		live = nil
	}

	text, err := streamExplanation(ctx, svc.Explain(ctx, code), live)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if renderFlag {
		r := render.New(cfg.UI.Theme, 100)
		fmt.Fprintln(out, r.Markdown(text))
	} else {
		fmt.Fprintln(out)
	}

	record(code, text)
	return nil
}

// streamExplanation copies chunk text to w as it arrives and returns the
// whole explanation. w may be nil to only collect it.
func streamExplanation(ctx context.Context, events <-chan explain.Event, w io.Writer) (string, error) {
	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return sb.String(), nil
		case ev, ok := <-events:
			if !ok {
				return sb.String(), nil
			}
			switch ev.Kind {
			case explain.EventChunk:
				sb.WriteString(ev.Text)
				if w != nil {
					io.WriteString(w, ev.Text)
				}
			case explain.EventReplace:
				sb.Reset()
				sb.WriteString(ev.Text)
				if w != nil {
					io.WriteString(w, "\n"+ev.Text)
				}
			case explain.EventError:
				return sb.String(), ev.Err
			case explain.EventComplete:
				return sb.String(), nil
			}
		}
	}
}

// record saves a headless explanation. History is best effort.
func record(code, text string) {
	db, err := openStore()
	if err != nil {
		logger.Debug("history unavailable", zap.Error(err))
		return
	}
	defer db.Close()

	rec := app.NewRecorder(db, logging.Module("recorder"))
	if cmd := rec.Record(modestate.Turn{
		Kind:  modestate.TurnExplain,
		Mode:  cfg.Mode(),
		Code:  code,
		Reply: text,
	}); cmd != nil {
		cmd()
	}
}
