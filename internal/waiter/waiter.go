package waiter

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// ForExit waits for a started command to finish while showing a spinner.
// When ctx is done first the process is killed and ctx.Err() is returned.
func ForExit(ctx context.Context, cmd *exec.Cmd, message string) error {
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" %s...", message)
	s.Start()
	defer s.Stop()

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			s.FinalMSG = color.RedString("✖ %s failed: %v\n", message, err)
			return err
		}
		s.FinalMSG = color.GreenString("✔ %s finished.\n", message)
		return nil
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		s.FinalMSG = color.RedString("✖ %s stopped: %v\n", message, ctx.Err())
		return ctx.Err()
	}
}
