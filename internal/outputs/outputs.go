// Package outputs publishes step outputs for downstream CI steps.
package outputs

import (
	"fmt"
	"io"
	"os"
	"strconv"
)

// Values are the outputs of a successful run.
type Values struct {
	PRURL             string
	PRNumber          int
	AppID             int64
	PreviewURL        string
	ShouldPostComment bool
}

// Write emits the outputs as key=value lines in the GitHub Actions output
// file format.
func Write(w io.Writer, v Values) error {
	lines := []struct {
		key   string
		value string
	}{
		{"pr_url", v.PRURL},
		{"pr_number", strconv.Itoa(v.PRNumber)},
		{"app_id", strconv.FormatInt(v.AppID, 10)},
		{"preview_url", v.PreviewURL},
		{"should_post_comment", strconv.FormatBool(v.ShouldPostComment)},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s=%s\n", l.key, l.value); err != nil {
			return fmt.Errorf("writing output %s: %w", l.key, err)
		}
	}
	return nil
}

// Publish appends the outputs to the file named by $GITHUB_OUTPUT, or prints
// them to stdout when the variable is unset (local runs).
func Publish(v Values) error {
	path := os.Getenv("GITHUB_OUTPUT")
	if path == "" {
		return Write(os.Stdout, v)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening output file: %w", err)
	}
	defer f.Close()

	if err := Write(f, v); err != nil {
		return err
	}
	return f.Close()
}
