package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"

	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/present"
)

// printError writes err for a human: the reason of an errs.Error and its
// details, or the flag a parse error is about.
func printError(w io.Writer, err error) {
	styles := present.StderrStyles()
	format := "\n%s\n\n"

	var ferr flagParseError
	if errors.As(err, &ferr) {
		_, _ = fmt.Fprintf(w, format+"%s\n\n",
			fmt.Sprintf(
				"Check out %s %s",
				styles.InlineCode.Render(appName()+" -h"),
				styles.Comment.Render("for help."),
			),
			fmt.Sprintf(
				ferr.ReasonFormat(),
				styles.InlineCode.Render(ferr.Flag()),
			),
		)
		return
	}

	var merr errs.Error
	if errors.As(err, &merr) {
		args := []any{styles.ErrPadding.Render(styles.ErrorHeader.String(), merr.Reason)}
		if !errors.Is(merr.Err, huh.ErrUserAborted) && merr.Err != nil {
			format += "%s\n\n"
			args = append(args, styles.ErrPadding.Render(styles.ErrorDetails.Render(merr.Err.Error())))
		}
		_, _ = fmt.Fprintf(w, format, args...)
		return
	}

	_, _ = fmt.Fprintf(w, format, styles.ErrPadding.Render(styles.ErrorDetails.Render(err.Error())))
}
