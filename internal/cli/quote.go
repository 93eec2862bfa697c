package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/avstrong/pension/internal/booking"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var quoteFile string

// QuoteCmd prices a request offline, without consulting any store.
var QuoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Validate and price a booking request read from a JSON file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		req, err := readRequest(quoteFile, cmd.InOrStdin())
		if err != nil {
			return err
		}

		return printQuote(cmd.OutOrStdout(), cmd.ErrOrStderr(), *req, cfg.RateTable(), cfg.BookingLimits())
	},
}

func init() {
	QuoteCmd.Flags().StringVarP(&quoteFile, "file", "f", "-", "request file, - for stdin")
}

func readRequest(path string, stdin io.Reader) (*booking.Request, error) {
	r := stdin

	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open request file: %w", err)
		}
		defer f.Close()

		r = f
	}

	var req booking.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	return &req, nil
}

func printQuote(out, errOut io.Writer, req booking.Request, rates booking.RateTable, limits booking.Limits) error {
	violations := booking.Validate(req, limits)

	warn := color.New(color.FgYellow)
	for _, v := range violations.Warnings() {
		warn.Fprintf(errOut, "warning: %s: %s\n", v.Field, v.Message)
	}

	if violations.Blocking() {
		blocking := violations.Errors()

		bad := color.New(color.FgRed, color.Bold)
		for _, v := range blocking {
			bad.Fprintf(errOut, "error: %s: %s\n", v.Field, v.Message)
		}

		return fmt.Errorf("request has %d validation errors", len(blocking))
	}

	breakdown, err := booking.ComputeTotal(req, rates)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(breakdown)
}
