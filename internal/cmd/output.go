package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ebsalem/portal/session"
	"gopkg.in/yaml.v3"
)

// printOutput renders v in the selected format; text falls back to textFn
func printOutput(w io.Writer, format string, v any, textFn func(io.Writer) error) error {
	switch strings.ToLower(format) {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return err
		}
		return encoder.Close()
	case "", "text":
		return textFn(w)
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func printSnapshot(w io.Writer, snap session.Snapshot) error {
	return printOutput(w, outputFormat, snap, func(w io.Writer) error {
		if !snap.Authenticated || snap.Session == nil {
			fmt.Fprintln(w, "Not signed in.")
			if snap.Error != "" {
				fmt.Fprintf(w, "Last error: %s\n", snap.Error)
			}
			return nil
		}
		s := snap.Session
		fmt.Fprintf(w, "Signed in as %s <%s>\n", s.Name, s.Email)
		fmt.Fprintf(w, "  User ID:  %s\n", s.UserID)
		fmt.Fprintf(w, "  Role:     %s\n", s.Role)
		if len(s.Groups) > 0 {
			fmt.Fprintf(w, "  Groups:   %s\n", strings.Join(s.Groups, ", "))
		}
		if !s.ExpiresAt.IsZero() {
			fmt.Fprintf(w, "  Expires:  %s\n", s.ExpiresAt.Local().Format(time.RFC1123))
		}
		fmt.Fprintf(w, "  Home:     %s\n", session.RedirectFor(s.Role))
		return nil
	})
}
