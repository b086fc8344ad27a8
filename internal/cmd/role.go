package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ebsalem/portal/cognito"
	"github.com/ebsalem/portal/models"
	"github.com/ebsalem/portal/session"
	"github.com/spf13/cobra"
)

// tokenInfo is the decoded view of an ID token
type tokenInfo struct {
	Subject   string      `json:"sub" yaml:"sub"`
	Email     string      `json:"email,omitempty" yaml:"email,omitempty"`
	Name      string      `json:"name,omitempty" yaml:"name,omitempty"`
	TokenUse  string      `json:"tokenUse,omitempty" yaml:"tokenUse,omitempty"`
	Groups    []string    `json:"groups" yaml:"groups"`
	Role      models.Role `json:"role" yaml:"role"`
	Home      string      `json:"home" yaml:"home"`
	ExpiresAt time.Time   `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

var roleCmd = &cobra.Command{
	Use:   "role [token|-]",
	Short: "Decode a Cognito token and show the application role",
	Long: `Decode the payload of a Cognito ID token without verifying its signature
and map its groups to an application role. The token is read from stdin
when the argument is "-" or missing. No network access is needed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := readToken(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		claims, err := cognito.ExtractClaims(token)
		if err != nil {
			return fmt.Errorf("cannot decode token: %w", err)
		}
		info := tokenInfo{
			Subject:   claims.Sub,
			Email:     claims.Email,
			Name:      claims.DisplayName(),
			TokenUse:  claims.TokenUse,
			Groups:    claims.Groups,
			Role:      claims.Role,
			Home:      session.RedirectFor(claims.Role),
			ExpiresAt: claims.ExpiresAt,
		}
		return printOutput(cmd.OutOrStdout(), outputFormat, info, func(w io.Writer) error {
			fmt.Fprintf(w, "Role:    %s\n", info.Role)
			fmt.Fprintf(w, "Groups:  %s\n", strings.Join(info.Groups, ", "))
			fmt.Fprintf(w, "Subject: %s\n", info.Subject)
			fmt.Fprintf(w, "Home:    %s\n", info.Home)
			return nil
		})
	},
}

func readToken(in io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return strings.TrimSpace(args[0]), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("no token given")
	}
	return token, nil
}

func init() {
	rootCmd.AddCommand(roleCmd)
}
