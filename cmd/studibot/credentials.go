package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pavelanni/studibot/internal/credentials"
)

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addCredentialsDirFlag(f *pflag.FlagSet) {
	f.String("credentials-dir", "", "Directory of the encrypted credential file (default: user config dir)")
}

func credentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the locally stored portal login and API key",
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Store credentials; omitted values keep their stored value",
		RunE:  runCredentialsSet,
	}
	set.Flags().String("username", "", "Portal username")
	set.Flags().String("password", "", "Portal password (or set STUDIBOT_PASSWORD)")
	set.Flags().String("api-key", "", "LLM API key (or set STUDIBOT_API_KEY)")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print stored credentials with secrets masked",
		RunE:  runCredentialsShow,
	}
	show.Flags().Bool("reveal", false, "Print secrets in clear")

	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored credentials",
		RunE:  runCredentialsDelete,
	}

	for _, c := range []*cobra.Command{set, show, del} {
		addCredentialsDirFlag(c.Flags())
		addLogFlags(c.Flags())
		cmd.AddCommand(c)
	}
	return cmd
}

func runCredentialsSet(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	s, err := openCredentials(v)
	if err != nil {
		return err
	}

	cur, err := s.Load()
	if err != nil && !errors.Is(err, credentials.ErrNotFound) {
		return fmt.Errorf("load credentials: %w", err)
	}
	changed := false
	for _, f := range []struct {
		dst *string
		key string
	}{
		{&cur.Username, "username"},
		{&cur.Password, "password"},
		{&cur.APIKey, "api-key"},
	} {
		if val := v.GetString(f.key); val != "" {
			*f.dst = val
			changed = true
		}
	}
	if !changed {
		return errors.New("nothing to store: pass --username, --password or --api-key")
	}

	if err := s.Save(cur); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved to %s\n", s.Path())
	return nil
}

func runCredentialsShow(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	s, err := openCredentials(v)
	if err != nil {
		return err
	}

	c, err := s.Load()
	if errors.Is(err, credentials.ErrNotFound) {
		fmt.Fprintln(cmd.OutOrStdout(), "no stored credentials")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if !v.GetBool("reveal") {
		c = credentials.Masked(c)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func runCredentialsDelete(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	s, err := openCredentials(v)
	if err != nil {
		return err
	}
	if err := s.Delete(); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "credentials deleted")
	return nil
}
