package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRequeueCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Reset failed records to queued so the next harvest retries them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			n, err := s.RequeueFailed(cmd.Context(), source)
			if err != nil {
				return err
			}
			fmt.Printf("requeued %d failed record(s)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "only requeue this source key")
	return cmd
}
