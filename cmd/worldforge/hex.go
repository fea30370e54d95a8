package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/julianshen/worldforge/internal/hexgrid"
)

// hexCmd returns the "hex" command for converting grid tokens.
func hexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hex",
		Short: "Convert between grid tokens and axial coordinates",
	}
	cmd.AddCommand(hexDecodeCmd())
	cmd.AddCommand(hexEncodeCmd())
	cmd.AddCommand(hexDistanceCmd())
	return cmd
}

func hexDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "decode <token>...",
		Short:   "Decode grid tokens such as W2S51",
		Args:    cobra.MinimumNArgs(1),
		Example: "  worldforge hex decode W2S51 E4N10",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, tok := range args {
				c, err := hexgrid.DecodeToken(tok)
				if err != nil {
					return err
				}
				o := hexgrid.ToOffset(c)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tq=%d r=%d\tx=%d y=%d\n", tok, c.Q, c.R, o.X, o.Y)
			}
			return nil
		},
	}
}

func hexEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <q> <r>",
		Short: "Encode an axial coordinate as a grid token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid q %q: %w", args[0], err)
			}
			r, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid r %q: %w", args[1], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hexgrid.EncodeToken(hexgrid.Coord{Q: q, R: r}))
			return nil
		},
	}
}

func hexDistanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distance <token> <token>",
		Short: "Print the hex distance between two grid tokens",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := hexgrid.DecodeToken(args[0])
			if err != nil {
				return err
			}
			b, err := hexgrid.DecodeToken(args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hexgrid.Distance(a, b))
			return nil
		},
	}
}
